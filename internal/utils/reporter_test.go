package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func TestReporter_GenerateReport(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(dir, true)

	result := &models.TraversalResult{
		TotalCounties: 1,
		TotalAgencies: 2,
		TotalProjects: 2,
		TotalRates:    3,
		StartedAt:     time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		Duration:      42.5,
		Errors: []models.TraversalError{{
			Level: models.LevelProject,
			Scope: models.ScopeTuple{County: "BEAVER", Agency: "A1", Project: "P9"},
			Cause: errors.New("timeout"),
		}},
	}
	cfg := models.DefaultHarvestConfig()
	cfg.TaxYear = 2024

	path, err := r.GenerateReport(result, cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sweep_2024_20240301_083000.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var report models.SweepReport
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Equal(t, 3, report.Result.TotalRates)
	require.Equal(t, []string{"Project P9 in BEAVER/A1: timeout"}, report.Errors)
	require.True(t, report.EndTime.Equal(result.StartedAt.Add(42500*time.Millisecond)))

	compressed, err := os.ReadFile(path + ".br")
	require.NoError(t, err)
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	require.Equal(t, raw, plain)

	_, err = os.Stat(filepath.Join(dir, "failed_sweep_2024_20240301_083000.json"))
	require.NoError(t, err)
}
