package main

import (
	"bytes"
	"testing"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		year    int
		shards  int
		settle  int
		fuzzy   float64
		wantErr bool
	}{
		{"全部默认", "", 0, 0, 0, 0, false},
		{"合法参数", "https://taxrates.utah.gov/x.aspx", 2024, 4, 3, 0.92, false},
		{"非法URL", "ftp://example.com", 0, 0, 0, 0, true},
		{"年度过小", "", 1800, 0, 0, 0, true},
		{"分片过多", "", 0, 17, 0, 0, true},
		{"等待过长", "", 0, 0, 121, 0, true},
		{"阈值越界", "", 0, 0, 0, 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.url, tt.year, tt.shards, tt.settle, tt.fuzzy)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	f, err := ValidateFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, formatJSON, f)

	_, err = ValidateFormat("csv")
	assert.Error(t, err)
}

func TestValidateLeaf(t *testing.T) {
	assert.NoError(t, ValidateLeaf("SALT LAKE", "SLC", "DEPOT"))

	err := ValidateLeaf("SALT LAKE", " ", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--agency, --project")
}

func TestWriteStructured(t *testing.T) {
	snap := models.OptionsSnapshot{Counties: models.OptionList{{Value: "18", Label: "SALT LAKE"}}}

	var buf bytes.Buffer
	require.NoError(t, writeStructured(&buf, formatYAML, snap))
	assert.Contains(t, buf.String(), "label: SALT LAKE")

	buf.Reset()
	require.NoError(t, writeStructured(&buf, formatJSON, snap))
	assert.Contains(t, buf.String(), `"value": "18"`)

	assert.Error(t, writeStructured(&buf, formatTable, snap))
}

func TestRateText(t *testing.T) {
	v := 0.001519
	assert.Equal(t, "0.001519", rateText(&v))
	assert.Equal(t, "-", rateText(nil))
}
