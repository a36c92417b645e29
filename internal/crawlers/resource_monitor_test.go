package crawlers

import (
	"context"
	"errors"
	"testing"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/require"
)

func fakeMonitor(availMB uint64, cpuPct float64, cpus int) *ResourceMonitor {
	rm := NewResourceMonitor(models.BrowserConfig{MinFreeMemoryMB: 512, CPULoadWarn: 90})
	rm.sampleMem = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16 << 30, Available: availMB << 20}, nil
	}
	rm.sampleCPU = func(context.Context) ([]float64, error) { return []float64{cpuPct}, nil }
	rm.numCPU = func() int { return cpus }
	return rm
}

func TestResourceMonitor_Preflight(t *testing.T) {
	ctx := context.Background()

	_, warnings, err := fakeMonitor(4096, 20, 8).Preflight(ctx)
	require.NoError(t, err)
	require.Empty(t, warnings)

	_, warnings, err = fakeMonitor(4096, 97, 8).Preflight(ctx)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	_, _, err = fakeMonitor(100, 20, 8).Preflight(ctx)
	require.Error(t, err)
}

func TestResourceMonitor_MaxSessions(t *testing.T) {
	ctx := context.Background()

	// (2048-512)/300 = 5
	require.Equal(t, 4, fakeMonitor(2048, 0, 8).MaxSessions(ctx, 4))
	require.Equal(t, 5, fakeMonitor(2048, 0, 8).MaxSessions(ctx, 16))
	require.Equal(t, 2, fakeMonitor(8192, 0, 2).MaxSessions(ctx, 16))
	require.Equal(t, 1, fakeMonitor(256, 0, 8).MaxSessions(ctx, 3))
	require.Equal(t, 1, fakeMonitor(8192, 0, 8).MaxSessions(ctx, 0))
}

func TestResourceMonitor_SampleFailure(t *testing.T) {
	rm := fakeMonitor(0, 0, 4)
	rm.sampleMem = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc") }

	snap, _, err := rm.Preflight(context.Background())
	require.NoError(t, err, "采样失败时不阻止启动")
	require.Zero(t, snap.TotalMB)
	require.Equal(t, 3, rm.MaxSessions(context.Background(), 3))
}
