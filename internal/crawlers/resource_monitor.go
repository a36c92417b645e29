package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SessionMemoryMB 单个浏览器会话的平均内存消耗估计
const SessionMemoryMB = 300

// ResourceSnapshot 一次资源采样
type ResourceSnapshot struct {
	TotalMB     uint64
	AvailableMB uint64
	CPUPercent  float64
	NumCPU      int
}

// ResourceMonitor 启动浏览器前的资源检查
// 根据可用内存和CPU负载决定并行会话数上限
type ResourceMonitor struct {
	minFreeMB int
	cpuWarn   int
	sessionMB int
	sampleMem func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	sampleCPU func(ctx context.Context) ([]float64, error)
	numCPU    func() int
}

// NewResourceMonitor 创建资源检查器
func NewResourceMonitor(cfg models.BrowserConfig) *ResourceMonitor {
	return &ResourceMonitor{
		minFreeMB: cfg.MinFreeMemoryMB,
		cpuWarn:   cfg.CPULoadWarn,
		sessionMB: SessionMemoryMB,
		sampleMem: mem.VirtualMemoryWithContext,
		sampleCPU: func(ctx context.Context) ([]float64, error) {
			// 100ms 采样, perCPU=false 返回平均值
			return cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
		},
		numCPU: runtime.NumCPU,
	}
}

// Snapshot 采样当前系统资源, 采样失败的项保持为0
func (rm *ResourceMonitor) Snapshot(ctx context.Context) ResourceSnapshot {
	snap := ResourceSnapshot{NumCPU: rm.numCPU()}

	if vm, err := rm.sampleMem(ctx); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	} else {
		snap.TotalMB = vm.Total / (1024 * 1024)
		snap.AvailableMB = vm.Available / (1024 * 1024)
	}

	if pct, err := rm.sampleCPU(ctx); err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else if len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	return snap
}

// Preflight 检查是否有足够资源启动浏览器
// 内存低于下限返回错误, CPU过载只给出警告
func (rm *ResourceMonitor) Preflight(ctx context.Context) (ResourceSnapshot, []string, error) {
	snap := rm.Snapshot(ctx)
	var warnings []string

	if snap.TotalMB > 0 && rm.minFreeMB > 0 && snap.AvailableMB < uint64(rm.minFreeMB) {
		return snap, warnings, fmt.Errorf("可用内存不足(当前%dMB, 至少需要%dMB)", snap.AvailableMB, rm.minFreeMB)
	}

	if rm.cpuWarn > 0 && snap.CPUPercent > float64(rm.cpuWarn) {
		w := fmt.Sprintf("CPU负载过高(当前%.1f%%), 页面回发可能变慢", snap.CPUPercent)
		log.Warn().Msg(w)
		warnings = append(warnings, w)
	}
	return snap, warnings, nil
}

// MaxSessions 按资源情况收紧请求的并行会话数, 至少为1
func (rm *ResourceMonitor) MaxSessions(ctx context.Context, requested int) int {
	if requested < 1 {
		requested = 1
	}
	snap := rm.Snapshot(ctx)

	limit := requested
	if snap.TotalMB > 0 {
		byMemory := 1
		if surplus := int(snap.AvailableMB) - rm.minFreeMB; surplus > 0 && rm.sessionMB > 0 {
			byMemory = surplus / rm.sessionMB
		}
		limit = min(limit, byMemory)
	}
	if snap.NumCPU > 0 {
		limit = min(limit, snap.NumCPU)
	}
	if limit < 1 {
		limit = 1
	}

	if limit < requested {
		log.Warn().Msgf("资源受限, 并行会话数从 %d 降为 %d (可用内存%dMB)", requested, limit, snap.AvailableMB)
	}
	return limit
}
