package core

import (
	"context"
	"errors"
	"sync"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
)

// ErrJobRunning 任务尚未结束
var ErrJobRunning = errors.New("遍历任务仍在运行")

// SweepJob 后台运行的一次遍历
type SweepJob struct {
	done   chan struct{}
	mu     sync.Mutex
	result *models.TraversalResult
	err    error
}

// StartSweep 在后台启动遍历并立即返回
// 任务不接受外部取消, 进度回调在后台goroutine中按遍历顺序同步调用
func (h *Harvester) StartSweep(req models.SweepRequest) *SweepJob {
	job := &SweepJob{done: make(chan struct{})}

	go func() {
		defer close(job.done)
		result, err := h.ShardedSweep(context.Background(), req, h.cfg.Shards)
		if err != nil {
			utils.Errorf("后台遍历失败: %v", err)
		}
		job.mu.Lock()
		job.result, job.err = result, err
		job.mu.Unlock()
	}()
	return job
}

// Done 任务结束时关闭
func (j *SweepJob) Done() <-chan struct{} {
	return j.done
}

// Wait 阻塞直到任务结束或 ctx 取消; ctx 取消不会停止任务本身
func (j *SweepJob) Wait(ctx context.Context) (*models.TraversalResult, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result 非阻塞地读取结果, 任务未结束时返回 ErrJobRunning
func (j *SweepJob) Result() (*models.TraversalResult, error) {
	select {
	case <-j.done:
	default:
		return nil, ErrJobRunning
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}
