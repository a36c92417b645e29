package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"golang.org/x/sync/errgroup"
)

// ShardedSweep 把县列表分成 shards 份, 每份用独立会话并行遍历后合并结果
//
// shards <= 1 时等同于 Sweep。不同分片处理的叶子互不重叠, 写库不会冲突。
// 进度回调被串行化, 同一分片内保持遍历顺序。
func (h *Harvester) ShardedSweep(ctx context.Context, req models.SweepRequest, shards int) (*models.TraversalResult, error) {
	if shards <= 1 {
		return h.Sweep(ctx, req)
	}

	start := time.Now()
	filters := models.NormalizeCountyFilters(req.CountyFilters)

	available, err := h.discoverCounties(ctx, req.TaxYear)
	if err != nil {
		return nil, err
	}

	merged := &models.TraversalResult{
		AvailableCounties: available.Labels(),
		CountyFilters:     filters,
		Counties:          []models.CountyResult{},
		Errors:            []models.TraversalError{},
		StartedAt:         start,
	}
	defer func() { merged.Duration = time.Since(start).Seconds() }()

	selected := filterCounties(available, filters, len(req.CountyFilters) > 0)
	if len(selected) == 0 {
		utils.Warnf("%v, 终止遍历", models.ErrNoCountiesMatched)
		return merged, nil
	}

	parts := partition(selected, shards)
	utils.Infof("🚀 分片遍历: %d个县, %d个会话", len(selected), len(parts))

	var (
		mu       sync.Mutex
		progress = serialize(req.OnProgress)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shards)

	for i, part := range parts {
		g.Go(func() error {
			sub := req
			sub.CountyFilters = part.Values()
			sub.OnProgress = progress

			res, err := h.Sweep(gctx, sub)
			if res != nil {
				mu.Lock()
				merged.Merge(res)
				mu.Unlock()
			}
			if err != nil {
				return fmt.Errorf("分片%d失败: %w", i+1, err)
			}
			utils.Debugf("分片%d完成: %d个县, 新增%d条税率", i+1, res.TotalCounties, res.TotalRates)
			return nil
		})
	}
	err = g.Wait()

	order := make(map[string]int, len(selected))
	for i, c := range selected {
		order[c.Label] = i
	}
	slices.SortStableFunc(merged.Counties, func(a, b models.CountyResult) int {
		return cmp.Compare(order[a.County], order[b.County])
	})

	return merged, err
}

// discoverCounties 选择税务年度后读取县列表
func (h *Harvester) discoverCounties(ctx context.Context, taxYear int) (models.OptionList, error) {
	sess, err := h.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	if _, err := h.driver.Select(ctx, sess, models.FieldTaxYear, strconv.Itoa(h.year(taxYear))); err != nil {
		return nil, err
	}
	return listCounties(ctx, sess)
}

// partition 轮转分配, 返回的分片数不超过 n 且都非空
func partition(opts models.OptionList, n int) []models.OptionList {
	n = min(n, len(opts))
	parts := make([]models.OptionList, n)
	for i, o := range opts {
		parts[i%n] = append(parts[i%n], o)
	}
	return parts
}

func serialize(fn models.ProgressFunc) models.ProgressFunc {
	if fn == nil {
		return nil
	}
	var mu sync.Mutex
	return func(county, agency, project string, stored int) {
		mu.Lock()
		defer mu.Unlock()
		fn(county, agency, project, stored)
	}
}

// PrintSummary 打印遍历摘要
func PrintSummary(r *models.TraversalResult) {
	utils.Info("==================================================")
	utils.Info("📊 遍历摘要")
	utils.Infof("县: %d  机构: %d  项目: %d", r.TotalCounties, r.TotalAgencies, r.TotalProjects)
	utils.Infof("✅ 新增税率: %d  无数据叶子: %d", r.TotalRates, r.NoDataLeaves)
	if len(r.Errors) > 0 {
		utils.Warnf("❌ 失败: %d", len(r.Errors))
		for _, e := range r.Errors {
			utils.Warnf("  - %s", e.Error())
		}
	}
	utils.Info("==================================================")
}
