package main

import (
	"fmt"

	"github.com/RecoveryAshes/taxharvest/internal/core"
	"github.com/RecoveryAshes/taxharvest/internal/crawlers"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/spf13/cobra"
)

// 遍历参数
var (
	counties    []string
	countyFile  string
	shards      int
	writeReport bool
	noProgress  bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "遍历全部 (或指定) 县下的所有叶子",
	Long: `遍历 县 → 机构 → 项目 并保存每个叶子的税率表

单个县/机构/项目失败只记录错误, 不影响其余节点; 遍历结束后输出摘要并生成报告。
县过滤不区分大小写, 同时匹配选项值和显示文本。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags("", 0, shards, 0, 0); err != nil {
			return err
		}

		filters := append([]string{}, counties...)
		if countyFile != "" {
			fromFile, err := utils.ReadCountiesFromFile(countyFile)
			if err != nil {
				return err
			}
			filters = append(filters, fromFile...)
		}

		ctx := cmd.Context()
		cfg := &appConfig.Harvest
		if shards > 0 {
			cfg.Shards = shards
		}

		monitor := crawlers.NewResourceMonitor(cfg.Browser)
		_, warnings, err := monitor.Preflight(ctx)
		for _, w := range warnings {
			utils.Warnf("⚠️  %s", w)
		}
		if err != nil {
			return err
		}
		if n := monitor.MaxSessions(ctx, cfg.Shards); n < cfg.Shards {
			utils.Warnf("⚠️  资源不足, 并行会话数从 %d 降为 %d", cfg.Shards, n)
			cfg.Shards = n
		}

		h, store, err := newHarvester(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		req := models.SweepRequest{
			TaxYear:       cfg.TaxYear,
			OrgID:         cfg.OrgID,
			CountyFilters: filters,
		}
		if !noProgress {
			bar := utils.NewProgressBar(-1, "抓取叶子")
			defer bar.Finish()
			req.OnProgress = func(county, agency, project string, stored int) {
				bar.Describe(fmt.Sprintf("%s/%s", county, agency))
				bar.Add(1)
			}
		}

		utils.Infof("🚀 开始遍历: 年度=%d 组织=%s 会话=%d", cfg.TaxYear, cfg.OrgID, cfg.Shards)
		result, err := h.ShardedSweep(ctx, req, cfg.Shards)
		if result != nil {
			core.PrintSummary(result)
		}
		if result != nil && writeReport {
			reporter := utils.NewReporter(appConfig.Output.ReportDir, appConfig.Output.CompressReport)
			if _, rerr := reporter.GenerateReport(result, *cfg); rerr != nil {
				utils.Warnf("生成报告失败: %v", rerr)
			}
		}
		if err != nil {
			return fmt.Errorf("遍历失败: %w", err)
		}

		utils.Infof("⏱️  总耗时: %s", utils.FormatDuration(result.Duration))
		utils.Info("✨ 遍历任务完成!")
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringSliceVar(&counties, "county", nil, "只遍历这些县 (选项值或显示文本), 可多次指定")
	sweepCmd.Flags().StringVar(&countyFile, "county-file", "", "县列表文件, 每行一个")
	sweepCmd.Flags().IntVar(&shards, "shards", 0, "并行会话数 (默认读取配置)")
	sweepCmd.Flags().BoolVar(&writeReport, "report", true, "遍历结束后生成报告文件")
	sweepCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")
}
