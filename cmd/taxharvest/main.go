package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/taxharvest/internal/core"
	"github.com/RecoveryAshes/taxharvest/internal/crawlers"
	"github.com/RecoveryAshes/taxharvest/internal/storage"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile  string
	headersFile string
	verbose     bool
	logLevel    string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 抓取参数
	targetURL   string
	orgID       string
	taxYear     int
	dsn         string
	headless    bool
	fuzzy       float64
	settleDelay int
)

// appConfig 由 PersistentPreRunE 加载, 子命令共享
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "taxharvest",
	Short: "犹他州税率层级抓取工具",
	Long: `taxharvest - 犹他州税率查询页的层级抓取工具

通过浏览器驱动 税务年度 → 县 → 机构 → 项目 四级级联表单,
解析每个叶子节点的实体税率表并幂等写入数据库:
  • 单叶子抓取与全量遍历
  • 县白名单过滤与多会话分片
  • 空叶子写入 NO_DATA 哨兵记录
  • 节点级失败隔离, 遍历结束后汇总报告
  • 自定义浏览器请求头

示例:
  # 遍历两个县
  taxharvest sweep --year 2024 --county "SALT LAKE" --county UTAH

  # 抓取单个叶子
  taxharvest scrape --county "SALT LAKE" --agency "SALT LAKE CITY" --project "DEPOT DISTRICT"

  # 验证配置文件
  taxharvest --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags(targetURL, taxYear, 0, settleDelay, fuzzy); err != nil {
			return err
		}

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		o := core.Overrides{
			TargetURL: targetURL,
			OrgID:     orgID,
			TaxYear:   taxYear,
			DSN:       dsn,
			LogLevel:  logLevel,
		}
		if cmd.Flags().Changed("headless") {
			o.Headless = &headless
		}
		if cmd.Flags().Changed("fuzzy") {
			o.Fuzzy = &fuzzy
		}
		if settleDelay > 0 {
			o.Settle = secondsToDuration(settleDelay)
		}
		cfg.Apply(o)

		if err := utils.InitLogger(cfg.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validateConfig {
			return cmd.Help()
		}
		return runValidateConfig(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taxharvest %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// runValidateConfig 校验抓取配置和请求头, 打印脱敏后的有效头部
func runValidateConfig(ctx context.Context) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Harvest.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	hm, err := newHeaderManager()
	if err != nil {
		return err
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("请求头验证失败: %w", err)
	}

	snap, warnings, err := crawlers.NewResourceMonitor(appConfig.Harvest.Browser).Preflight(ctx)
	for _, w := range warnings {
		utils.Warnf("⚠️  %s", w)
	}
	if err != nil {
		return err
	}

	safe := hm.SafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("目标: %s  组织: %s  年度: %d", appConfig.Harvest.TargetURL, appConfig.Harvest.OrgID, appConfig.Harvest.TaxYear)
	utils.Infof("可用内存: %dMB  CPU: %.1f%%  核数: %d", snap.AvailableMB, snap.CPUPercent, snap.NumCPU)
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safe))
	for name, value := range safe {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

func newHeaderManager() (*core.HeaderManager, error) {
	hm, err := core.NewHeaderManager(headersFile, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := hm.Load(); err != nil {
		return nil, fmt.Errorf("加载请求头配置失败: %w", err)
	}
	return hm, nil
}

func openStore(ctx context.Context) (*storage.RateStore, error) {
	store, err := storage.Open(ctx, appConfig.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return store, nil
}

// newHarvester 组装浏览器会话、请求头和存储, 调用方负责关闭返回的存储
func newHarvester(ctx context.Context) (*core.Harvester, *storage.RateStore, error) {
	if err := appConfig.Harvest.Validate(); err != nil {
		return nil, nil, err
	}
	hm, err := newHeaderManager()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	h := core.NewHarvester(appConfig.Harvest, core.BrowserOpener(appConfig.Harvest, hm), store)
	return h, store, nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&headersFile, "headers-file", "", "请求头配置文件 (默认 configs/headers.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 抓取参数
	rootCmd.PersistentFlags().StringVarP(&targetURL, "url", "u", "", "查询页URL")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", "", "组织ID")
	rootCmd.PersistentFlags().IntVarP(&taxYear, "year", "y", 0, "税务年度")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "数据库连接 (sqlite文件路径或postgres://...)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().Float64Var(&fuzzy, "fuzzy", 0.92, "模糊匹配阈值, 0 关闭")
	rootCmd.PersistentFlags().IntVar(&settleDelay, "settle", 0, "统一覆盖各字段选择后的等待(秒)")

	rootCmd.AddCommand(versionCmd, scrapeCmd, sweepCmd, optionsCmd, probeCmd, reportCmd, ratesCmd, countiesCmd, agenciesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
