package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/storage"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 TAXHARVEST_HARVEST_ORG_ID
const EnvPrefix = "TAXHARVEST"

// Config 应用程序配置
type Config struct {
	Harvest models.HarvestConfig `mapstructure:"harvest"`
	Storage storage.Config       `mapstructure:"storage"`
	Logging LoggingConfig        `mapstructure:"logging"`
	Output  OutputConfig         `mapstructure:"output"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 报告输出配置
type OutputConfig struct {
	ReportDir      string `mapstructure:"report_dir"`
	CompressReport bool   `mapstructure:"compress_report"`
}

// LogConfig 转换为 utils.LogConfig
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// LoadConfig 加载配置
// 优先级: 默认值 < 配置文件 < .env / 环境变量; 命令行参数由调用方最后覆盖
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在是正常情况
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warnf("读取.env失败: %v", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taxharvest"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	return &cfg, nil
}

// setDefaults 设置默认配置值
// AutomaticEnv 只对设置过默认值或出现在配置文件中的键生效, 所以每个键都要在这里登记
func setDefaults(v *viper.Viper) {
	d := models.DefaultHarvestConfig()

	v.SetDefault("harvest.target_url", d.TargetURL)
	v.SetDefault("harvest.login_marker", d.LoginMarker)
	v.SetDefault("harvest.guest_marker", d.GuestMarker)
	v.SetDefault("harvest.guest_text", d.GuestText)
	v.SetDefault("harvest.org_id", d.OrgID)
	v.SetDefault("harvest.tax_year", d.TaxYear)
	v.SetDefault("harvest.navigation_timeout", d.NavigationTimeout)
	v.SetDefault("harvest.results_timeout", d.ResultsTimeout)
	v.SetDefault("harvest.ready_timeout", d.ReadyTimeout)
	v.SetDefault("harvest.settle_tax_year", d.SettleTaxYear)
	v.SetDefault("harvest.settle_county", d.SettleCounty)
	v.SetDefault("harvest.settle_agency", d.SettleAgency)
	v.SetDefault("harvest.settle_project", d.SettleProject)
	v.SetDefault("harvest.render_delay", d.RenderDelay)
	v.SetDefault("harvest.no_data_phrases", d.NoDataPhrases)
	v.SetDefault("harvest.fuzzy_threshold", d.FuzzyThreshold)
	v.SetDefault("harvest.shards", d.Shards)

	v.SetDefault("harvest.browser.headless", d.Browser.Headless)
	v.SetDefault("harvest.browser.stealth", d.Browser.Stealth)
	v.SetDefault("harvest.browser.bin_path", "")
	v.SetDefault("harvest.browser.viewport_width", d.Browser.ViewportWidth)
	v.SetDefault("harvest.browser.viewport_height", d.Browser.ViewportHeight)
	v.SetDefault("harvest.browser.no_sandbox", d.Browser.NoSandbox)
	v.SetDefault("harvest.browser.min_free_memory_mb", d.Browser.MinFreeMemoryMB)
	v.SetDefault("harvest.browser.cpu_load_warn", d.Browser.CPULoadWarn)

	// dsn 为空时使用 XDG 数据目录
	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.report_dir", "output")
	v.SetDefault("output.compress_report", false)
}

// Overrides 命令行参数, 零值表示未指定
type Overrides struct {
	TargetURL string
	OrgID     string
	TaxYear   int
	Shards    int
	DSN       string
	LogLevel  string
	Headless  *bool
	Fuzzy     *float64
	Settle    time.Duration // 统一覆盖四个字段的稳定等待
}

// Apply 合并命令行参数到配置, 命令行优先
func (c *Config) Apply(o Overrides) {
	if o.TargetURL != "" {
		c.Harvest.TargetURL = o.TargetURL
	}
	if o.OrgID != "" {
		c.Harvest.OrgID = o.OrgID
	}
	if o.TaxYear > 0 {
		c.Harvest.TaxYear = o.TaxYear
	}
	if o.Shards > 0 {
		c.Harvest.Shards = o.Shards
	}
	if o.DSN != "" {
		c.Storage.DSN = o.DSN
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.Headless != nil {
		c.Harvest.Browser.Headless = *o.Headless
	}
	if o.Fuzzy != nil {
		c.Harvest.FuzzyThreshold = *o.Fuzzy
	}
	if o.Settle > 0 {
		c.Harvest.SettleTaxYear = o.Settle
		c.Harvest.SettleCounty = o.Settle
		c.Harvest.SettleAgency = o.Settle
		c.Harvest.SettleProject = o.Settle
	}
}
