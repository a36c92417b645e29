package models

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultTargetURL 犹他州税率查询页
const DefaultTargetURL = "https://taxrates.utah.gov/CDRAIncrementPaid700.aspx"

// HarvestConfig 抓取配置
type HarvestConfig struct {
	TargetURL   string `mapstructure:"target_url" json:"target_url"`
	LoginMarker string `mapstructure:"login_marker" json:"login_marker"` // 访客登录页URL特征
	GuestMarker string `mapstructure:"guest_marker" json:"guest_marker"` // 登录后的中间页URL特征
	GuestText   string `mapstructure:"guest_text" json:"guest_text"`     // 访客按钮文本(不区分大小写)

	OrgID   string `mapstructure:"org_id" json:"org_id"`
	TaxYear int    `mapstructure:"tax_year" json:"tax_year"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" json:"navigation_timeout"`
	ResultsTimeout    time.Duration `mapstructure:"results_timeout" json:"results_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" json:"ready_timeout"` // 等待下拉框出现

	// 各字段选择后的稳定等待
	SettleTaxYear time.Duration `mapstructure:"settle_tax_year" json:"settle_tax_year"`
	SettleCounty  time.Duration `mapstructure:"settle_county" json:"settle_county"`
	SettleAgency  time.Duration `mapstructure:"settle_agency" json:"settle_agency"`
	SettleProject time.Duration `mapstructure:"settle_project" json:"settle_project"`
	RenderDelay   time.Duration `mapstructure:"render_delay" json:"render_delay"` // 结果表渲染的额外等待

	NoDataPhrases  []string `mapstructure:"no_data_phrases" json:"no_data_phrases"`
	FuzzyThreshold float64  `mapstructure:"fuzzy_threshold" json:"fuzzy_threshold"` // 0 关闭模糊匹配

	Shards int `mapstructure:"shards" json:"shards"` // 并行会话数

	Browser BrowserConfig `mapstructure:"browser" json:"browser"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless       bool   `mapstructure:"headless" json:"headless"`
	Stealth        bool   `mapstructure:"stealth" json:"stealth"`
	BinPath        string `mapstructure:"bin_path" json:"bin_path,omitempty"`
	ViewportWidth  int    `mapstructure:"viewport_width" json:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height" json:"viewport_height"`
	NoSandbox      bool   `mapstructure:"no_sandbox" json:"no_sandbox"`

	// 启动前的主机资源检查阈值
	MinFreeMemoryMB int `mapstructure:"min_free_memory_mb" json:"min_free_memory_mb"`
	CPULoadWarn     int `mapstructure:"cpu_load_warn" json:"cpu_load_warn"`
}

// DefaultHarvestConfig 默认抓取配置
func DefaultHarvestConfig() HarvestConfig {
	return HarvestConfig{
		TargetURL:         DefaultTargetURL,
		LoginMarker:       "Login.aspx",
		GuestMarker:       "Guest.aspx",
		GuestText:         "guest",
		OrgID:             "default",
		TaxYear:           time.Now().Year(),
		NavigationTimeout: 60 * time.Second,
		ResultsTimeout:    15 * time.Second,
		ReadyTimeout:      15 * time.Second,
		SettleTaxYear:     2 * time.Second,
		SettleCounty:      3 * time.Second,
		SettleAgency:      3 * time.Second,
		SettleProject:     4 * time.Second,
		RenderDelay:       3 * time.Second,
		NoDataPhrases: []string{
			"No Participating Entities Found",
			"No entities found",
			"No data available",
		},
		FuzzyThreshold: 0.92,
		Shards:         1,
		Browser: BrowserConfig{
			Headless:        true,
			Stealth:         true,
			ViewportWidth:   1920,
			ViewportHeight:  1080,
			NoSandbox:       true,
			MinFreeMemoryMB: 512,
			CPULoadWarn:     90,
		},
	}
}

// SettleFor 返回某字段选择后的稳定等待时长
func (c *HarvestConfig) SettleFor(f FieldKind) time.Duration {
	switch f {
	case FieldTaxYear:
		return c.SettleTaxYear
	case FieldCounty:
		return c.SettleCounty
	case FieldAgency:
		return c.SettleAgency
	default:
		return c.SettleProject
	}
}

// Validate 验证配置
func (c *HarvestConfig) Validate() error {
	u, err := url.Parse(c.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "target_url", Reason: fmt.Sprintf("无效的目标URL: %q", c.TargetURL)}
	}
	if c.OrgID == "" {
		return &ValidationError{Field: "org_id", Reason: "组织ID不能为空"}
	}
	if c.TaxYear < 1990 || c.TaxYear > 2100 {
		return &ValidationError{Field: "tax_year", Reason: fmt.Sprintf("税务年度超出范围: %d", c.TaxYear)}
	}
	if c.NavigationTimeout <= 0 || c.ResultsTimeout <= 0 {
		return &ValidationError{Field: "timeouts", Reason: "超时时间必须大于0"}
	}
	for _, d := range []time.Duration{c.SettleTaxYear, c.SettleCounty, c.SettleAgency, c.SettleProject, c.RenderDelay} {
		if d < 0 || d > 2*time.Minute {
			return &ValidationError{Field: "settle", Reason: fmt.Sprintf("稳定等待必须在0-120秒之间, 当前值: %s", d)}
		}
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return &ValidationError{Field: "fuzzy_threshold", Reason: "模糊匹配阈值必须在0.0-1.0之间"}
	}
	if c.Shards < 1 || c.Shards > 16 {
		return &ValidationError{Field: "shards", Reason: fmt.Sprintf("并行会话数必须在1-16之间, 当前值: %d", c.Shards)}
	}
	return nil
}
