package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/taxharvest/internal/config"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
)

// DefaultUserAgent 浏览器会话和探测请求使用的默认UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0.0.0 Safari/537.36"

// HeaderManager 合并三层请求头: 默认 < 配置文件 < 命令行
// 实现 models.HeaderProvider
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
	loader    *config.HeaderConfigLoader

	once    sync.Once
	loadErr error
}

var _ models.HeaderProvider = (*HeaderManager)(nil)

// NewHeaderManager 创建头部管理器
// configFile 为空时使用 configs/headers.yaml, cliHeaders 形如 "Name: value"
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  defaultHeaders(),
		config:    make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		loader:    config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}
	return hm, nil
}

func defaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept-Language": []string{"en-US,en;q=0.9"},
	}
}

// Load 读取配置文件中的头部, 只执行一次
func (hm *HeaderManager) Load() error {
	hm.once.Do(func() {
		cfg, err := hm.loader.Load()
		if err != nil {
			utils.Errorf("加载HTTP头部配置失败: %v", err)
			hm.loadErr = err
			return
		}
		for name, value := range cfg.Headers {
			hm.config.Set(name, value)
		}
		if len(cfg.Headers) > 0 {
			utils.Debugf("已加载%d个HTTP头部配置: %s", len(cfg.Headers), hm.redactor.RedactToString(hm.config))
		}
	})
	return hm.loadErr
}

// Validate 依次校验 默认 → 配置 → 命令行 三层头部
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// Merged 按优先级合并后的头部
func (hm *HeaderManager) Merged() http.Header {
	out := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			out[name] = values
		}
	}
	return out
}

// SafeHeaders 脱敏后的合并头部, 用于日志和报告
func (hm *HeaderManager) SafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.Merged())
}

// GetHeaders 实现 models.HeaderProvider
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Load(); err != nil {
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.Merged(), nil
}
