package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Session 一个已通过访客登录、停在查询表单上的浏览器会话
//
// 所有方法都会阻塞直到远端页面响应; 同一个 Session 只能顺序使用。
type Session interface {
	// ReadOptions 读取下拉框当前的全部选项 (含占位项), 不做任何等待
	ReadOptions(ctx context.Context, field models.FieldKind) ([]models.Option, error)
	// SelectValue 通过原生 select 交互选中某个值并触发 change
	SelectValue(ctx context.Context, field models.FieldKind, value string) error
	// ForceValue 直接写入原始值并合成 change 事件
	ForceValue(ctx context.Context, field models.FieldKind, value string) error
	// Settle 等待该字段选择引起的回发和下游填充完成
	Settle(ctx context.Context, field models.FieldKind) error
	// WaitResults 有界等待结果区域出现, 超时返回 context.DeadlineExceeded
	WaitResults(ctx context.Context) error
	// ResultsHTML 返回当前文档HTML
	ResultsHTML(ctx context.Context) (string, error)
	Close() error
}

const (
	jsReadOptions = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return null;
	return Array.from(el.options).map(o => ({value: o.value, label: (o.text || '').trim()}));
}`

	jsForceValue = `(sel, v) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.value = v;
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

	jsClickGuest = `(text) => {
	const els = Array.from(document.querySelectorAll('button, input[type=submit], input[type=button], a'));
	const el = els.find(e => ((e.innerText || e.value || '') + '').toLowerCase().includes(text));
	if (!el) return false;
	el.click();
	return true;
}`

	jsResultsReady = `(phrases) => {
	if (document.querySelector('[role="grid"] [role="row"], table td')) {
		const text = document.body ? document.body.innerText : '';
		if (/\d{4}_/.test(text)) return true;
	}
	const body = (document.body ? document.body.innerText : '').toLowerCase();
	return phrases.some(p => body.includes(p.toLowerCase()));
}`
)

// RodSession 基于 go-rod 的会话实现
type RodSession struct {
	cfg      models.HarvestConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

// OpenSession 启动浏览器, 打开目标页并完成访客登录
// 返回的会话停在包含级联下拉框的查询表单上
func OpenSession(ctx context.Context, cfg models.HarvestConfig, headers models.HeaderProvider) (_ *RodSession, err error) {
	s := &RodSession{cfg: cfg}

	// 任何一步失败都要回收已经启动的浏览器
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("浏览器操作panic: %v", r)
		}
		if err != nil {
			s.Close()
			var se *models.SessionError
			if !errors.As(err, &se) {
				err = &models.SessionError{Stage: "launch", Cause: err}
			}
		}
	}()

	if err := s.launch(ctx, headers); err != nil {
		return nil, err
	}
	if err := s.navigate(ctx); err != nil {
		return nil, err
	}
	if err := s.passLoginGate(ctx); err != nil {
		return nil, err
	}
	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	utils.Infof("✅ 会话已就绪: %s", cfg.TargetURL)
	return s, nil
}

func (s *RodSession) launch(ctx context.Context, headers models.HeaderProvider) error {
	bc := s.cfg.Browser

	l := launcher.New().
		Context(ctx).
		Headless(bc.Headless).
		NoSandbox(bc.NoSandbox).
		Set("ignore-certificate-errors")
	if bc.BinPath != "" {
		l = l.Bin(bc.BinPath)
	}
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		return &models.SessionError{Stage: "launch", Cause: fmt.Errorf("启动浏览器失败: %w", err)}
	}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		return &models.SessionError{Stage: "launch", Cause: fmt.Errorf("连接浏览器失败: %w", err)}
	}
	utils.Debugf("浏览器已启动: %s", controlURL)

	if bc.Stealth {
		s.page, err = stealth.Page(s.browser)
	} else {
		s.page, err = s.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return &models.SessionError{Stage: "launch", Cause: fmt.Errorf("创建页面失败: %w", err)}
	}

	if bc.ViewportWidth > 0 && bc.ViewportHeight > 0 {
		if err := s.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             bc.ViewportWidth,
			Height:            bc.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			utils.Warnf("设置视口失败: %v", err)
		}
	}

	if headers != nil {
		h, err := headers.GetHeaders()
		if err != nil {
			return &models.SessionError{Stage: "launch", Cause: fmt.Errorf("获取HTTP头部失败: %w", err)}
		}
		if err := s.applyHeaders(h); err != nil {
			return &models.SessionError{Stage: "launch", Cause: err}
		}
	}
	return nil
}

func (s *RodSession) applyHeaders(h http.Header) error {
	var dict []string
	for name, values := range h {
		// 浏览器自带 UA 和编码协商
		if strings.EqualFold(name, "Accept-Encoding") || len(values) == 0 {
			continue
		}
		if strings.EqualFold(name, "User-Agent") {
			if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: values[0]}); err != nil {
				return fmt.Errorf("设置User-Agent失败: %w", err)
			}
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) == 0 {
		return nil
	}
	if _, err := s.page.SetExtraHeaders(dict); err != nil {
		return fmt.Errorf("设置额外请求头失败: %w", err)
	}
	return nil
}

func (s *RodSession) navigate(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(s.cfg.TargetURL); err != nil {
		return &models.SessionError{Stage: "navigate", Cause: fmt.Errorf("打开目标页失败: %w", err)}
	}
	if err := p.WaitLoad(); err != nil {
		return &models.SessionError{Stage: "navigate", Cause: fmt.Errorf("等待页面加载失败: %w", err)}
	}
	return nil
}

func (s *RodSession) currentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// passLoginGate 处理访客登录页和登录后的中间页
func (s *RodSession) passLoginGate(ctx context.Context) error {
	if !strings.Contains(s.currentURL(), s.cfg.LoginMarker) {
		return nil
	}
	utils.Info("检测到登录页, 尝试以访客身份进入")

	p := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout)
	defer p.CancelTimeout()

	wait := p.WaitNavigation(proto.PageLifecycleEventNameLoad)
	res, err := s.page.Context(ctx).Eval(jsClickGuest, strings.ToLower(s.cfg.GuestText))
	if err != nil {
		return &models.SessionError{Stage: "login", Cause: fmt.Errorf("查找访客按钮失败: %w", err)}
	}
	if res.Value.Bool() {
		// 导航超时不致命, 后面还会检查下拉框
		wait()
	} else {
		utils.Warn("登录页上未找到访客按钮")
	}

	if strings.Contains(s.currentURL(), s.cfg.GuestMarker) {
		utils.Debugf("停在访客中间页, 重新打开目标页")
		return s.navigate(ctx)
	}
	return nil
}

func (s *RodSession) waitReady(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.cfg.ReadyTimeout)
	defer p.CancelTimeout()

	if _, err := p.Element("select"); err != nil {
		return &models.SessionError{Stage: "ready", Cause: fmt.Errorf("%w: %v", models.ErrNoSelectableFields, err)}
	}
	return nil
}

func (s *RodSession) live(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.page == nil {
		return nil, models.ErrSessionClosed
	}
	return s.page.Context(ctx), nil
}

// ReadOptions 实现 Session
func (s *RodSession) ReadOptions(ctx context.Context, field models.FieldKind) ([]models.Option, error) {
	p, err := s.live(ctx)
	if err != nil {
		return nil, err
	}
	res, err := p.Eval(jsReadOptions, field.Selector())
	if err != nil {
		return nil, fmt.Errorf("读取%s选项失败: %w", field, err)
	}
	if res.Value.Nil() {
		return nil, fmt.Errorf("%w: %s", models.ErrFieldNotFound, field)
	}
	var opts []models.Option
	if err := res.Value.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("解析%s选项失败: %w", field, err)
	}
	return opts, nil
}

// SelectValue 实现 Session
func (s *RodSession) SelectValue(ctx context.Context, field models.FieldKind, value string) error {
	p, err := s.live(ctx)
	if err != nil {
		return err
	}
	tp := p.Timeout(s.cfg.ReadyTimeout)
	defer tp.CancelTimeout()

	el, err := tp.Element(field.Selector())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrFieldNotFound, field, err)
	}
	sel := fmt.Sprintf(`option[value="%s"]`, cssEscape(value))
	if err := el.Select([]string{sel}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("选择%s=%q失败: %w", field, value, err)
	}
	return nil
}

// ForceValue 实现 Session
func (s *RodSession) ForceValue(ctx context.Context, field models.FieldKind, value string) error {
	p, err := s.live(ctx)
	if err != nil {
		return err
	}
	res, err := p.Eval(jsForceValue, field.Selector(), value)
	if err != nil {
		return fmt.Errorf("强制设置%s失败: %w", field, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: %s", models.ErrFieldNotFound, field)
	}
	return nil
}

// Settle 实现 Session
// 固定等待该字段的稳定间隔, 再有界等待页面加载和DOM稳定
func (s *RodSession) Settle(ctx context.Context, field models.FieldKind) error {
	p, err := s.live(ctx)
	if err != nil {
		return err
	}
	delay := s.cfg.SettleFor(field)
	if err := sleepCtx(ctx, delay); err != nil {
		return err
	}

	bound := delay + 5*time.Second
	tp := p.Timeout(bound)
	defer tp.CancelTimeout()
	if err := tp.WaitStable(300 * time.Millisecond); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		utils.Debugf("%s 选择后页面未在 %s 内稳定: %v", field, bound, err)
	}
	return nil
}

// WaitResults 实现 Session
func (s *RodSession) WaitResults(ctx context.Context) error {
	p, err := s.live(ctx)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.ResultsTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		res, err := p.Context(wctx).Eval(jsResultsReady, s.cfg.NoDataPhrases)
		if err == nil && res.Value.Bool() {
			break
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return context.DeadlineExceeded
		case <-ticker.C:
		}
	}
	return sleepCtx(ctx, s.cfg.RenderDelay)
}

// ResultsHTML 实现 Session
func (s *RodSession) ResultsHTML(ctx context.Context) (string, error) {
	p, err := s.live(ctx)
	if err != nil {
		return "", err
	}
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("读取页面HTML失败: %w", err)
	}
	return html, nil
}

// Close 关闭浏览器, 可重复调用
func (s *RodSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.closeErr = fmt.Errorf("关闭浏览器失败: %w", err)
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		utils.Debugf("浏览器已关闭")
	})
	return s.closeErr
}

func cssEscape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
