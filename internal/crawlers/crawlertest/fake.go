// Package crawlertest 提供不依赖浏览器的 Session 实现, 供单元测试使用
package crawlertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/taxharvest/internal/crawlers"
	"github.com/RecoveryAshes/taxharvest/internal/models"
)

// Placeholder 每个下拉框最前面的占位项
var Placeholder = models.Option{Value: "", Label: "-- Select --"}

// NoRecordsHTML 没有配置结果页时返回的页面
const NoRecordsHTML = `<html><body><div id="results">No Participating Entities Found</div></body></html>`

// Site 一个脚本化的级联表单
//
// Agencies 以县的 value 为键, Projects 以 "县/机构" 为键,
// Results 以 "县/机构/项目" 为键。
type Site struct {
	TaxYears []models.Option
	Counties []models.Option
	Agencies map[string][]models.Option
	Projects map[string][]models.Option
	Results  map[string]string

	// FailSelect 以 "Field=value" 为键注入选择失败
	FailSelect map[string]error
	// FailResults 以 "县/机构/项目" 为键注入读取结果失败
	FailResults map[string]error
	// OpenErr 非空时 Open 直接失败
	OpenErr error
	// Missing 中的字段在页面上不存在, 读取选项返回 ErrFieldNotFound
	Missing map[models.FieldKind]bool

	mu       sync.Mutex
	opened   int
	closed   int
	sessions []*Session
}

// Open 满足 core.SessionOpener
func (s *Site) Open(ctx context.Context) (crawlers.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, &models.SessionError{Stage: "launch", Cause: s.OpenErr}
	}
	sess := &Session{site: s, selected: make(map[models.FieldKind]string)}
	s.opened++
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

// Opened 已打开的会话数
func (s *Site) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Closed 已关闭的会话数
func (s *Site) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sessions 返回打开过的所有会话
func (s *Site) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions...)
}

// Session 一个假的浏览器会话
type Session struct {
	site     *Site
	mu       sync.Mutex
	selected map[models.FieldKind]string
	closed   bool
	forced   []string
	settled  []models.FieldKind
}

var _ crawlers.Session = (*Session)(nil)

func (s *Session) key(fields ...models.FieldKind) string {
	k := ""
	for i, f := range fields {
		if i > 0 {
			k += "/"
		}
		k += s.selected[f]
	}
	return k
}

func (s *Session) options(field models.FieldKind) []models.Option {
	var opts []models.Option
	switch field {
	case models.FieldTaxYear:
		opts = s.site.TaxYears
	case models.FieldCounty:
		opts = s.site.Counties
	case models.FieldAgency:
		opts = s.site.Agencies[s.selected[models.FieldCounty]]
	case models.FieldProject:
		opts = s.site.Projects[s.key(models.FieldCounty, models.FieldAgency)]
	}
	return append([]models.Option{Placeholder}, opts...)
}

// ReadOptions 实现 crawlers.Session
func (s *Session) ReadOptions(ctx context.Context, field models.FieldKind) ([]models.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if s.site.Missing[field] {
		return nil, fmt.Errorf("%w: %s", models.ErrFieldNotFound, field)
	}
	return s.options(field), nil
}

// SelectValue 实现 crawlers.Session, 值不在选项中时报错
func (s *Session) SelectValue(ctx context.Context, field models.FieldKind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.site.FailSelect[fmt.Sprintf("%s=%s", field, value)]; err != nil {
		return err
	}
	for _, o := range s.options(field) {
		if o.Value == value && !o.IsPlaceholder() {
			s.set(field, value)
			return nil
		}
	}
	return fmt.Errorf("option %q not present in %s", value, field)
}

// ForceValue 实现 crawlers.Session
func (s *Session) ForceValue(ctx context.Context, field models.FieldKind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.site.FailSelect[fmt.Sprintf("%s=%s", field, value)]; err != nil {
		return err
	}
	s.forced = append(s.forced, fmt.Sprintf("%s=%s", field, value))
	s.set(field, value)
	return nil
}

// set 写入选择并清空下游字段
func (s *Session) set(field models.FieldKind, value string) {
	s.selected[field] = value
	for _, d := range field.Downstream() {
		delete(s.selected, d)
	}
}

// Settle 实现 crawlers.Session
func (s *Session) Settle(ctx context.Context, field models.FieldKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.settled = append(s.settled, field)
	return nil
}

// WaitResults 实现 crawlers.Session
func (s *Session) WaitResults(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx)
}

// ResultsHTML 实现 crawlers.Session
func (s *Session) ResultsHTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	k := s.key(models.FieldCounty, models.FieldAgency, models.FieldProject)
	if err := s.site.FailResults[k]; err != nil {
		return "", err
	}
	if html, ok := s.site.Results[k]; ok {
		return html, nil
	}
	return NoRecordsHTML, nil
}

// Close 实现 crawlers.Session, 可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.site.mu.Lock()
	s.site.closed++
	s.site.mu.Unlock()
	return nil
}

// Selected 当前字段的选中值
func (s *Session) Selected(field models.FieldKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[field]
}

// Forced 走了强制写值路径的选择, 形如 "County=X"
func (s *Session) Forced() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.forced...)
}

// Settled 按顺序记录的 Settle 调用
func (s *Session) Settled() []models.FieldKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FieldKind(nil), s.settled...)
}

func (s *Session) check(ctx context.Context) error {
	if s.closed {
		return models.ErrSessionClosed
	}
	return ctx.Err()
}

// RatesTable 生成带表头的结果表, 每行为 实体名 + 三个税率文本
func RatesTable(rows ...[4]string) string {
	html := `<html><body><table><thead><tr><th>Entity</th><th>Real Property</th><th>Personal Property</th><th>Centrally Assessed</th></tr></thead><tbody>`
	for _, r := range rows {
		html += fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>", r[0], r[1], r[2], r[3])
	}
	return html + "</tbody></table></body></html>"
}
