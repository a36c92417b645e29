package crawlers

import (
	"context"
	"strings"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
)

// Committed 一次选择实际提交的值
type Committed struct {
	Field   models.FieldKind
	Value   string
	Label   string
	Outcome models.MatchOutcome
}

// Forced 是否走了强制写值的降级路径
func (c Committed) Forced() bool {
	return !c.Outcome.Matched()
}

// Driver 驱动级联下拉框的选择
type Driver struct {
	matcher *Matcher
}

// NewDriver 创建选择驱动
func NewDriver(matcher *Matcher) *Driver {
	if matcher == nil {
		matcher = NewMatcher(0)
	}
	return &Driver{matcher: matcher}
}

// Select 在 field 上选中与 desired 最匹配的选项并等待页面稳定
//
// 没有任何选项匹配时退化为直接写入 desired 并合成 change 事件。
// 任何浏览器层面的失败都包装为 *models.SelectionError。
func (d *Driver) Select(ctx context.Context, s Session, field models.FieldKind, desired string) (Committed, error) {
	fail := func(err error) (Committed, error) {
		return Committed{Field: field}, &models.SelectionError{Field: field, Value: desired, Cause: err}
	}

	raw, err := s.ReadOptions(ctx, field)
	if err != nil {
		return fail(err)
	}

	outcome := d.matcher.Match(desired, usable(raw))
	c := Committed{Field: field, Outcome: outcome}

	if outcome.Matched() {
		c.Value, c.Label = outcome.Option.Value, outcome.Option.Label
		if outcome.Kind != models.MatchExactValue {
			utils.Debugf("%s: %q 以 %s 方式匹配到 %q", field, desired, outcome.Kind, outcome.Option.Label)
		}
		if err := s.SelectValue(ctx, field, c.Value); err != nil {
			return fail(err)
		}
	} else {
		utils.Warnf("%s: 没有与 %q 匹配的选项, 强制写入原始值", field, desired)
		c.Value, c.Label = desired, desired
		if err := s.ForceValue(ctx, field, desired); err != nil {
			return fail(err)
		}
	}

	if err := s.Settle(ctx, field); err != nil {
		return fail(err)
	}
	return c, nil
}

// ListOptions 读取 field 当前的有效选项, 不等待
func ListOptions(ctx context.Context, s Session, field models.FieldKind) (models.OptionList, error) {
	raw, err := s.ReadOptions(ctx, field)
	if err != nil {
		return nil, err
	}
	return usable(raw), nil
}

// usable 去掉占位项并整理文本
func usable(raw []models.Option) models.OptionList {
	out := make(models.OptionList, 0, len(raw))
	for _, o := range raw {
		if o.IsPlaceholder() {
			continue
		}
		o.Label = strings.TrimSpace(o.Label)
		out = append(out, o)
	}
	return out
}
