package models

import (
	"fmt"
	"strings"
)

// FieldKind 级联表单中的下拉字段
type FieldKind int

const (
	FieldTaxYear FieldKind = iota // 税务年度
	FieldCounty                   // 县
	FieldAgency                   // 机构
	FieldProject                  // 项目
)

// CascadeOrder 字段级联顺序: 上游字段变化后下游选项会被服务端重新填充
var CascadeOrder = []FieldKind{FieldTaxYear, FieldCounty, FieldAgency, FieldProject}

// Key 返回字段在页面 name/id 中出现的关键字
func (f FieldKind) Key() string {
	switch f {
	case FieldTaxYear:
		return "TaxYear"
	case FieldCounty:
		return "County"
	case FieldAgency:
		return "Agency"
	case FieldProject:
		return "Project"
	default:
		return ""
	}
}

// String 实现 fmt.Stringer
func (f FieldKind) String() string {
	if k := f.Key(); k != "" {
		return k
	}
	return fmt.Sprintf("FieldKind(%d)", int(f))
}

// Selector 返回定位该字段 <select> 元素的CSS选择器
func (f FieldKind) Selector() string {
	k := f.Key()
	return fmt.Sprintf(`select[name*="%s"], select[id*="%s"]`, k, k)
}

// Downstream 返回受该字段影响的下游字段
func (f FieldKind) Downstream() []FieldKind {
	for i, k := range CascadeOrder {
		if k == f {
			return CascadeOrder[i+1:]
		}
	}
	return nil
}

// Option 下拉框中的一个候选项
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// IsPlaceholder 判断是否为占位选项 ("-- Select --" 之类)
func (o Option) IsPlaceholder() bool {
	return strings.TrimSpace(o.Value) == "" || strings.TrimSpace(o.Label) == ""
}

// OptionList 某一时刻下拉框的可选项
// 仅在最近一次上游选择稳定之后有效
type OptionList []Option

// Values 返回所有选项值
func (l OptionList) Values() []string {
	out := make([]string, 0, len(l))
	for _, o := range l {
		out = append(out, o.Value)
	}
	return out
}

// Labels 返回所有选项文本
func (l OptionList) Labels() []string {
	out := make([]string, 0, len(l))
	for _, o := range l {
		out = append(out, o.Label)
	}
	return out
}

// MatchKind 选项匹配所使用的策略
type MatchKind string

const (
	MatchExactValue MatchKind = "exact_value"
	MatchExactLabel MatchKind = "exact_label"
	MatchSubstring  MatchKind = "substring"
	MatchFuzzy      MatchKind = "fuzzy"
	MatchNone       MatchKind = "none"
)

// MatchOutcome 匹配结果
type MatchOutcome struct {
	Kind   MatchKind
	Option Option
	Score  float64 // 仅 MatchFuzzy 有意义
}

// Matched 是否命中某个真实选项
func (m MatchOutcome) Matched() bool {
	return m.Kind != MatchNone && m.Kind != ""
}
