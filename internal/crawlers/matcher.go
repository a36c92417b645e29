package crawlers

import (
	"strings"
	"unicode/utf8"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/antzucaro/matchr"
)

// MatchStrategy 单个匹配策略, 未命中返回 false
type MatchStrategy interface {
	Kind() models.MatchKind
	Match(desired string, opts models.OptionList) (models.Option, float64, bool)
}

// Matcher 按顺序尝试各策略, 第一个命中的胜出
type Matcher struct {
	strategies []MatchStrategy
}

// NewMatcher 默认策略链: 精确值 → 精确文本 → 子串 → 模糊
// fuzzyThreshold 为 0 时不启用模糊匹配
func NewMatcher(fuzzyThreshold float64) *Matcher {
	strategies := []MatchStrategy{exactValue{}, exactLabel{}, substring{}}
	if fuzzyThreshold > 0 {
		strategies = append(strategies, fuzzy{threshold: fuzzyThreshold})
	}
	return &Matcher{strategies: strategies}
}

// NewMatcherWith 使用自定义策略链
func NewMatcherWith(strategies ...MatchStrategy) *Matcher {
	return &Matcher{strategies: strategies}
}

// Match 在选项中寻找 desired
func (m *Matcher) Match(desired string, opts models.OptionList) models.MatchOutcome {
	desired = strings.TrimSpace(desired)
	if desired == "" {
		return models.MatchOutcome{Kind: models.MatchNone}
	}
	for _, s := range m.strategies {
		if opt, score, ok := s.Match(desired, opts); ok {
			return models.MatchOutcome{Kind: s.Kind(), Option: opt, Score: score}
		}
	}
	return models.MatchOutcome{Kind: models.MatchNone}
}

type exactValue struct{}

func (exactValue) Kind() models.MatchKind { return models.MatchExactValue }

func (exactValue) Match(desired string, opts models.OptionList) (models.Option, float64, bool) {
	for _, o := range opts {
		if o.Value == desired {
			return o, 1, true
		}
	}
	return models.Option{}, 0, false
}

type exactLabel struct{}

func (exactLabel) Kind() models.MatchKind { return models.MatchExactLabel }

func (exactLabel) Match(desired string, opts models.OptionList) (models.Option, float64, bool) {
	for _, o := range opts {
		if strings.EqualFold(strings.TrimSpace(o.Label), desired) {
			return o, 1, true
		}
	}
	return models.Option{}, 0, false
}

// substring 不区分大小写的包含匹配
//
// 命中条件: 选项值包含 desired, 选项文本包含 desired, 或 desired 包含选项文本。
// 不接受 desired 包含选项值, 像 "1" 这样的短值几乎会出现在任何输入里。
// 多个选项命中时取长度最接近的一个 (短串长度 / 长串长度), 同分取靠前者。
type substring struct{}

func (substring) Kind() models.MatchKind { return models.MatchSubstring }

func (substring) Match(desired string, opts models.OptionList) (models.Option, float64, bool) {
	d := strings.ToLower(desired)
	var (
		best      models.Option
		bestScore float64
	)
	for _, o := range opts {
		v := strings.ToLower(o.Value)
		l := strings.ToLower(o.Label)
		if v == "" {
			continue
		}
		score := 0.0
		if strings.Contains(v, d) {
			score = max(score, lengthRatio(v, d))
		}
		if l != "" && (strings.Contains(l, d) || strings.Contains(d, l)) {
			score = max(score, lengthRatio(l, d))
		}
		if score > bestScore {
			best, bestScore = o, score
		}
	}
	if bestScore == 0 {
		return models.Option{}, 0, false
	}
	return best, bestScore, true
}

// lengthRatio 两串按字符数的 短/长 比值
func lengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la > lb {
		la, lb = lb, la
	}
	if lb == 0 {
		return 0
	}
	return float64(la) / float64(lb)
}

// fuzzy 对选项文本做 Jaro-Winkler, 取分数最高且不低于阈值者
type fuzzy struct {
	threshold float64
}

func (fuzzy) Kind() models.MatchKind { return models.MatchFuzzy }

func (f fuzzy) Match(desired string, opts models.OptionList) (models.Option, float64, bool) {
	d := strings.ToUpper(desired)
	var (
		best      models.Option
		bestScore float64
	)
	for _, o := range opts {
		score := matchr.JaroWinkler(d, strings.ToUpper(strings.TrimSpace(o.Label)), false)
		if score > bestScore {
			best, bestScore = o, score
		}
	}
	if bestScore >= f.threshold {
		return best, bestScore, true
	}
	return models.Option{}, 0, false
}
