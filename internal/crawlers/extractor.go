package crawlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
)

var (
	entityPattern   = regexp.MustCompile(`^\d{4}_`)
	entityAnywhere  = regexp.MustCompile(`\d{4}_`)
	ratePattern     = regexp.MustCompile(`^0\.\d{4,6}$`)
	rowSelectorPath = []string{
		`[role="grid"] [role="row"]`,
		`table tbody tr, table tr`,
		`tr, [role="row"]`,
	}
)

const cellSelector = `td, th, [role="gridcell"]`

// rate 列在行内的位置
type rateColumns struct {
	real, personal, central int
}

// ExtractOptions 解析参数
type ExtractOptions struct {
	NoDataPhrases []string
}

// ExtractedRow 结果表中的一行
type ExtractedRow struct {
	EntityName string
	Real       *float64
	Personal   *float64
	Central    *float64
}

// Primary 第一个非空税率
func (r ExtractedRow) Primary() float64 {
	v, _ := models.FirstRate(r.Real, r.Personal, r.Central)
	return v
}

// Extraction 一次解析的结果
type Extraction struct {
	Empty bool
	Rows  []ExtractedRow
	// HeaderValidated 为 true 表示税率按表头列名取值, 否则按出现顺序
	HeaderValidated bool
	Reason          string
}

// Extract 等待结果区域后解析当前页面
// 等待超时不算失败, 直接按当前页面内容解析
func Extract(ctx context.Context, s Session, opts ExtractOptions) (Extraction, error) {
	if err := s.WaitResults(ctx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return Extraction{}, err
		}
		utils.Debugf("等待结果区域超时, 按当前页面解析")
	}

	html, err := s.ResultsHTML(ctx)
	if err != nil {
		return Extraction{}, err
	}
	return ParseResults(html, opts)
}

// ParseResults 从页面HTML中解析实体税率表
func ParseResults(html string, opts ExtractOptions) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extraction{}, fmt.Errorf("解析结果HTML失败: %w", err)
	}

	body := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range opts.NoDataPhrases {
		if phrase != "" && strings.Contains(body, strings.ToLower(phrase)) {
			return Extraction{Empty: true, Reason: phrase}, nil
		}
	}

	cols, headerOK := findHeader(doc)

	for i, selector := range rowSelectorPath {
		sel := doc.Find(selector)
		if i == len(rowSelectorPath)-1 {
			sel = sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return entityAnywhere.MatchString(s.Text())
			})
		}
		rows := collectRows(sel, cols, headerOK)
		if len(rows) > 0 {
			if !headerOK {
				utils.Warnf("结果表未找到可识别的税率表头, 按列顺序赋值 (%d 行)", len(rows))
			}
			return Extraction{Rows: rows, HeaderValidated: headerOK}, nil
		}
	}

	return Extraction{Empty: true, Reason: "no entity rows"}, nil
}

// findHeader 寻找包含 Real/Personal/Centrally 列名的表头行
func findHeader(doc *goquery.Document) (rateColumns, bool) {
	cols := rateColumns{-1, -1, -1}
	found := false

	doc.Find(`tr, [role="row"]`).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		c := rateColumns{-1, -1, -1}
		rowCells(row, `th, td, [role="columnheader"], [role="gridcell"]`).Each(func(i int, cell *goquery.Selection) {
			label := strings.ToLower(strings.TrimSpace(cell.Text()))
			switch {
			case strings.Contains(label, "real"):
				c.real = i
			case strings.Contains(label, "personal"):
				c.personal = i
			case strings.Contains(label, "central"):
				c.central = i
			}
		})
		if c.real >= 0 && c.personal > c.real && c.central > c.personal {
			cols, found = c, true
			return false
		}
		return true
	})
	return cols, found
}

// rowCells 优先取直接子单元格, 避免嵌套表格的内容被算入
func rowCells(row *goquery.Selection, selector string) *goquery.Selection {
	cells := row.ChildrenFiltered(selector)
	if cells.Length() == 0 {
		cells = row.Find(selector)
	}
	return cells
}

func collectRows(sel *goquery.Selection, cols rateColumns, byHeader bool) []ExtractedRow {
	var out []ExtractedRow
	seen := make(map[string]bool)

	sel.Each(func(_ int, row *goquery.Selection) {
		cells := rowCells(row, cellSelector)
		if cells.Length() < 2 {
			return
		}
		texts := make([]string, cells.Length())
		cells.Each(func(i int, c *goquery.Selection) {
			texts[i] = strings.TrimSpace(c.Text())
		})

		name := texts[0]
		if !entityPattern.MatchString(name) {
			return
		}

		var r ExtractedRow
		if byHeader && cols.central < len(texts) {
			r = ExtractedRow{
				EntityName: name,
				Real:       parseRate(texts[cols.real]),
				Personal:   parseRate(texts[cols.personal]),
				Central:    parseRate(texts[cols.central]),
			}
		} else {
			r = positional(name, texts[1:])
		}
		if r.Real == nil && r.Personal == nil && r.Central == nil {
			return
		}

		key := rowKey(r)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, r)
	})
	return out
}

// positional 依次把税率形态的单元格赋给 real/personal/centrally
func positional(name string, cells []string) ExtractedRow {
	r := ExtractedRow{EntityName: name}
	slots := []**float64{&r.Real, &r.Personal, &r.Central}
	n := 0
	for _, t := range cells {
		if n == len(slots) {
			break
		}
		if v := parseRate(t); v != nil {
			*slots[n] = v
			n++
		}
	}
	return r
}

func parseRate(s string) *float64 {
	s = strings.TrimSpace(s)
	if !ratePattern.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func rowKey(r ExtractedRow) string {
	f := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return r.EntityName + "|" + f(r.Real) + "|" + f(r.Personal) + "|" + f(r.Central)
}
