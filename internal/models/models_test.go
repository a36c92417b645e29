package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://taxrates.utah.gov/CDRAIncrementPaid700.aspx", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHarvestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *HarvestConfig)
		wantErr bool
	}{
		{"默认配置", func(c *HarvestConfig) {}, false},
		{"目标URL无效", func(c *HarvestConfig) { c.TargetURL = "taxrates" }, true},
		{"组织ID为空", func(c *HarvestConfig) { c.OrgID = "" }, true},
		{"年度过小", func(c *HarvestConfig) { c.TaxYear = 1900 }, true},
		{"结果超时为0", func(c *HarvestConfig) { c.ResultsTimeout = 0 }, true},
		{"稳定等待为负", func(c *HarvestConfig) { c.SettleCounty = -time.Second }, true},
		{"模糊阈值无效", func(c *HarvestConfig) { c.FuzzyThreshold = 1.5 }, true},
		{"关闭模糊匹配", func(c *HarvestConfig) { c.FuzzyThreshold = 0 }, false},
		{"分片数过大", func(c *HarvestConfig) { c.Shards = 64 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultHarvestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var ve *ValidationError
			if err != nil && !errors.As(err, &ve) {
				t.Errorf("期望 *ValidationError, 实际 %T", err)
			}
		})
	}
}

func TestHarvestConfig_SettleFor(t *testing.T) {
	cfg := DefaultHarvestConfig()
	want := map[FieldKind]time.Duration{
		FieldTaxYear: 2 * time.Second,
		FieldCounty:  3 * time.Second,
		FieldAgency:  3 * time.Second,
		FieldProject: 4 * time.Second,
	}
	for f, d := range want {
		if got := cfg.SettleFor(f); got != d {
			t.Errorf("SettleFor(%s) = %s, want %s", f, got, d)
		}
	}
}

func TestFieldKind(t *testing.T) {
	if got := FieldCounty.Selector(); got != `select[name*="County"], select[id*="County"]` {
		t.Errorf("Selector() = %s", got)
	}

	down := FieldCounty.Downstream()
	if len(down) != 2 || down[0] != FieldAgency || down[1] != FieldProject {
		t.Errorf("Downstream(County) = %v", down)
	}
	if len(FieldProject.Downstream()) != 0 {
		t.Error("Project 不应有下游字段")
	}
	if FieldKind(9).String() != "FieldKind(9)" {
		t.Errorf("未知字段 String() = %s", FieldKind(9).String())
	}
}

func TestOption_IsPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want bool
	}{
		{"空值", Option{Value: "", Label: "-- Select County --"}, true},
		{"空文本", Option{Value: "3", Label: "  "}, true},
		{"正常选项", Option{Value: "3", Label: "BOX ELDER"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opt.IsPlaceholder(); got != tt.want {
				t.Errorf("IsPlaceholder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeCountyFilters(t *testing.T) {
	got := NormalizeCountyFilters([]string{" b", "B", "", "salt lake", "Salt Lake "})
	want := []string{"B", "SALT LAKE"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("NormalizeCountyFilters() = %v, want %v", got, want)
	}
}

func TestFirstRate(t *testing.T) {
	p := 0.000951
	c := 0.001255

	if v, ok := FirstRate(nil, &p, &c); !ok || v != p {
		t.Errorf("FirstRate() = %v,%v, want %v", v, ok, p)
	}
	if _, ok := FirstRate(nil, nil, nil); ok {
		t.Error("全部为空时不应返回税率")
	}
}

func TestNewNoDataRecord(t *testing.T) {
	scope := ScopeTuple{County: "BEAVER", Agency: "BEAVER CITY", Project: "MAIN ST", TaxYear: 2024}
	rec := NewNoDataRecord("org-1", nil, scope)

	if !rec.IsNoData() {
		t.Error("哨兵行应被识别为 NO_DATA")
	}
	if rec.PrimaryRate != 0 || rec.RealPropertyRate != nil {
		t.Error("哨兵行不应携带税率")
	}
	if rec.Scope != scope {
		t.Errorf("Scope = %v, want %v", rec.Scope, scope)
	}
}

func TestTraversalError(t *testing.T) {
	cause := &SelectionError{Field: FieldAgency, Value: "A2", Cause: ErrFieldNotFound}
	te := TraversalError{
		Level: LevelAgency,
		Scope: ScopeTuple{County: "BEAVER", Agency: "A2", TaxYear: 2024},
		Cause: cause,
	}

	if !strings.HasPrefix(te.Error(), "Agency A2 in BEAVER") {
		t.Errorf("Error() = %s", te.Error())
	}
	if !errors.Is(te, ErrFieldNotFound) {
		t.Error("errors.Is 应能穿透到 ErrFieldNotFound")
	}

	var se *SelectionError
	if !errors.As(te, &se) || se.Field != FieldAgency {
		t.Error("errors.As 应能取得 SelectionError")
	}

	data, err := json.Marshal(te)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"message":"Agency A2 in BEAVER`) {
		t.Errorf("JSON 中缺少可读消息: %s", data)
	}
}

func TestTraversalResult_Merge(t *testing.T) {
	a := &TraversalResult{TotalCounties: 1, TotalRates: 3, AvailableCounties: []string{"A", "B"}}
	b := &TraversalResult{
		TotalCounties: 1,
		TotalAgencies: 2,
		TotalRates:    4,
		NoDataLeaves:  1,
		Errors:        []TraversalError{{Level: LevelCounty, Scope: ScopeTuple{County: "B"}, Cause: errors.New("x")}},
	}
	a.Merge(b)
	a.Merge(nil)

	if a.TotalCounties != 2 || a.TotalRates != 7 || a.TotalAgencies != 2 || a.NoDataLeaves != 1 {
		t.Errorf("合并后统计不正确: %+v", a)
	}
	if msgs := a.ErrorMessages(); len(msgs) != 1 || msgs[0] != "County B: x" {
		t.Errorf("ErrorMessages() = %v", msgs)
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	h, err := CliHeaders{"User-Agent: Bot/1.0", "X-Trace:  abc "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if h.Get("User-Agent") != "Bot/1.0" || h.Get("X-Trace") != "abc" {
		t.Errorf("Parse() = %v", h)
	}

	if _, err := (CliHeaders{"NoColon"}).Parse(); err == nil {
		t.Error("缺少冒号应报错")
	}
	if _, err := (CliHeaders{": value"}).Parse(); err == nil {
		t.Error("空名称应报错")
	}
}

func TestSweepReport_JSON(t *testing.T) {
	report := &SweepReport{
		TaskID:    "task-123",
		TargetURL: DefaultTargetURL,
		OrgID:     "org-1",
		TaxYear:   2024,
		Result:    &TraversalResult{TotalCounties: 2, TotalRates: 9},
		Config:    DefaultHarvestConfig(),
	}

	data, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded SweepReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Result.TotalRates != 9 {
		t.Errorf("TotalRates不匹配: got %v", decoded.Result.TotalRates)
	}
}
