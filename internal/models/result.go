package models

import "time"

// ProgressFunc 每完成一个叶子节点同步回调一次, 顺序与遍历顺序一致
type ProgressFunc func(county, agency, project string, ratesStored int)

// LeafRequest 单叶子抓取请求
type LeafRequest struct {
	TaxYear      int
	County       string
	Agency       string
	Project      string
	OrgID        string
	SubmissionID *string
}

// LeafResult 单叶子抓取结果
type LeafResult struct {
	Success bool         `json:"success"`
	Scraped int          `json:"scraped"`
	Stored  int          `json:"stored"`
	Rates   []RateRecord `json:"rates"`
	Empty   bool         `json:"empty"`
	Scope   ScopeTuple   `json:"scope"`
}

// SweepRequest 全量遍历请求
type SweepRequest struct {
	TaxYear       int
	OrgID         string
	CountyFilters []string // 为空表示所有县
	OnProgress    ProgressFunc
}

// AgencyResult 单个机构下的遍历结果
type AgencyResult struct {
	Agency     string   `json:"agency" yaml:"agency"`
	Projects   []string `json:"projects" yaml:"projects"`
	TotalRates int      `json:"total_rates" yaml:"total_rates"`
	NoData     int      `json:"no_data" yaml:"no_data"`
}

// CountyResult 单个县下的遍历结果
type CountyResult struct {
	County     string         `json:"county" yaml:"county"`
	Agencies   []AgencyResult `json:"agencies" yaml:"agencies"`
	TotalRates int            `json:"total_rates" yaml:"total_rates"`
}

// TraversalResult 一次遍历的汇总
type TraversalResult struct {
	AvailableCounties []string         `json:"available_counties" yaml:"available_counties"`
	CountyFilters     []string         `json:"county_filters,omitempty" yaml:"county_filters,omitempty"`
	TotalCounties     int              `json:"total_counties" yaml:"total_counties"`
	TotalAgencies     int              `json:"total_agencies" yaml:"total_agencies"`
	TotalProjects     int              `json:"total_projects" yaml:"total_projects"`
	TotalRates        int              `json:"total_rates" yaml:"total_rates"`
	NoDataLeaves      int              `json:"no_data_leaves" yaml:"no_data_leaves"`
	Counties          []CountyResult   `json:"counties" yaml:"counties"`
	Errors            []TraversalError `json:"errors" yaml:"-"`
	StartedAt         time.Time        `json:"started_at" yaml:"started_at"`
	Duration          float64          `json:"duration" yaml:"duration"` // 秒
}

// ErrorMessages 返回可读的错误列表
func (r *TraversalResult) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Merge 合并另一个分片的结果
func (r *TraversalResult) Merge(other *TraversalResult) {
	if other == nil {
		return
	}
	r.TotalCounties += other.TotalCounties
	r.TotalAgencies += other.TotalAgencies
	r.TotalProjects += other.TotalProjects
	r.TotalRates += other.TotalRates
	r.NoDataLeaves += other.NoDataLeaves
	r.Counties = append(r.Counties, other.Counties...)
	r.Errors = append(r.Errors, other.Errors...)
	if len(r.AvailableCounties) == 0 {
		r.AvailableCounties = other.AvailableCounties
	}
}

// OptionsSnapshot 页面默认状态下三个级联字段的选项
type OptionsSnapshot struct {
	TaxYears OptionList `json:"tax_years" yaml:"tax_years"`
	Counties OptionList `json:"counties" yaml:"counties"`
	Agencies OptionList `json:"agencies" yaml:"agencies"`
	Projects OptionList `json:"projects" yaml:"projects"`
}
