package models

import (
	"fmt"
	"time"
)

// NoDataEntity 无数据哨兵记录的实体名
// 用于区分"查询过但没有实体"和"从未查询"
const NoDataEntity = "NO_DATA"

// ScopeTuple 一个叶子节点的坐标
type ScopeTuple struct {
	County  string `json:"county" yaml:"county"`
	Agency  string `json:"agency" yaml:"agency"`
	Project string `json:"project" yaml:"project"`
	TaxYear int    `json:"tax_year" yaml:"tax_year"`
}

// String 返回便于日志阅读的坐标描述
func (s ScopeTuple) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", s.TaxYear, s.County, s.Agency, s.Project)
}

// RateRecord tax_rates 表中的一行
type RateRecord struct {
	ID           string  `json:"id"`
	OrgID        string  `json:"org_id"`
	SubmissionID *string `json:"submission_id,omitempty"`

	Scope      ScopeTuple `json:"scope"`
	EntityName string     `json:"entity_name"`

	// PrimaryRate 三个分项税率中第一个非空值, 哨兵行为0
	PrimaryRate           float64  `json:"rate"`
	RealPropertyRate      *float64 `json:"real_property_rate"`
	PersonalPropertyRate  *float64 `json:"personal_property_rate"`
	CentrallyAssessedRate *float64 `json:"centrally_assessed_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsNoData 是否为无数据哨兵行
func (r RateRecord) IsNoData() bool {
	return r.EntityName == NoDataEntity
}

// NewNoDataRecord 为空叶子构造哨兵行
func NewNoDataRecord(orgID string, submissionID *string, scope ScopeTuple) RateRecord {
	return RateRecord{
		OrgID:        orgID,
		SubmissionID: submissionID,
		Scope:        scope,
		EntityName:   NoDataEntity,
		PrimaryRate:  0,
	}
}

// FirstRate 按 real → personal → centrally 顺序返回第一个非空税率
func FirstRate(rates ...*float64) (float64, bool) {
	for _, r := range rates {
		if r != nil {
			return *r, true
		}
	}
	return 0, false
}

// RateFilter 查询已存储税率的条件, 空字段表示不限
type RateFilter struct {
	OrgID         string
	County        string
	Agency        string
	Project       string
	TaxYear       int
	IncludeNoData bool
	Limit         int
}

// CountySummary 按县聚合的存储统计
type CountySummary struct {
	County       string  `json:"county" yaml:"county"`
	Agencies     int     `json:"agencies" yaml:"agencies"`
	Projects     int     `json:"projects" yaml:"projects"`
	Entities     int     `json:"entities" yaml:"entities"`
	NoDataLeaves int     `json:"no_data_leaves" yaml:"no_data_leaves"`
	AverageRate  float64 `json:"average_rate" yaml:"average_rate"`
}

// AgencySummary 按机构聚合的存储统计
type AgencySummary struct {
	County      string  `json:"county" yaml:"county"`
	Agency      string  `json:"agency" yaml:"agency"`
	Projects    int     `json:"projects" yaml:"projects"`
	Entities    int     `json:"entities" yaml:"entities"`
	MinRate     float64 `json:"min_rate" yaml:"min_rate"`
	MaxRate     float64 `json:"max_rate" yaml:"max_rate"`
	AverageRate float64 `json:"average_rate" yaml:"average_rate"`
}

// StorageSummary 汇总报告
type StorageSummary struct {
	OrgID        string          `json:"org_id" yaml:"org_id"`
	TotalRows    int             `json:"total_rows" yaml:"total_rows"`
	NoDataLeaves int             `json:"no_data_leaves" yaml:"no_data_leaves"`
	Counties     []CountySummary `json:"counties" yaml:"counties"`
	Agencies     []AgencySummary `json:"agencies" yaml:"agencies"`
}
