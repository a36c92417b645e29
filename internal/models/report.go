package models

import (
	"encoding/json"
	"time"
)

// SweepReport 遍历结束后写盘的报告
type SweepReport struct {
	TaskID    string    `json:"task_id"`
	TargetURL string    `json:"target_url"`
	OrgID     string    `json:"org_id"`
	TaxYear   int       `json:"tax_year"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	Result *TraversalResult `json:"result"`
	Errors []string         `json:"errors"`

	// 配置快照
	Config HarvestConfig `json:"config"`
}

// ToJSON 序列化为JSON
func (r *SweepReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
