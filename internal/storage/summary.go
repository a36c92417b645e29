package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RecoveryAshes/taxharvest/internal/models"
)

// Summary 按县、按机构聚合已存储的税率
func (s *RateStore) Summary(ctx context.Context, orgID string) (*models.StorageSummary, error) {
	summary := &models.StorageSummary{OrgID: orgID}

	counties, err := s.countySummaries(ctx, orgID)
	if err != nil {
		return nil, err
	}
	summary.Counties = counties
	for _, c := range counties {
		summary.TotalRows += c.Entities + c.NoDataLeaves
		summary.NoDataLeaves += c.NoDataLeaves
	}

	agencies, err := s.agencySummaries(ctx, orgID)
	if err != nil {
		return nil, err
	}
	summary.Agencies = agencies
	return summary, nil
}

func (s *RateStore) orgClause(orgID string) (string, []any) {
	if orgID == "" {
		return "", nil
	}
	return " WHERE org_id = ?", []any{orgID}
}

func (s *RateStore) countySummaries(ctx context.Context, orgID string) ([]models.CountySummary, error) {
	where, args := s.orgClause(orgID)
	query := `SELECT county,
	COUNT(DISTINCT agency),
	COUNT(DISTINCT agency || '|' || project),
	SUM(CASE WHEN entity_name <> 'NO_DATA' THEN 1 ELSE 0 END),
	SUM(CASE WHEN entity_name = 'NO_DATA' THEN 1 ELSE 0 END),
	AVG(CASE WHEN entity_name <> 'NO_DATA' THEN rate END)
FROM tax_rates` + where + `
GROUP BY county
ORDER BY county`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("按县汇总失败: %w", err)
	}
	defer rows.Close()

	var out []models.CountySummary
	for rows.Next() {
		var (
			c   models.CountySummary
			avg sql.NullFloat64
		)
		if err := rows.Scan(&c.County, &c.Agencies, &c.Projects, &c.Entities, &c.NoDataLeaves, &avg); err != nil {
			return nil, fmt.Errorf("读取县汇总失败: %w", err)
		}
		c.AverageRate = avg.Float64
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *RateStore) agencySummaries(ctx context.Context, orgID string) ([]models.AgencySummary, error) {
	where, args := s.orgClause(orgID)
	query := `SELECT county, agency,
	COUNT(DISTINCT project),
	SUM(CASE WHEN entity_name <> 'NO_DATA' THEN 1 ELSE 0 END),
	MIN(CASE WHEN entity_name <> 'NO_DATA' THEN rate END),
	MAX(CASE WHEN entity_name <> 'NO_DATA' THEN rate END),
	AVG(CASE WHEN entity_name <> 'NO_DATA' THEN rate END)
FROM tax_rates` + where + `
GROUP BY county, agency
ORDER BY county, agency`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("按机构汇总失败: %w", err)
	}
	defer rows.Close()

	var out []models.AgencySummary
	for rows.Next() {
		var (
			a           models.AgencySummary
			lo, hi, avg sql.NullFloat64
		)
		if err := rows.Scan(&a.County, &a.Agency, &a.Projects, &a.Entities, &lo, &hi, &avg); err != nil {
			return nil, fmt.Errorf("读取机构汇总失败: %w", err)
		}
		a.MinRate, a.MaxRate, a.AverageRate = lo.Float64, hi.Float64, avg.Float64
		out = append(out, a)
	}
	return out, rows.Err()
}
