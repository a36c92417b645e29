package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/taxharvest/internal/models"
)

// Exists 自然键是否已存在
func (s *RateStore) Exists(ctx context.Context, rec models.RateRecord) (bool, error) {
	query := `SELECT 1 FROM tax_rates
WHERE org_id = ? AND entity_name = ? AND year = ? AND county = ? AND agency = ? AND project = ?`
	args := []any{rec.OrgID, rec.EntityName, rec.Scope.TaxYear, rec.Scope.County, rec.Scope.Agency, rec.Scope.Project}
	if rec.SubmissionID == nil {
		query += ` AND submission_id IS NULL`
	} else {
		query += ` AND submission_id = ?`
		args = append(args, *rec.SubmissionID)
	}
	query += ` LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("查询已有记录失败: %w", err)
	}
	return true, nil
}

// Store 写入一批记录, 已存在的跳过
// 返回本次新写入的条数; 出错时返回出错前已写入的条数
func (s *RateStore) Store(ctx context.Context, records []models.RateRecord) (int, error) {
	stored := 0
	for i := range records {
		rec := &records[i]
		exists, err := s.Exists(ctx, *rec)
		if err != nil {
			return stored, err
		}
		if exists {
			continue
		}
		if err := s.insert(ctx, rec); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// StoreNoData 为空叶子写入一条 NO_DATA 哨兵行, 已存在则跳过
func (s *RateStore) StoreNoData(ctx context.Context, orgID string, submissionID *string, scope models.ScopeTuple) (bool, error) {
	n, err := s.Store(ctx, []models.RateRecord{models.NewNoDataRecord(orgID, submissionID, scope)})
	return n == 1, err
}

func (s *RateStore) insert(ctx context.Context, rec *models.RateRecord) error {
	now := s.now().UTC()
	if rec.ID == "" {
		rec.ID = models.NewRecordID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	var submission any
	if rec.SubmissionID != nil {
		submission = *rec.SubmissionID
	}

	query := `INSERT INTO tax_rates (
	id, org_id, submission_id, entity_name, year, rate,
	real_property_rate, personal_property_rate, centrally_assessed_rate,
	county, agency, project, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rec.ID, rec.OrgID, submission, rec.EntityName, rec.Scope.TaxYear, rec.PrimaryRate,
		nullable(rec.RealPropertyRate), nullable(rec.PersonalPropertyRate), nullable(rec.CentrallyAssessedRate),
		rec.Scope.County, rec.Scope.Agency, rec.Scope.Project, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入记录失败 [%s %s]: %w", rec.Scope, rec.EntityName, err)
	}
	return nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Rates 按条件查询已存储记录, 按 county/agency/project/entity 排序
func (s *RateStore) Rates(ctx context.Context, f models.RateFilter) ([]models.RateRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.OrgID != "" {
		add("org_id = ?", f.OrgID)
	}
	if f.TaxYear != 0 {
		add("year = ?", f.TaxYear)
	}
	if f.County != "" {
		add("county = ?", f.County)
	}
	if f.Agency != "" {
		add("agency = ?", f.Agency)
	}
	if f.Project != "" {
		add("project = ?", f.Project)
	}
	if !f.IncludeNoData {
		add("entity_name <> ?", models.NoDataEntity)
	}

	query := `SELECT id, org_id, submission_id, entity_name, year, rate,
	real_property_rate, personal_property_rate, centrally_assessed_rate,
	county, agency, project, created_at, updated_at
FROM tax_rates`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY county, agency, project, entity_name"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("查询税率失败: %w", err)
	}
	defer rows.Close()

	var out []models.RateRecord
	for rows.Next() {
		var (
			rec                     models.RateRecord
			submission              sql.NullString
			realRate, pers, central sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID, &rec.OrgID, &submission, &rec.EntityName, &rec.Scope.TaxYear, &rec.PrimaryRate,
			&realRate, &pers, &central,
			&rec.Scope.County, &rec.Scope.Agency, &rec.Scope.Project, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("读取税率失败: %w", err)
		}
		if submission.Valid {
			v := submission.String
			rec.SubmissionID = &v
		}
		rec.RealPropertyRate = floatPtr(realRate)
		rec.PersonalPropertyRate = floatPtr(pers)
		rec.CentrallyAssessedRate = floatPtr(central)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Counties 已存储记录中出现过的县
func (s *RateStore) Counties(ctx context.Context, orgID string) ([]string, error) {
	return s.distinct(ctx, "county", orgID, "")
}

// Agencies 某县下已存储记录中出现过的机构
func (s *RateStore) Agencies(ctx context.Context, orgID, county string) ([]string, error) {
	return s.distinct(ctx, "agency", orgID, county)
}

func (s *RateStore) distinct(ctx context.Context, column, orgID, county string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s FROM tax_rates WHERE %s <> ''", column, column)
	var args []any
	if orgID != "" {
		query += " AND org_id = ?"
		args = append(args, orgID)
	}
	if county != "" {
		query += " AND county = ?"
		args = append(args, county)
	}
	query += fmt.Sprintf(" ORDER BY %s", column)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("查询%s列表失败: %w", column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
