package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/crawlers"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
)

// SessionOpener 打开一个停在查询表单上的会话
type SessionOpener func(ctx context.Context) (crawlers.Session, error)

// BrowserOpener 返回基于 go-rod 的 SessionOpener
func BrowserOpener(cfg models.HarvestConfig, headers models.HeaderProvider) SessionOpener {
	return func(ctx context.Context) (crawlers.Session, error) {
		return crawlers.OpenSession(ctx, cfg, headers)
	}
}

// RateRepository 叶子结果的持久化
type RateRepository interface {
	Store(ctx context.Context, records []models.RateRecord) (int, error)
	StoreNoData(ctx context.Context, orgID string, submissionID *string, scope models.ScopeTuple) (bool, error)
}

// Harvester 遍历 县 → 机构 → 项目 并保存每个叶子的税率表
type Harvester struct {
	cfg     models.HarvestConfig
	open    SessionOpener
	store   RateRepository
	driver  *crawlers.Driver
	extract crawlers.ExtractOptions
}

// NewHarvester 创建遍历器
func NewHarvester(cfg models.HarvestConfig, open SessionOpener, store RateRepository) *Harvester {
	return &Harvester{
		cfg:     cfg,
		open:    open,
		store:   store,
		driver:  crawlers.NewDriver(crawlers.NewMatcher(cfg.FuzzyThreshold)),
		extract: crawlers.ExtractOptions{NoDataPhrases: cfg.NoDataPhrases},
	}
}

func (h *Harvester) year(y int) int {
	if y > 0 {
		return y
	}
	return h.cfg.TaxYear
}

func (h *Harvester) org(id string) string {
	if id != "" {
		return id
	}
	return h.cfg.OrgID
}

// ScrapeLeaf 抓取单个 (县, 机构, 项目) 叶子
//
// 会话建立失败返回 *models.SessionError, 字段无法提交返回 *models.SelectionError,
// 写库失败返回 *models.PersistenceError, 其 Stored 为失败前已写入的行数。
// 空结果写入一条 NO_DATA 哨兵记录。
func (h *Harvester) ScrapeLeaf(ctx context.Context, req models.LeafRequest) (*models.LeafResult, error) {
	sess, err := h.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	year := h.year(req.TaxYear)
	if _, err := h.driver.Select(ctx, sess, models.FieldTaxYear, strconv.Itoa(year)); err != nil {
		return nil, err
	}

	scope := models.ScopeTuple{TaxYear: year}
	for _, step := range []struct {
		field   models.FieldKind
		desired string
		label   *string
	}{
		{models.FieldCounty, req.County, &scope.County},
		{models.FieldAgency, req.Agency, &scope.Agency},
		{models.FieldProject, req.Project, &scope.Project},
	} {
		c, err := h.driver.Select(ctx, sess, step.field, step.desired)
		if err != nil {
			return nil, err
		}
		*step.label = c.Label
	}

	out, err := h.leaf(ctx, sess, h.org(req.OrgID), req.SubmissionID, scope)
	if err != nil {
		return nil, err
	}

	utils.Infof("✅ %s: 解析%d条, 新增%d条", scope, out.Scraped, out.Stored)
	return out, nil
}

// leaf 解析当前结果并写库, 调用前四个字段都已选好
func (h *Harvester) leaf(ctx context.Context, sess crawlers.Session, orgID string, submissionID *string, scope models.ScopeTuple) (out *models.LeafResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("处理叶子时发生panic: %v", r)
		}
	}()

	ext, err := crawlers.Extract(ctx, sess, h.extract)
	if err != nil {
		return nil, err
	}

	out = &models.LeafResult{Success: true, Scope: scope, Rates: []models.RateRecord{}}
	log := utils.WithScope(scope.County, scope.Agency, scope.Project)

	if ext.Empty {
		if _, err := h.store.StoreNoData(ctx, orgID, submissionID, scope); err != nil {
			return nil, &models.PersistenceError{Scope: scope, Cause: err}
		}
		out.Empty = true
		log.Debug().Str("reason", ext.Reason).Msg("无数据, 已写入NO_DATA记录")
		return out, nil
	}

	records := make([]models.RateRecord, 0, len(ext.Rows))
	for _, row := range ext.Rows {
		records = append(records, models.RateRecord{
			OrgID:                 orgID,
			SubmissionID:          submissionID,
			Scope:                 scope,
			EntityName:            row.EntityName,
			PrimaryRate:           row.Primary(),
			RealPropertyRate:      row.Real,
			PersonalPropertyRate:  row.Personal,
			CentrallyAssessedRate: row.Central,
		})
	}

	stored, err := h.store.Store(ctx, records)
	if err != nil {
		return nil, &models.PersistenceError{Scope: scope, Stored: stored, Cause: err}
	}
	out.Scraped = len(records)
	out.Stored = stored
	out.Rates = records
	log.Debug().Int("entities", len(records)).Int("stored", stored).Bool("header", ext.HeaderValidated).Msg("叶子完成")
	return out, nil
}

// Sweep 遍历所有 (或过滤后的) 县下的全部叶子
//
// 只有会话建立、税务年度选择和县列表读取失败会返回错误;
// 县/机构/项目层面的失败记录在结果的 Errors 中, 遍历继续。
func (h *Harvester) Sweep(ctx context.Context, req models.SweepRequest) (*models.TraversalResult, error) {
	start := time.Now()
	filters := models.NormalizeCountyFilters(req.CountyFilters)
	result := &models.TraversalResult{
		CountyFilters: filters,
		Counties:      []models.CountyResult{},
		Errors:        []models.TraversalError{},
		StartedAt:     start,
	}
	defer func() { result.Duration = time.Since(start).Seconds() }()

	sess, err := h.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	year := h.year(req.TaxYear)
	if _, err := h.driver.Select(ctx, sess, models.FieldTaxYear, strconv.Itoa(year)); err != nil {
		return nil, err
	}

	counties, err := listCounties(ctx, sess)
	if err != nil {
		return nil, err
	}
	result.AvailableCounties = counties.Labels()

	restricted := len(req.CountyFilters) > 0
	selected := filterCounties(counties, filters, restricted)
	if restricted {
		utils.Infof("县过滤 (%s): 处理 %d / %d 个县", strings.Join(filters, ", "), len(selected), len(counties))
	}
	if len(selected) == 0 {
		utils.Warnf("%v, 终止遍历", models.ErrNoCountiesMatched)
		return result, nil
	}
	result.TotalCounties = len(selected)

	w := &walker{h: h, sess: sess, result: result, year: year, orgID: h.org(req.OrgID), progress: req.OnProgress}
	for _, county := range selected {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		w.county(ctx, county)
	}

	utils.Infof("🏁 遍历完成: %d个县, %d个机构, %d个项目, 新增%d条税率, %d个错误",
		result.TotalCounties, result.TotalAgencies, result.TotalProjects, result.TotalRates, len(result.Errors))
	return result, nil
}

// walker 一次遍历的可变状态
type walker struct {
	h        *Harvester
	sess     crawlers.Session
	result   *models.TraversalResult
	year     int
	orgID    string
	progress models.ProgressFunc
}

func (w *walker) fail(level models.TraversalLevel, scope models.ScopeTuple, err error) {
	te := models.TraversalError{Level: level, Scope: scope, Cause: err}
	utils.Errorf("❌ %s", te.Error())
	w.result.Errors = append(w.result.Errors, te)
}

func (w *walker) county(ctx context.Context, county models.Option) {
	scope := models.ScopeTuple{County: county.Label, TaxYear: w.year}
	cr := models.CountyResult{County: county.Label, Agencies: []models.AgencyResult{}}
	defer func() { w.result.Counties = append(w.result.Counties, cr) }()

	agencies, err := w.selectAndList(ctx, models.FieldCounty, county.Value, models.FieldAgency)
	if err != nil {
		w.fail(models.LevelCounty, scope, err)
		return
	}
	utils.Infof("📍 %s: %d个机构", county.Label, len(agencies))

	for _, agency := range agencies {
		if ctx.Err() != nil {
			return
		}
		ar := w.agency(ctx, scope, agency)
		cr.Agencies = append(cr.Agencies, ar)
		cr.TotalRates += ar.TotalRates
	}
}

func (w *walker) agency(ctx context.Context, parent models.ScopeTuple, agency models.Option) models.AgencyResult {
	scope := parent
	scope.Agency = agency.Label
	ar := models.AgencyResult{Agency: agency.Label, Projects: []string{}}
	w.result.TotalAgencies++

	projects, err := w.selectAndList(ctx, models.FieldAgency, agency.Value, models.FieldProject)
	if err != nil {
		w.fail(models.LevelAgency, scope, err)
		return ar
	}

	for _, project := range projects {
		if ctx.Err() != nil {
			return ar
		}
		leafScope := scope
		leafScope.Project = project.Label
		w.result.TotalProjects++
		ar.Projects = append(ar.Projects, project.Label)

		if _, err := w.h.driver.Select(ctx, w.sess, models.FieldProject, project.Value); err != nil {
			w.fail(models.LevelProject, leafScope, err)
			continue
		}
		out, err := w.h.leaf(ctx, w.sess, w.orgID, nil, leafScope)
		if err != nil {
			// 写库中途失败时已落库的行仍计入总数
			var pe *models.PersistenceError
			if errors.As(err, &pe) {
				ar.TotalRates += pe.Stored
				w.result.TotalRates += pe.Stored
			}
			w.fail(models.LevelProject, leafScope, err)
			continue
		}

		if out.Empty {
			ar.NoData++
			w.result.NoDataLeaves++
		}
		ar.TotalRates += out.Stored
		w.result.TotalRates += out.Stored
		if w.progress != nil {
			w.progress(leafScope.County, leafScope.Agency, leafScope.Project, out.Stored)
		}
	}
	return ar
}

// selectAndList 选中 field 后读取下游字段的选项
func (w *walker) selectAndList(ctx context.Context, field models.FieldKind, value string, next models.FieldKind) (models.OptionList, error) {
	if _, err := w.h.driver.Select(ctx, w.sess, field, value); err != nil {
		return nil, err
	}
	opts, err := crawlers.ListOptions(ctx, w.sess, next)
	if err != nil {
		return nil, fmt.Errorf("读取%s选项失败: %w", next, err)
	}
	return opts, nil
}

// ListOptions 返回页面默认状态下的县/机构/项目选项, 不选择税务年度也不解析结果
func (h *Harvester) ListOptions(ctx context.Context) (*models.OptionsSnapshot, error) {
	sess, err := h.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	snap := &models.OptionsSnapshot{}
	for _, f := range []struct {
		field models.FieldKind
		dst   *models.OptionList
	}{
		{models.FieldTaxYear, &snap.TaxYears},
		{models.FieldCounty, &snap.Counties},
		{models.FieldAgency, &snap.Agencies},
		{models.FieldProject, &snap.Projects},
	} {
		opts, err := crawlers.ListOptions(ctx, sess, f.field)
		switch {
		case errors.Is(err, models.ErrFieldNotFound):
			// 未选上游时部分下游字段不渲染
			opts = models.OptionList{}
		case err != nil:
			return nil, fmt.Errorf("读取%s选项失败: %w", f.field, err)
		}
		*f.dst = opts
	}
	return snap, nil
}

// listCounties 读取当前县列表, 县下拉框不存在时按空列表处理
func listCounties(ctx context.Context, sess crawlers.Session) (models.OptionList, error) {
	counties, err := crawlers.ListOptions(ctx, sess, models.FieldCounty)
	switch {
	case errors.Is(err, models.ErrFieldNotFound):
		utils.Warnf("选择税务年度后未出现县下拉框: %v", err)
		return models.OptionList{}, nil
	case err != nil:
		return nil, fmt.Errorf("读取县列表失败: %w", err)
	}
	return counties, nil
}

// filterCounties 按大写的 value 或 label 过滤
//
// restricted 为 false 时返回全部; 调用方传入过白名单时即使规范化后为空也视为受限,
// 此时没有县会被选中。
func filterCounties(counties models.OptionList, filters []string, restricted bool) models.OptionList {
	if !restricted {
		return counties
	}
	allow := make(map[string]bool, len(filters))
	for _, f := range filters {
		allow[f] = true
	}
	var out models.OptionList
	for _, c := range counties {
		if allow[strings.ToUpper(strings.TrimSpace(c.Value))] || allow[strings.ToUpper(strings.TrimSpace(c.Label))] {
			out = append(out, c)
		}
	}
	return out
}

func closeSession(sess crawlers.Session) {
	if err := sess.Close(); err != nil {
		utils.Warnf("关闭会话失败: %v", err)
	}
}
