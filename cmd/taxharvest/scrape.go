package main

import (
	"fmt"
	"strconv"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	leafCounty   string
	leafAgency   string
	leafProject  string
	submissionID string
	scrapeFormat string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "抓取单个 县/机构/项目 叶子",
	Long: `抓取单个叶子节点的实体税率并写入数据库

三个坐标可以是选项值或显示文本, 依次按 精确值 → 精确文本 → 子串 → 模糊 匹配;
都未命中时直接把值写入下拉框。空结果写入一条 NO_DATA 哨兵记录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateLeaf(leafCounty, leafAgency, leafProject); err != nil {
			return err
		}
		format, err := ValidateFormat(scrapeFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		h, store, err := newHarvester(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		req := models.LeafRequest{
			TaxYear: appConfig.Harvest.TaxYear,
			County:  leafCounty,
			Agency:  leafAgency,
			Project: leafProject,
			OrgID:   appConfig.Harvest.OrgID,
		}
		if submissionID != "" {
			req.SubmissionID = &submissionID
		}

		res, err := h.ScrapeLeaf(ctx, req)
		if err != nil {
			return fmt.Errorf("抓取失败: %w", err)
		}

		if format != formatTable {
			return writeStructured(stdout, format, res)
		}

		if res.Empty {
			utils.Infof("📭 %s 没有参与实体, 已记录无数据", res.Scope)
			return nil
		}
		t := newTable(stdout)
		t.SetTitle(res.Scope.String())
		t.AppendHeader(table.Row{"Entity", "Rate", "Real", "Personal", "Central"})
		for _, r := range res.Rates {
			t.AppendRow(table.Row{r.EntityName, strconv.FormatFloat(r.PrimaryRate, 'f', 6, 64),
				rateText(r.RealPropertyRate), rateText(r.PersonalPropertyRate), rateText(r.CentrallyAssessedRate)})
		}
		t.AppendFooter(table.Row{"", "", "", "抓取/新增", fmt.Sprintf("%d/%d", res.Scraped, res.Stored)})
		t.Render()
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&leafCounty, "county", "", "县")
	scrapeCmd.Flags().StringVar(&leafAgency, "agency", "", "机构")
	scrapeCmd.Flags().StringVar(&leafProject, "project", "", "项目")
	scrapeCmd.Flags().StringVar(&submissionID, "submission", "", "提交批次ID (可选)")
	scrapeCmd.Flags().StringVarP(&scrapeFormat, "format", "f", formatTable, "输出格式 (table|json|yaml)")
}
