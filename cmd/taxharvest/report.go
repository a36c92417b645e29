package main

import (
	"fmt"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// 查询参数
var (
	reportFormat  string
	rateCounty    string
	rateAgency    string
	rateProject   string
	includeNoData bool
	rateLimit     int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "按县、按机构汇总已存储的税率",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := ValidateFormat(reportFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err := store.Summary(ctx, appConfig.Harvest.OrgID)
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(stdout, format, summary)
		}

		t := newTable(stdout)
		t.SetTitle(fmt.Sprintf("组织 %s: %d 行, %d 个无数据叶子", summary.OrgID, summary.TotalRows, summary.NoDataLeaves))
		t.AppendHeader(table.Row{"County", "Agencies", "Projects", "Entities", "No Data", "Avg Rate"})
		for _, c := range summary.Counties {
			t.AppendRow(table.Row{c.County, c.Agencies, c.Projects, c.Entities, c.NoDataLeaves, fmt.Sprintf("%.6f", c.AverageRate)})
		}
		t.Render()

		if len(summary.Agencies) == 0 {
			return nil
		}
		t = newTable(stdout)
		t.AppendHeader(table.Row{"County", "Agency", "Projects", "Entities", "Min", "Max", "Avg"})
		for _, a := range summary.Agencies {
			t.AppendRow(table.Row{a.County, a.Agency, a.Projects, a.Entities,
				fmt.Sprintf("%.6f", a.MinRate), fmt.Sprintf("%.6f", a.MaxRate), fmt.Sprintf("%.6f", a.AverageRate)})
		}
		t.Render()
		return nil
	},
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "查询已存储的税率记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := ValidateFormat(reportFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Rates(ctx, models.RateFilter{
			OrgID:         appConfig.Harvest.OrgID,
			TaxYear:       taxYear,
			County:        rateCounty,
			Agency:        rateAgency,
			Project:       rateProject,
			IncludeNoData: includeNoData,
			Limit:         rateLimit,
		})
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(stdout, format, records)
		}

		t := newTable(stdout)
		t.AppendHeader(table.Row{"Year", "County", "Agency", "Project", "Entity", "Real", "Personal", "Central"})
		for _, r := range records {
			t.AppendRow(table.Row{r.Scope.TaxYear, r.Scope.County, r.Scope.Agency, r.Scope.Project, r.EntityName,
				rateText(r.RealPropertyRate), rateText(r.PersonalPropertyRate), rateText(r.CentrallyAssessedRate)})
		}
		t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d 条", len(records))})
		t.Render()
		return nil
	},
}

var countiesCmd = &cobra.Command{
	Use:   "counties",
	Short: "列出已存储数据的县",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.Counties(ctx, appConfig.Harvest.OrgID)
		if err != nil {
			return err
		}
		return printNames("County", names)
	},
}

var agenciesCmd = &cobra.Command{
	Use:   "agencies <county>",
	Short: "列出某个县下已存储数据的机构",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.Agencies(ctx, appConfig.Harvest.OrgID, args[0])
		if err != nil {
			return err
		}
		return printNames("Agency", names)
	},
}

func printNames(header string, names []string) error {
	t := newTable(stdout)
	t.AppendHeader(table.Row{header})
	for _, n := range names {
		t.AppendRow(table.Row{n})
	}
	t.Render()
	return nil
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", formatTable, "输出格式 (table|json|yaml)")

	ratesCmd.Flags().StringVarP(&reportFormat, "format", "f", formatTable, "输出格式 (table|json|yaml)")
	ratesCmd.Flags().StringVar(&rateCounty, "county", "", "县")
	ratesCmd.Flags().StringVar(&rateAgency, "agency", "", "机构")
	ratesCmd.Flags().StringVar(&rateProject, "project", "", "项目")
	ratesCmd.Flags().BoolVar(&includeNoData, "include-no-data", false, "包含 NO_DATA 哨兵记录")
	ratesCmd.Flags().IntVar(&rateLimit, "limit", 0, "最多返回条数, 0 不限")
}
