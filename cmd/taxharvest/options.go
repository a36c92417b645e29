package main

import (
	"encoding/json"

	"github.com/RecoveryAshes/taxharvest/internal/crawlers"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var optionsFormat string

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "列出表单默认状态下的下拉选项",
	Long:  `打开查询页, 不做任何选择, 读取税务年度/县/机构/项目四个下拉框的当前选项`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := ValidateFormat(optionsFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		h, store, err := newHarvester(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := h.ListOptions(ctx)
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(stdout, format, snap)
		}

		for _, f := range []struct {
			field models.FieldKind
			opts  models.OptionList
		}{
			{models.FieldTaxYear, snap.TaxYears},
			{models.FieldCounty, snap.Counties},
			{models.FieldAgency, snap.Agencies},
			{models.FieldProject, snap.Projects},
		} {
			if len(f.opts) == 0 {
				utils.Infof("%s: 无可用选项", f.field)
				continue
			}
			t := newTable(stdout)
			t.SetTitle(f.field.String())
			t.AppendHeader(table.Row{"Value", "Label"})
			for _, o := range f.opts {
				t.AppendRow(table.Row{o.Value, o.Label})
			}
			t.Render()
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "不启动浏览器, 检查查询页是否可达",
	RunE: func(cmd *cobra.Command, args []string) error {
		hm, err := newHeaderManager()
		if err != nil {
			return err
		}

		report, err := crawlers.Probe(cmd.Context(), appConfig.Harvest, hm)
		if err != nil {
			return err
		}

		data, _ := json.MarshalIndent(report, "", "  ")
		utils.Debugf("探测结果: %s", data)

		utils.Infof("🌐 %s → %s (HTTP %d, %s)", report.RequestURL, report.FinalURL, report.StatusCode, report.Elapsed)
		switch {
		case report.LoginGate && report.GuestButton:
			utils.Info("🔑 需要登录, 页面提供访客入口, 浏览器会话会自动以访客身份进入")
		case report.LoginGate:
			utils.Warn("🔒 需要登录且未找到访客入口")
		case len(report.Fields) < 4:
			utils.Warnf("⚠️  只找到 %d 个级联字段: %v", len(report.Fields), report.Fields)
		default:
			utils.Infof("✅ 表单可用, 下拉框 %d 个", report.SelectCount)
		}
		return nil
	},
}

func init() {
	optionsCmd.Flags().StringVarP(&optionsFormat, "format", "f", formatTable, "输出格式 (table|json|yaml)")
}
