package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Reporter 遍历报告生成器
type Reporter struct {
	outputDir string
	compress  bool // 额外写一份 .json.br
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, compress bool) *Reporter {
	return &Reporter{outputDir: outputDir, compress: compress}
}

// GenerateReport 写出本次遍历的报告, 返回主报告路径
func (r *Reporter) GenerateReport(result *models.TraversalResult, config models.HarvestConfig) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	end := result.StartedAt.Add(time.Duration(result.Duration * float64(time.Second)))
	report := models.SweepReport{
		TaskID:    uuid.New().String(),
		TargetURL: config.TargetURL,
		OrgID:     config.OrgID,
		TaxYear:   config.TaxYear,
		StartTime: result.StartedAt,
		EndTime:   end,
		Duration:  result.Duration,
		Result:    result,
		Errors:    result.ErrorMessages(),
		Config:    config,
	}

	data, err := report.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	name := fmt.Sprintf("sweep_%d_%s.json", config.TaxYear, result.StartedAt.Format("20060102_150405"))
	path := filepath.Join(r.outputDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)

	if r.compress {
		if err := writeBrotli(path+".br", data); err != nil {
			return "", err
		}
		Debugf("保存压缩报告: %s.br", path)
	}

	if len(result.Errors) > 0 {
		failed, _ := json.MarshalIndent(result.Errors, "", "  ")
		errPath := filepath.Join(r.outputDir, "failed_"+name)
		if err := os.WriteFile(errPath, failed, 0644); err != nil {
			return "", fmt.Errorf("写入失败列表失败: %w", err)
		}
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

func writeBrotli(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建压缩报告失败: %w", err)
	}
	defer f.Close()

	w := brotli.NewWriterLevel(f, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("brotli压缩失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("brotli压缩失败: %w", err)
	}
	return nil
}

// NewProgressBar 创建进度条, max 为 -1 时显示为不定长
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("leaf"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
