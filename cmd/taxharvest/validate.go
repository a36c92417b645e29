package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/models"
)

// 输出格式
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志
func ValidateFlags(targetURL string, year, shards, settle int, fuzzy float64) error {
	if targetURL != "" {
		if err := ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的查询页URL: %w", err)
		}
	}

	if year != 0 && (year < 1990 || year > 2100) {
		return fmt.Errorf("税务年度必须在1990-2100之间,当前值: %d", year)
	}

	if shards < 0 || shards > 16 {
		return fmt.Errorf("并行会话数必须在1-16之间,当前值: %d", shards)
	}

	if settle < 0 || settle > 120 {
		return fmt.Errorf("等待时间必须在0-120秒之间,当前值: %d", settle)
	}

	if fuzzy < 0.0 || fuzzy > 1.0 {
		return fmt.Errorf("模糊匹配阈值必须在0.0-1.0之间,当前值: %.2f", fuzzy)
	}

	return nil
}

// ValidateFormat 验证输出格式, 返回小写形式
func ValidateFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	}
	return "", fmt.Errorf("无效的输出格式: %s (有效值: table, json, yaml)", format)
}

// ValidateLeaf 单叶子抓取三个坐标都不能为空
func ValidateLeaf(county, agency, project string) error {
	var missing []string
	for _, f := range [][2]string{{"--county", county}, {"--agency", agency}, {"--project", project}} {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少必需参数: %s", strings.Join(missing, ", "))
	}
	return nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
