package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ReadCountiesFromFile 从文件读取县过滤列表
// 每行一个县, 也允许逗号分隔; 空行和 # 开头的注释行跳过
func ReadCountiesFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开县列表文件失败: %w", err)
	}
	defer file.Close()

	counties := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			if part = strings.TrimSpace(part); part != "" {
				counties = append(counties, part)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取县列表文件失败: %w", err)
	}

	if len(counties) == 0 {
		return nil, fmt.Errorf("县列表文件中没有有效条目")
	}

	Infof("从文件加载了 %d 个县", len(counties))
	return counties, nil
}

// ValidateURL 验证URL格式
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL协议必须是http或https")
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL缺少主机名")
	}

	return nil
}

// FormatDuration 以秒为单位的耗时转为可读形式
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f秒", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d分%02d秒", int(seconds)/60, int(seconds)%60)
	default:
		return fmt.Sprintf("%d时%02d分", int(seconds)/3600, (int(seconds)%3600)/60)
	}
}
