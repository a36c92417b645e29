package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitLogger(t *testing.T) {
	tempDir := t.TempDir()

	config := LogConfig{
		Level:      "debug",
		LogDir:     tempDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("测试信息日志")
	Warnf("县 %s 没有可选机构", "DAGGETT")
	Debug("测试调试日志")

	time.Sleep(100 * time.Millisecond)

	mainLogPath := filepath.Join(tempDir, "taxharvest.log")
	content, err := os.ReadFile(mainLogPath)
	if err != nil {
		t.Fatalf("读取主日志失败: %v", err)
	}
	if !strings.Contains(string(content), "DAGGETT") {
		t.Errorf("主日志缺少警告内容: %s", content)
	}
}

func TestErrorLogOnlyReceivesErrors(t *testing.T) {
	tempDir := t.TempDir()

	cfg := DefaultLogConfig()
	cfg.LogDir = tempDir
	cfg.Compress = false
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("普通信息不应进入错误日志")
	Error(errors.New("连接被重置"), "选择机构失败")

	time.Sleep(100 * time.Millisecond)

	content, err := os.ReadFile(filepath.Join(tempDir, "taxharvest_error.log"))
	if err != nil {
		t.Fatalf("读取错误日志失败: %v", err)
	}
	if strings.Contains(string(content), "普通信息") {
		t.Error("错误日志不应包含info级别消息")
	}
	if !strings.Contains(string(content), "选择机构失败") {
		t.Error("错误日志缺少error级别消息")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", config.LogDir)
	}
	if config.MaxBackups != 3 || config.MaxAge != 28 {
		t.Errorf("默认轮转配置错误: %+v", config)
	}
}

func TestWithScope(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	l := WithScope("BEAVER", "BEAVER CITY", "MAIN ST")
	l.Info().Int("stored", 3).Msg("叶子完成")

	out := buf.String()
	for _, want := range []string{`"county":"BEAVER"`, `"agency":"BEAVER CITY"`, `"project":"MAIN ST"`, `"stored":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("日志缺少字段 %s: %s", want, out)
		}
	}
}
