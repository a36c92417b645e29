package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/taxharvest/internal/models"
)

func TestHeaderConfigLoader_GeneratesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "headers.yaml")
	loader := NewHeaderConfigLoader(path)

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("模板未生成: %v", err)
	}
	if cfg.Headers == nil || len(cfg.Headers) != 0 {
		t.Errorf("模板应解析为空头部, 实际 %v", cfg.Headers)
	}
}

func TestHeaderConfigLoader_ReadsHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headers.yaml")
	content := "headers:\n  Accept-Language: \"en-US,en;q=0.9\"\n  X-Requested-By: finance\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewHeaderConfigLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// viper 会把键转为小写
	if cfg.Headers["accept-language"] != "en-US,en;q=0.9" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
}

func TestHeaderConfigLoader_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("空文件", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		_ = os.WriteFile(path, nil, 0644)
		cfg, err := NewHeaderConfigLoader(path).Load()
		if err != nil {
			t.Fatalf("空文件应可加载: %v", err)
		}
		if cfg.Headers == nil {
			t.Error("Headers 应初始化为空map")
		}
	})

	t.Run("YAML格式错误", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		_ = os.WriteFile(path, []byte("headers: [unclosed"), 0644)
		_, err := NewHeaderConfigLoader(path).Load()
		var ce *models.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("期望 ConfigError, 实际 %v", err)
		}
	})

	t.Run("文件过大", func(t *testing.T) {
		path := filepath.Join(dir, "big.yaml")
		_ = os.WriteFile(path, []byte("# "+strings.Repeat("x", MaxConfigFileSize)), 0644)
		_, err := NewHeaderConfigLoader(path).Load()
		if err == nil || !strings.Contains(err.Error(), "过大") {
			t.Errorf("期望文件过大错误, 实际 %v", err)
		}
	})
}

func TestNewHeaderConfigLoader_DefaultPath(t *testing.T) {
	if got := NewHeaderConfigLoader("").Path(); got != DefaultHeaderFile {
		t.Errorf("Path() = %s", got)
	}
}
