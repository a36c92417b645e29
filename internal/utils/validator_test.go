package utils

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/taxharvest/internal/models"
)

func TestHeaderValidator_ValidateHeader(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		headerValue string
		expectError bool
	}{
		{"合法-常规头部", "Accept-Language", "en-US,en;q=0.9", false},
		{"合法-空值", "X-Empty", "", false},
		{"合法-接近上限", "X-Long", strings.Repeat(" ", 8000), false},
		{"非法-名称含空格", "User Agent", "x", true},
		{"非法-名称含下划线", "User_Agent", "x", true},
		{"非法-空名称", "", "x", true},
		{"非法-超长", "X-TooLong", strings.Repeat("a", MaxHeaderValueLength+1), true},
		{"非法-控制字符", "X-Bad", "value\x00null", true},
		{"禁止-Host", "Host", "taxrates.utah.gov", true},
		{"禁止-大小写不敏感", "content-length", "10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateHeader(tt.headerName, tt.headerValue)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
			var ve *models.ValidationError
			if err != nil && !errors.As(err, &ve) {
				t.Errorf("期望 *models.ValidationError, 实际 %T", err)
			}
		})
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	validator := NewHeaderValidator()

	ok := http.Header{"User-Agent": {"Bot/1.0"}, "Referer": {"https://taxrates.utah.gov/"}}
	if err := validator.Validate(ok); err != nil {
		t.Errorf("合法头部不应报错: %v", err)
	}

	bad := http.Header{"Connection": {"close"}}
	if err := validator.Validate(bad); err == nil {
		t.Error("禁止头部应报错")
	}
}

func TestHeaderRedactor(t *testing.T) {
	r := NewHeaderRedactor()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"Authorization", "Bearer abcdefghijk", "Bearer ***"},
		{"Authorization", "Basic dXNlcjpwYXNz", "Basic ***"},
		{"Cookie", "ASP.NET_SessionId=0123456789", "ASP.***6789"},
		{"X-Api-Key", "short", "***"},
		{"User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
	}
	for _, tt := range tests {
		if got := r.RedactHeaderValue(tt.name, tt.value); got != tt.want {
			t.Errorf("RedactHeaderValue(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}

	s := r.RedactToString(http.Header{"X-Token": {"secret-token-value"}, "Accept": {"*/*"}})
	if s != "Accept: */*, X-Token: secr***alue" {
		t.Errorf("RedactToString() = %s", s)
	}
}

func TestReadCountiesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counties.txt")
	content := "# 北部县\nBOX ELDER\n  cache , rich\n\nSALT LAKE\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadCountiesFromFile(path)
	if err != nil {
		t.Fatalf("ReadCountiesFromFile() error = %v", err)
	}
	want := []string{"BOX ELDER", "cache", "rich", "SALT LAKE"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("ReadCountiesFromFile() = %v, want %v", got, want)
	}

	empty := filepath.Join(dir, "empty.txt")
	_ = os.WriteFile(empty, []byte("# nothing\n\n"), 0644)
	if _, err := ReadCountiesFromFile(empty); err == nil {
		t.Error("空文件应报错")
	}

	if _, err := ReadCountiesFromFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("文件不存在应报错")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[float64]string{
		12.34: "12.3秒",
		125:   "2分05秒",
		7260:  "2时01分",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%v) = %s, want %s", in, got, want)
		}
	}
}
