package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/RecoveryAshes/taxharvest/internal/storage"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  taxharvest 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium - 首次运行时会自动下载")
	}

	// 检查数据目录
	if path, err := storage.DefaultPath(); err == nil {
		fmt.Printf("✅ 默认数据库: %s\n", path)
	} else {
		fmt.Printf("❌ 无法定位数据目录: %v\n", err)
		allOK = false
	}

	if dsn := os.Getenv("TAXHARVEST_STORAGE_DSN"); strings.HasPrefix(dsn, "postgres") {
		if checkCommand("pg_isready") {
			fmt.Println("✅ PostgreSQL可达")
		} else {
			fmt.Println("⚠️  已配置PostgreSQL, 但 pg_isready 检查失败")
		}
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredPaths := []string{
		"go.mod",
		"cmd/taxharvest",
		"internal/core",
		"internal/crawlers",
		"internal/storage",
		"configs/config.yaml",
		"configs/headers.yaml",
	}

	for _, p := range requiredPaths {
		if _, err := os.Stat(p); err == nil {
			fmt.Printf("✅ %s\n", p)
		} else {
			fmt.Printf("❌ %s 不存在\n", p)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/taxharvest' 构建")
		fmt.Println("  2. 运行 './taxharvest probe' 检查查询页")
		fmt.Println("  3. 运行 './taxharvest --help' 查看帮助")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkCommand 检查命令是否可用
func checkCommand(name string, args ...string) bool {
	return exec.Command(name, args...).Run() == nil
}
