// Package storage 负责 tax_rates 表的持久化
//
// 写入采用"先查后插": 自然键 (org_id, submission_id, entity_name, year,
// county, agency, project) 已存在则跳过, 从不删除也不更新已有行。
// 查询与写入之间没有事务, 同一组织不应并发执行多次遍历。
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/adrg/xdg"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config 存储配置
type Config struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`    // sqlite为文件路径, postgres为连接串
}

// DefaultPath 默认数据库位置 ($XDG_DATA_HOME/taxharvest/taxrates.db)
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join("taxharvest", "taxrates.db"))
}

// RateStore tax_rates 表的读写入口
type RateStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// Open 打开数据库并确保表结构存在
func Open(ctx context.Context, cfg Config) (*RateStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := cfg.DSN
	if driver == "" {
		driver = DriverSQLite
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			driver = DriverPostgres
		}
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(dsn)
	case DriverPostgres:
		db, err = openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &RateStore{db: db, dialect: driver, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	utils.Debugf("数据库已就绪: driver=%s", driver)
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("定位默认数据库路径失败: %w", err)
		}
		path = p
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开sqlite失败: %w", err)
	}

	// 单写者
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置WAL模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置busy_timeout失败: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开postgres失败: %w", err)
	}
	if err := pingWithRetry(ctx, db, 5, time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接postgres失败: %w", err)
	}
	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			return nil
		}
		utils.Warnf("数据库连接失败(%d/%d): %v", i+1, attempts, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (s *RateStore) migrate(ctx context.Context) error {
	stmts := []string{sqliteSchema, scopeIndex}
	if s.dialect == DriverPostgres {
		stmts = []string{postgresSchema, scopeIndex}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库
func (s *RateStore) Close() error {
	return s.db.Close()
}

// rebind 将 ? 占位符转换为当前方言的形式
func (s *RateStore) rebind(query string) string {
	if s.dialect != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tax_rates (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	submission_id TEXT,
	entity_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	real_property_rate DOUBLE PRECISION,
	personal_property_rate DOUBLE PRECISION,
	centrally_assessed_rate DOUBLE PRECISION,
	county TEXT NOT NULL DEFAULT '',
	agency TEXT NOT NULL DEFAULT '',
	project TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tax_rates (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	submission_id TEXT,
	entity_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	real_property_rate DOUBLE PRECISION,
	personal_property_rate DOUBLE PRECISION,
	centrally_assessed_rate DOUBLE PRECISION,
	county TEXT NOT NULL DEFAULT '',
	agency TEXT NOT NULL DEFAULT '',
	project TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const scopeIndex = `CREATE INDEX IF NOT EXISTS idx_tax_rates_scope ON tax_rates (org_id, year, county, agency, project)`
