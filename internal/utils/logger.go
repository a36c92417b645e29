package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志文件名
const (
	mainLogName  = "taxharvest.log"
	errorLogName = "taxharvest_error.log"
)

// Logger 全局日志器
var Logger zerolog.Logger

// LogConfig 日志配置
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	LogDir     string
	MaxSize    int // 单个文件上限(MB)
	MaxBackups int
	MaxAge     int // 天
	Compress   bool

	// Console 控制台输出, 默认 stderr; stdout 留给表格和 json/yaml 结果
	Console io.Writer
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// InitLogger 初始化日志系统
//
// 控制台和 taxharvest.log 接收所有级别, taxharvest_error.log 只接收 error 及以上,
// 一次遍历中被隔离的节点失败可以直接在错误日志里查到。
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := config.Console
	if console == nil {
		console = os.Stderr
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly},
		config.rotating(mainLogName),
		&FilteredWriter{Writer: config.rotating(errorLogName), MinLevel: zerolog.ErrorLevel},
	)).With().Timestamp().Logger()
	log.Logger = Logger

	Logger.Debug().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")
	return nil
}

// FilteredWriter 只转发不低于 MinLevel 的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 无级别信息的写入直接丢弃
func (w *FilteredWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel 实现 zerolog.LevelWriter
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.MinLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// WithScope 返回带叶子坐标字段的子日志器
func WithScope(county, agency, project string) zerolog.Logger {
	return Logger.With().
		Str("county", county).
		Str("agency", agency).
		Str("project", project).
		Logger()
}

// SetOutput 把全局日志器改为向 w 输出 JSON, 测试中使用
func SetOutput(w io.Writer) {
	Logger = zerolog.New(w).With().Timestamp().Logger()
	log.Logger = Logger
}

// 全局日志器的快捷方法

func Info(msg string) { Logger.Info().Msg(msg) }
func Infof(format string, args ...any) { Logger.Info().Msgf(format, args...) }
func Warn(msg string) { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...any) { Logger.Warn().Msgf(format, args...) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }
func Error(err error, msg string) { Logger.Error().Err(err).Msg(msg) }
