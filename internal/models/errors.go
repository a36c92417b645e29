package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoSelectableFields = errors.New("页面上没有可选择的下拉框")
	ErrFieldNotFound      = errors.New("未找到目标下拉框")
	ErrNoCountiesMatched  = errors.New("县过滤条件未匹配到任何县")
	ErrSessionClosed      = errors.New("浏览器会话已关闭")
)

// SessionError 会话建立失败 (浏览器启动/导航/访客登录)
// 对整次调用是致命错误
type SessionError struct {
	Stage string // launch | navigate | login | ready
	Cause error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("会话建立失败 [%s]: %v", e.Stage, e.Cause)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// SelectionError 无法在某个下拉框上提交选择
type SelectionError struct {
	Field FieldKind
	Value string
	Cause error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("选择 %s=%q 失败: %v", e.Field, e.Value, e.Cause)
}

func (e *SelectionError) Unwrap() error {
	return e.Cause
}

// PersistenceError 叶子节点结果写入失败
type PersistenceError struct {
	Scope ScopeTuple
	// Stored 失败前已经写入的行数
	Stored int
	Cause  error
}

func (e *PersistenceError) Error() string {
	if e.Stored > 0 {
		return fmt.Sprintf("存储失败 [%s] (已写入%d条): %v", e.Scope, e.Stored, e.Cause)
	}
	return fmt.Sprintf("存储失败 [%s]: %v", e.Scope, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// TraversalLevel 遍历失败发生的层级
type TraversalLevel string

const (
	LevelCounty  TraversalLevel = "county"
	LevelAgency  TraversalLevel = "agency"
	LevelProject TraversalLevel = "project"
)

// TraversalError 遍历过程中被隔离的单点失败
type TraversalError struct {
	Level TraversalLevel `json:"level"`
	Scope ScopeTuple     `json:"scope"`
	Cause error          `json:"-"`
}

func (e TraversalError) Error() string {
	switch e.Level {
	case LevelCounty:
		return fmt.Sprintf("County %s: %v", e.Scope.County, e.Cause)
	case LevelAgency:
		return fmt.Sprintf("Agency %s in %s: %v", e.Scope.Agency, e.Scope.County, e.Cause)
	default:
		return fmt.Sprintf("Project %s in %s/%s: %v", e.Scope.Project, e.Scope.County, e.Scope.Agency, e.Cause)
	}
}

func (e TraversalError) Unwrap() error {
	return e.Cause
}

// MarshalJSON 附带可读的错误消息
func (e TraversalError) MarshalJSON() ([]byte, error) {
	type alias struct {
		Level   TraversalLevel `json:"level"`
		Scope   ScopeTuple     `json:"scope"`
		Message string         `json:"message"`
	}
	return json.Marshal(alias{Level: e.Level, Scope: e.Scope, Message: e.Error()})
}

// ValidationError 配置或HTTP头部校验失败
type ValidationError struct {
	Field      string // 出错的字段
	HeaderName string // 仅头部校验时填写
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	target := e.Field
	if e.HeaderName != "" {
		target = e.HeaderName
	}
	msg := fmt.Sprintf("校验失败 [%s]: %s", target, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件读取或解析失败
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
