// Package log 提供 onionp2p 统一日志接口
//
// 基于 Go 标准库 log/slog 封装。每个组件持有一个 LazyLogger，
// 日志调用时才解析当前的默认 handler，因此 CLI 可以在运行期
// 切换输出目标与级别，而不需要重新创建各组件的 logger。
//
// 环境变量：
//
//	ONIONP2P_LOG_LEVEL=debug                     # 全局级别
//	ONIONP2P_LOG_LEVEL=core/connection=debug,info # 按组件覆盖
//	ONIONP2P_LOG_FORMAT=json                     # JSON 输出
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

const (
	envLevel  = "ONIONP2P_LOG_LEVEL"
	envFormat = "ONIONP2P_LOG_FORMAT"
)

var (
	mu sync.RWMutex

	// base 当前输出 handler 的基础 logger
	base *slog.Logger

	// globalLevel 未单独配置组件时的级别
	globalLevel = new(slog.LevelVar)

	// componentLevels 按组件覆盖的级别
	componentLevels = map[string]slog.Level{}
)

func init() {
	globalLevel.Set(slog.LevelInfo)
	parseLevelSpec(os.Getenv(envLevel))
	base = newLogger(os.Stderr, os.Getenv(envFormat) == "json")
}

// parseLevelSpec 解析 "comp=debug,info" 形式的级别配置
func parseLevelSpec(spec string) {
	if spec == "" {
		return
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if comp, lvl, ok := strings.Cut(part, "="); ok {
			if l, err := parseLevel(lvl); err == nil {
				componentLevels[strings.TrimSpace(comp)] = l
			}
			continue
		}
		if l, err := parseLevel(part); err == nil {
			globalLevel.Set(l)
		}
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.TrimSpace(s)))
	return l, err
}

// newLogger 创建底层 logger，级别过滤交给 LazyLogger 处理
func newLogger(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 设置日志输出目标
//
// 常用于 CLI 将日志写入文件：
//
//	file, _ := os.OpenFile("node.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
//	log.SetOutput(file, false)
func SetOutput(w io.Writer, json bool) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(w, json)
}

// SetLevel 设置全局日志级别
func SetLevel(level slog.Level) {
	globalLevel.Set(level)
}

// SetComponentLevel 设置单个组件的日志级别
func SetComponentLevel(component string, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	componentLevels[component] = level
}

// Discard 丢弃所有日志，测试中使用
func Discard() {
	SetOutput(io.Discard, false)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func levelFor(component string) slog.Level {
	mu.RLock()
	l, ok := componentLevels[component]
	mu.RUnlock()
	if ok {
		return l
	}
	return globalLevel.Level()
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 使用方式：
//
//	var logger = log.Logger("core/connection")
//	logger.Info("connection established", "uid", uid)
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Enabled 报告指定级别是否会输出
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return level >= levelFor(l.component)
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	current().With("component", l.component).Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// With 返回附加了属性的 slog.Logger
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return current().With("component", l.component).With(args...)
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
//
// 避免在日志中直接使用 id[:8] 导致 slice bounds out of range。
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}
