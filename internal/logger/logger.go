// Package logger 提供统一的日志工具
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/lmittmann/tint"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel 解析日志级别字符串
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// sink 输出目标，由同一 Logger 派生的子 Logger 共享
type sink struct {
	mu       sync.Mutex
	level    slog.LevelVar
	enabled  bool
	console  bool
	file     bool
	filePath string
	stdout   io.Writer
	fileOut  *os.File
	logger   *slog.Logger
}

// Logger 日志记录器
type Logger struct {
	s     *sink
	attrs []any
}

// 全局默认 logger
var defaultLogger = New()

// New 创建新的 Logger 实例，默认输出到控制台
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter 创建输出到指定 writer 的 Logger（控制台格式）
func NewWithWriter(w io.Writer) *Logger {
	s := &sink{
		enabled: true,
		console: true,
		stdout:  w,
	}
	s.level.Set(slog.LevelInfo)
	s.updateOutput()
	return &Logger{s: s}
}

// Default 获取默认 logger
func Default() *Logger {
	return defaultLogger
}

// With 返回附带固定字段的子 logger，共享输出配置
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s, attrs: append(slices.Clone(l.attrs), args...)}
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level Level) {
	l.s.level.Set(level.slogLevel())
}

// Enabled 判断级别是否会输出
func (l *Logger) Enabled(level Level) bool {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.enabled && level.slogLevel() >= l.s.level.Level()
}

// SetEnabled 设置是否启用日志
func (l *Logger) SetEnabled(enabled bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.enabled = enabled
}

// SetConsole 设置是否输出到控制台
func (l *Logger) SetConsole(enabled bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.console = enabled
	l.s.updateOutput()
}

// SetFile 设置是否输出到文件（JSON 行格式）
func (l *Logger) SetFile(enabled bool, path string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	// 关闭旧文件
	if l.s.fileOut != nil {
		l.s.fileOut.Close()
		l.s.fileOut = nil
	}

	l.s.file = enabled
	l.s.filePath = path

	if enabled && path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			l.s.updateOutput()
			return fmt.Errorf("无法打开日志文件: %w", err)
		}
		l.s.fileOut = f
	}

	l.s.updateOutput()
	return nil
}

func (s *sink) updateOutput() {
	var handlers []slog.Handler

	if s.console && s.stdout != nil {
		handlers = append(handlers, tint.NewHandler(s.stdout, &tint.Options{
			Level:      &s.level,
			TimeFormat: "15:04:05",
		}))
	}
	if s.file && s.fileOut != nil {
		handlers = append(handlers, slog.NewJSONHandler(s.fileOut, &slog.HandlerOptions{
			Level: &s.level,
		}))
	}

	switch len(handlers) {
	case 0:
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		s.logger = slog.New(handlers[0])
	default:
		s.logger = slog.New(fanout(handlers))
	}
}

// log 内部日志方法
func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.s.mu.Lock()
	enabled := l.s.enabled
	lg := l.s.logger
	l.s.mu.Unlock()

	if !enabled {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	lg.Log(context.Background(), level.slogLevel(), msg, l.attrs...)
}

// Debug 输出 DEBUG 级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info 输出 INFO 级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn 输出 WARN 级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error 输出 ERROR 级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// LogEvent 记录带分类的事件日志
func (l *Logger) LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	status := "OK"
	if !ok {
		status = "NG"
	}

	if ok {
		l.Info("%-4s | %s | %6.1fms | %s", category, status, elapsedMs, detail)
	} else {
		l.Error("%-4s | %s | %6.1fms | %s", category, status, elapsedMs, detail)
	}
}

// Close 关闭 logger，释放资源
func (l *Logger) Close() error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if l.s.fileOut != nil {
		err := l.s.fileOut.Close()
		l.s.fileOut = nil
		l.s.updateOutput()
		return err
	}
	return nil
}

// fanout 将记录分发给多个 handler
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// 包级别便捷函数
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	defaultLogger.LogEvent(category, ok, elapsedMs, detail)
}
