package finder

import (
	"github.com/zoeyai/imagefinder/internal/logger"
)

// requestLog 单次请求的日志，debug 时诊断信息提升到 INFO
type requestLog struct {
	l     *logger.Logger
	debug bool
}

func defaultRequestLog() requestLog {
	return requestLog{l: logger.Default()}
}

// Debug 输出诊断信息
func (r requestLog) Debug(format string, args ...interface{}) {
	if r.l == nil {
		return
	}
	if r.debug {
		r.l.Info(format, args...)
		return
	}
	r.l.Debug(format, args...)
}

// Event 输出请求结束事件
func (r requestLog) Event(category string, ok bool, elapsedMs float64, detail string) {
	if r.l == nil {
		return
	}
	r.l.LogEvent(category, ok, elapsedMs, detail)
}
