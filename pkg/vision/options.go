package vision

import (
	"time"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// 循环匹配默认值
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Option 单次查找选项
type Option func(*matchConfig)

// matchConfig 匹配时的临时配置
type matchConfig struct {
	req      finder.Request
	timeout  time.Duration
	interval time.Duration
}

func newMatchConfig(needle finder.ImageInput, opts []Option) *matchConfig {
	cfg := &matchConfig{
		req:      finder.Request{Needle: needle},
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithHaystack 指定源图，不设置时截取屏幕
func WithHaystack(haystack finder.ImageInput) Option {
	return func(c *matchConfig) {
		c.req.Haystack = haystack
	}
}

// WithConfidence 设置置信度
func WithConfidence(confidence float64) Option {
	return func(c *matchConfig) {
		c.req.Confidence = confidence
	}
}

// WithMethod 设置相似度方法
func WithMethod(method finder.Method) Option {
	return func(c *matchConfig) {
		c.req.MethodType = method
	}
}

// WithScaleSteps 设置缩放序列并开启多尺度搜索
func WithScaleSteps(steps ...float64) Option {
	return func(c *matchConfig) {
		c.req.ScaleSteps = steps
		enabled := true
		c.req.IsSearchMultipleScales = &enabled
	}
}

// WithMultipleScales 开关多尺度搜索
func WithMultipleScales(enabled bool) Option {
	return func(c *matchConfig) {
		c.req.IsSearchMultipleScales = &enabled
	}
}

// WithROI 限定搜索区域（逻辑像素）
func WithROI(roi finder.Region) Option {
	return func(c *matchConfig) {
		c.req.ROI = &roi
	}
}

// WithRotation 开启旋转搜索，可选覆盖旋转参数
func WithRotation(opts ...finder.RotationOption) Option {
	return func(c *matchConfig) {
		enabled := true
		c.req.IsRotation = &enabled
		if len(opts) > 0 {
			c.req.RotationOption = opts[0]
		}
	}
}

// WithoutRotation 关闭旋转搜索
func WithoutRotation() Option {
	return func(c *matchConfig) {
		disabled := false
		c.req.IsRotation = &disabled
	}
}

// WithDebug 输出诊断日志
func WithDebug() Option {
	return func(c *matchConfig) {
		c.req.Debug = true
	}
}

// WithTimeout 设置循环匹配超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *matchConfig) {
		c.timeout = timeout
	}
}

// WithInterval 设置循环匹配间隔，不大于 0 时使用 DefaultInterval
func WithInterval(interval time.Duration) Option {
	return func(c *matchConfig) {
		c.interval = interval
	}
}
