// Package vision 提供屏幕模板查找的便捷入口
//
// 主要功能:
//   - 多尺度模板查找: 模板与截图分辨率不一致时仍能定位
//   - 旋转查找: 特征点匹配，结果为外接矩形
//   - 循环匹配: 在超时前反复截屏查找
//
// 基本用法:
//
//	// 在当前屏幕查找
//	result, err := vision.FindMatch("button.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("找到位置: %s, 置信度: %.3f\n", result.Location, result.Confidence)
//
//	// 在指定图像中查找所有实例
//	results, err := vision.FindMatches("icon.png",
//	    vision.WithHaystack("screen.png"),
//	    vision.WithConfidence(0.9),
//	)
package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoeyai/imagefinder/pkg/auto/screen"
	"github.com/zoeyai/imagefinder/pkg/config"
	"github.com/zoeyai/imagefinder/pkg/vision/cv"
	"github.com/zoeyai/imagefinder/pkg/vision/finder"
	"github.com/zoeyai/imagefinder/pkg/vision/native"
)

// 引擎名称
const (
	EngineCV     = "cv"
	EngineNative = "native"
)

// NewEngine 按名称创建视觉引擎
func NewEngine(name string) (finder.Engine, error) {
	switch name {
	case EngineCV, "":
		return cv.New(), nil
	case EngineNative:
		return native.New(), nil
	}
	return nil, fmt.Errorf("未知的引擎: %s", name)
}

// NewFinder 创建以当前屏幕为默认源图的 Finder
func NewFinder(engine string, opts ...finder.Option) (*finder.Finder, error) {
	e, err := NewEngine(engine)
	if err != nil {
		return nil, err
	}
	opts = append([]finder.Option{finder.WithScreen(screen.New())}, opts...)
	return finder.New(e, opts...), nil
}

var (
	defaultMu     sync.Mutex
	defaultFinder *finder.Finder
)

// Default 获取全局 Finder，首次调用时使用 OpenCV 引擎创建
func Default() *finder.Finder {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultFinder == nil {
		defaultFinder, _ = NewFinder(EngineCV)
	}
	return defaultFinder
}

// SetDefault 替换全局 Finder
func SetDefault(f *finder.Finder) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultFinder = f
}

// GetConfig 获取全局配置
func GetConfig() finder.Config {
	return Default().GetConfig()
}

// SetConfig 合并全局配置
func SetConfig(patch finder.Config) error {
	return Default().SetConfig(patch)
}

// LoadConfig 从配置文件加载全局配置
func LoadConfig(m *config.Manager) error {
	cfg, err := m.Load()
	if err != nil {
		return err
	}
	return Default().ReplaceConfig(cfg)
}

// FindMatch 查找置信度最高的一个实例
func FindMatch(needle finder.ImageInput, opts ...Option) (finder.MatchResult, error) {
	cfg := newMatchConfig(needle, opts)
	return Default().FindMatch(cfg.req)
}

// FindMatches 查找所有实例，按置信度降序
func FindMatches(needle finder.ImageInput, opts ...Option) ([]finder.MatchResult, error) {
	cfg := newMatchConfig(needle, opts)
	return Default().FindMatches(cfg.req)
}

// FindLocation 查找模板中心点，未找到时返回 nil
func FindLocation(needle finder.ImageInput, opts ...Option) (*Point, error) {
	result, err := FindMatch(needle, opts...)
	if errors.Is(err, finder.ErrNoMatch) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	center := NewMatch(result).Center
	return &center, nil
}

// MatchLoop 循环匹配直到找到、超时或 ctx 取消
func MatchLoop(ctx context.Context, needle finder.ImageInput, opts ...Option) (finder.MatchResult, error) {
	cfg := newMatchConfig(needle, opts)
	f := Default()

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	interval := cfg.interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := f.FindMatch(cfg.req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, finder.ErrNoMatch) {
			return finder.MatchResult{}, err
		}

		select {
		case <-ctx.Done():
			return finder.MatchResult{}, fmt.Errorf("匹配超时: %w", err)
		case <-ticker.C:
		}
	}
}
