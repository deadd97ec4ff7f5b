package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/zoeyai/imagefinder/pkg/auto/grid"
	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// cliOverrides 命令行中显式给出的配置项
type cliOverrides struct {
	confidence     float64
	method         string
	scales         string
	multiScale     bool
	multiScaleSet  bool
	rotation       bool
	rotationSet    bool
	rotationRange  float64
	rotationRngSet bool
	debug          bool
}

// apply 将命令行参数覆盖到配置上
func (o cliOverrides) apply(cfg finder.Config) (finder.Config, error) {
	cfg = cfg.Clone()
	if o.confidence != 0 {
		cfg.Confidence = o.confidence
	}
	if o.method != "" {
		m, err := finder.ParseMethod(o.method)
		if err != nil {
			return cfg, err
		}
		cfg.MethodType = m
	}
	if o.scales != "" {
		steps, err := parseFloats(o.scales)
		if err != nil {
			return cfg, fmt.Errorf("缩放序列: %w", err)
		}
		cfg.ScaleSteps = steps
		cfg.IsSearchMultipleScales = true
	}
	if o.multiScaleSet {
		cfg.IsSearchMultipleScales = o.multiScale
	}
	if o.rotationSet {
		cfg.IsRotation = o.rotation
	}
	if o.rotationRngSet {
		cfg.RotationOption.Range = o.rotationRange
	}
	if o.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

// parseFloats 解析逗号分隔的数字
func parseFloats(s string) ([]float64, error) {
	parts := lo.Filter(strings.Split(s, ","), func(p string, _ int) bool {
		return strings.TrimSpace(p) != ""
	})
	if len(parts) == 0 {
		return nil, fmt.Errorf("不能为空: %q", s)
	}
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("无法解析 %q", p)
		}
		values[i] = v
	}
	return values, nil
}

// parseRegion 解析 x,y,w,h
func parseRegion(s string) (finder.Region, error) {
	values, err := parseFloats(s)
	if err != nil {
		return finder.Region{}, fmt.Errorf("搜索区域: %w", err)
	}
	if len(values) != 4 {
		return finder.Region{}, fmt.Errorf("搜索区域需要 4 个值 x,y,w,h: %q", s)
	}
	if values[2] <= 0 || values[3] <= 0 {
		return finder.Region{}, fmt.Errorf("搜索区域宽高必须大于 0: %q", s)
	}
	return finder.NewRegion(values[0], values[1], values[2], values[3]), nil
}

// resolveROI 解析 -roi 或 -grid；两者同时给出时 -roi 优先
func resolveROI(roi, gridCell string, screen finder.Screen) (finder.Region, error) {
	if roi != "" {
		return parseRegion(roi)
	}
	w, h, err := screen.Size()
	if err != nil {
		return finder.Region{}, fmt.Errorf("获取屏幕尺寸失败: %w", err)
	}
	return grid.CellOf(finder.NewRegion(0, 0, float64(w), float64(h)), gridCell)
}
