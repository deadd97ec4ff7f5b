package finder

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// NormalizeOptions 坐标还原参数
type NormalizeOptions struct {
	// Density 源图像素密度
	Density PixelDensity
	// Confidence 要求的置信度
	Confidence float64
	// ROI 请求的搜索区域（逻辑像素），nil 表示全图
	ROI *Region
	// Screen 逻辑屏幕尺寸，ROI 非空时用于校验
	Screen Size
}

// InflateRegion 逻辑坐标 => 物理坐标（仅在 X/Y 密度相等且非零时缩放）
func InflateRegion(r Region, density PixelDensity) Region {
	scale, ok := density.Uniform()
	if !ok {
		return r
	}
	return r.Scale(scale)
}

// DeflateRegion 物理坐标 => 逻辑坐标（仅在 X/Y 密度相等且非零时缩放）
func DeflateRegion(r Region, density PixelDensity) Region {
	scale, ok := density.Uniform()
	if !ok {
		return r
	}
	return r.Scale(1 / scale)
}

// ValidateRegion 校验 ROI 完全位于屏幕内，越界时不做裁剪直接报错
func ValidateRegion(roi Region, screen Size) error {
	bounds := Region{Width: float64(screen.Width), Height: float64(screen.Height)}
	if roi.Width < 0 || roi.Height < 0 || !roi.Within(bounds) {
		return &RegionError{Region: roi, Bounds: bounds}
	}
	return nil
}

// Normalize 还原匹配坐标并按置信度过滤
//  1. 有 ROI 时加上 ROI 左上角（物理像素）偏移
//  2. 按像素密度缩放回逻辑像素
//  3. 校验 ROI 位于屏幕内
//  4. 按置信度降序排序
//  5. 过滤低于阈值的结果，全部不满足时返回 NoMatchError
func Normalize(matches []MatchResult, opts NormalizeOptions) ([]MatchResult, error) {
	if opts.ROI != nil {
		offset := InflateRegion(*opts.ROI, opts.Density)
		matches = lo.Map(matches, func(m MatchResult, _ int) MatchResult {
			m.Location = m.Location.Offset(offset.Left, offset.Top)
			return m
		})
	}

	matches = lo.Map(matches, func(m MatchResult, _ int) MatchResult {
		m.Location = DeflateRegion(m.Location, opts.Density)
		return m
	})

	if opts.ROI != nil {
		if err := ValidateRegion(*opts.ROI, opts.Screen); err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(matches, func(a, b MatchResult) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	qualified := lo.Filter(matches, func(m MatchResult, _ int) bool {
		return m.Confidence >= opts.Confidence
	})
	if len(qualified) == 0 {
		noMatch := &NoMatchError{Required: opts.Confidence}
		if len(matches) > 0 {
			noMatch.HasCandidate = true
			noMatch.Best = matches[0].Confidence
		}
		return nil, noMatch
	}
	return qualified, nil
}
