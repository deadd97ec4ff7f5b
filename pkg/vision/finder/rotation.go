package finder

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// RotationSearch 旋转容忍搜索，特征匹配由引擎完成
type RotationSearch struct {
	engine Engine
	log    requestLog
}

// NewRotationSearch 创建旋转搜索
func NewRotationSearch(engine Engine) *RotationSearch {
	return &RotationSearch{engine: engine, log: defaultRequestLog()}
}

// RotationResult 旋转搜索结果
type RotationResult struct {
	// Matches 达到置信度的旋转匹配
	Matches []OrientedMatch
	// Best 所有候选中得分最高的一个（可能低于阈值）
	Best *OrientedMatch
}

// Search 查找旋转后的模板
func (r *RotationSearch) Search(haystack, needle Image, confidence float64, opts RotationOption) (RotationResult, error) {
	var out RotationResult

	candidates, err := r.engine.FeatureMatch(haystack, needle, opts)
	if err != nil {
		return out, fmt.Errorf("旋转特征匹配失败: %w", err)
	}

	for i := range candidates {
		c := candidates[i]
		if out.Best == nil || c.Score > out.Best.Score {
			out.Best = &c
		}
		if c.Score >= confidence {
			r.log.Debug("旋转匹配: 角度=%.1f, 得分=%.4f", c.Angle, c.Score)
			out.Matches = append(out.Matches, c)
		}
	}
	return out, nil
}

// BoundingRegion 将旋转匹配还原为轴对齐区域
// 原点取最上方角点，若最左角点更靠左则左移；宽高不小于未旋转模板的宽高
func BoundingRegion(m OrientedMatch) Region {
	corners := m.Corners()

	top, bottom := corners[0], corners[0]
	left, right := corners[0], corners[0]
	for _, p := range corners[1:] {
		if p.Y < top.Y {
			top = p
		}
		if p.Y > bottom.Y {
			bottom = p
		}
		if p.X < left.X {
			left = p
		}
		if p.X > right.X {
			right = p
		}
	}

	originX := math.Min(top.X, left.X)
	width := math.Max(right.X-originX, float64(m.Size.Width))
	height := math.Max(bottom.Y-top.Y, float64(m.Size.Height))

	return Region{Left: originX, Top: top.Y, Width: width, Height: height}
}

// OrientedToResults 转换为 MatchResult
func OrientedToResults(matches []OrientedMatch) []MatchResult {
	return lo.Map(matches, func(m OrientedMatch, _ int) MatchResult {
		return MatchResult{Confidence: m.Score, Location: BoundingRegion(m)}
	})
}
