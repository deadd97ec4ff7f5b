package finder

import (
	"cmp"
	"math"
	"slices"
)

// SuppressionThreshold 重叠比例达到该值视为重复检测
const SuppressionThreshold = 0.5

// OverlapRatio 两个区域的重叠比例：交集面积 / 较小区域面积
// 不同尺度下同一目标的检测框往往互相包含，因此以较小面积为分母
func OverlapRatio(a, b Region) float64 {
	iw := math.Min(a.Right(), b.Right()) - math.Max(a.Left, b.Left)
	ih := math.Min(a.Bottom(), b.Bottom()) - math.Max(a.Top, b.Top)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	minArea := math.Min(a.Area(), b.Area())
	if minArea <= 0 {
		return 0
	}
	return iw * ih / minArea
}

// SuppressNonMaximum 非极大值抑制：每组重叠结果只保留置信度最高的一个
// 返回结果按置信度降序
func SuppressNonMaximum(matches []MatchResult) []MatchResult {
	if len(matches) < 2 {
		return slices.Clone(matches)
	}

	sorted := slices.Clone(matches)
	slices.SortStableFunc(sorted, func(a, b MatchResult) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	kept := make([]MatchResult, 0, len(sorted))
	for _, candidate := range sorted {
		drop := false
		for _, existing := range kept {
			if OverlapRatio(candidate.Location, existing.Location) >= SuppressionThreshold {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, candidate)
		}
	}
	return kept
}
