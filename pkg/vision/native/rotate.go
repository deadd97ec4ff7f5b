package native

import (
	"cmp"
	"math"
	"slices"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
	"github.com/samber/lo"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

const (
	// maxAngleStep 角度步长上限（度）
	maxAngleStep = 10.0
	// minAngleStep 角度步长下限（度）
	minAngleStep = 1.0
	// minPyramidSide 降采样后模板的最小边长
	minPyramidSide = 8
	// peaksPerAngle 每个角度保留的峰值数量
	peaksPerAngle = 4
	// coarseKeep 粗扫后细化的角度数量
	coarseKeep = 3
)

// RotationAngles 返回旋转搜索的角度序列（度），从 0 开始向两侧展开
// 步长使模板角点每步移动约 2 像素，再按 OverLap 收紧
// 每个角度都是一次带掩码的逐像素得分图计算，100px 模板在 180 度范围内约 220 个角度，
// FeatureMatch 因此先按 maxAngleStep 粗扫，只在得分最高的角度附近细扫
func RotationAngles(opts finder.RotationOption, needle finder.Size) []float64 {
	step, indices := angleIndices(opts, needle)
	angles := make([]float64, len(indices))
	for i, idx := range indices {
		angles[i] = float64(idx) * step
	}
	return angles
}

// angleIndices 返回细扫步长和角度索引，角度 = 索引 * 步长
func angleIndices(opts finder.RotationOption, needle finder.Size) (float64, []int) {
	rangeDeg := math.Min(math.Abs(opts.Range), 180)
	if rangeDeg == 0 {
		return 0, []int{0}
	}

	radius := math.Hypot(float64(needle.Width), float64(needle.Height)) / 2
	step := maxAngleStep
	if radius > 0 {
		step = math.Atan2(2, radius) * 180 / math.Pi
	}
	step *= 1 - opts.OverLap
	step = math.Max(minAngleStep, math.Min(step, maxAngleStep))

	indices := []int{0}
	for i := 1; float64(i)*step <= rangeDeg+epsilon; i++ {
		indices = append(indices, i)
		if float64(i)*step < 180 {
			indices = append(indices, -i)
		}
	}
	return step, indices
}

// coarseStride 粗扫时相邻角度间隔的索引数
func coarseStride(step float64) int {
	if step <= 0 {
		return 1
	}
	return int(math.Ceil(maxAngleStep/step - epsilon))
}

// sweepPlan 粗扫索引：步长的整数倍
func sweepPlan(indices []int, stride int) []int {
	return lo.Filter(indices, func(i int, _ int) bool { return i%stride == 0 })
}

// refinePlan 细扫索引：与任一中心相差不足一个粗扫间隔
func refinePlan(indices, centers []int, stride int) []int {
	return lo.Filter(indices, func(i int, _ int) bool {
		return lo.SomeBy(centers, func(c int) bool { return abs(i-c) < stride })
	})
}

// pyramidFactor 源图短边超过 MinDstLength 时降采样，模板不小于 minPyramidSide
func pyramidFactor(h, n *Image, minDst int) float64 {
	short := min(h.w, h.h)
	if minDst <= 0 || short <= minDst {
		return 1
	}
	factor := float64(minDst) / float64(short)
	needleShort := float64(min(n.w, n.h))
	if needleShort*factor < minPyramidSide {
		factor = math.Min(1, minPyramidSide/needleShort)
	}
	return factor
}

// FeatureMatch 旋转容忍匹配：在角度序列上旋转模板（透明区域不参与计算）并做归一化相关
// 先粗扫，再在得分最高的 coarseKeep 个角度附近按细步长补齐
func (e *Engine) FeatureMatch(haystack, needle finder.Image, opts finder.RotationOption) ([]finder.OrientedMatch, error) {
	h, err := asImage(haystack)
	if err != nil {
		return nil, err
	}
	n, err := asImage(needle)
	if err != nil {
		return nil, err
	}

	factor := pyramidFactor(h, n, opts.MinDstLength)
	hs, ns := h, n
	if factor != 1 {
		hs = newImage(imaging.Resize(h.src, int(math.Round(float64(h.w)*factor)), 0, imaging.Linear), 1)
		ns = newImage(imaging.Resize(n.src, int(math.Round(float64(n.w)*factor)), 0, imaging.Linear), 1)
	}

	step, indices := angleIndices(opts, finder.Size{Width: ns.w, Height: ns.h})
	byIndex := map[int][]finder.OrientedMatch{}
	sweep := func(plan []int) {
		for _, i := range plan {
			if _, ok := byIndex[i]; !ok {
				byIndex[i] = e.matchAngle(hs, ns, n, factor, float64(i)*step)
			}
		}
	}

	stride := coarseStride(step)
	if stride <= 1 {
		sweep(indices)
	} else {
		sweep(sweepPlan(indices, stride))
		sweep(refinePlan(indices, bestAngles(byIndex, coarseKeep), stride))
	}

	keys := lo.Keys(byIndex)
	slices.Sort(keys)
	var matches []finder.OrientedMatch
	for _, i := range keys {
		matches = append(matches, byIndex[i]...)
	}
	slices.SortStableFunc(matches, func(a, b finder.OrientedMatch) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return matches, nil
}

// matchAngle 将缩放后的模板旋转 angle 度后匹配，坐标换算回原图
func (e *Engine) matchAngle(hs, ns, n *Image, factor, angle float64) []finder.OrientedMatch {
	rotated := ns
	if angle != 0 {
		rgba := transform.Rotate(ns.src, angle, &transform.RotationOptions{ResizeBounds: true})
		// 旋转引入的边缘像素不参与计算
		rotated = newImage(imaging.Clone(rgba), 255)
	}
	if rotated.w > hs.w || rotated.h > hs.h {
		return nil
	}

	sm := e.scoreMap(hs, rotated, finder.CCoeffNormed)
	var out []finder.OrientedMatch
	for _, p := range peaks(sm, peaksPerAngle) {
		cx := (float64(p.x) + float64(rotated.w)/2) / factor
		cy := (float64(p.y) + float64(rotated.h)/2) / factor
		m := orient(cx, cy, float64(n.w), float64(n.h), angle)
		m.Score = p.score
		m.Angle = angle
		m.Size = finder.Size{Width: n.w, Height: n.h}
		out = append(out, m)
	}
	return out
}

// bestAngles 按最高得分取前 k 个角度索引
func bestAngles(byIndex map[int][]finder.OrientedMatch, k int) []int {
	scored := lo.Filter(lo.Keys(byIndex), func(i int, _ int) bool { return len(byIndex[i]) > 0 })
	slices.SortFunc(scored, func(a, b int) int {
		if c := cmp.Compare(byIndex[b][0].Score, byIndex[a][0].Score); c != 0 {
			return c
		}
		return cmp.Compare(abs(a), abs(b))
	})
	return scored[:min(k, len(scored))]
}

type peak struct {
	x, y  int
	score float64
}

// peaks 取得分图中互不重叠的前 k 个峰值
func peaks(sm *finder.ScoreMap, k int) []peak {
	var out []peak
	for len(out) < k {
		best := peak{score: math.Inf(-1)}
		for y := 0; y < sm.Height; y++ {
			for x := 0; x < sm.Width; x++ {
				s := sm.ConfidenceAt(x, y)
				if s <= best.score || nearPeak(out, x, y, sm.Needle) {
					continue
				}
				best = peak{x: x, y: y, score: s}
			}
		}
		if math.IsInf(best.score, -1) {
			break
		}
		out = append(out, best)
	}
	return out
}

func nearPeak(ps []peak, x, y int, size finder.Size) bool {
	for _, p := range ps {
		if abs(x-p.x) < size.Width && abs(y-p.y) < size.Height {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// orient 以 (cx, cy) 为中心、顺时针旋转 angle 度的 w*h 矩形四角
func orient(cx, cy, w, h, angle float64) finder.OrientedMatch {
	rad := angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	corner := func(dx, dy float64) finder.Point2f {
		return finder.Point2f{
			X: cx + dx*cos - dy*sin,
			Y: cy + dx*sin + dy*cos,
		}
	}
	return finder.OrientedMatch{
		TopLeft:     corner(-w/2, -h/2),
		BottomLeft:  corner(-w/2, h/2),
		BottomRight: corner(w/2, h/2),
		TopRight:    corner(w/2, -h/2),
	}
}
