package cv

import (
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

const (
	defaultKeypointMinInliers    = 4
	defaultKeypointMinInlierRate = 0.3
	defaultCornerTolRatio        = 0.02
	defaultCornerTolPx           = 8.0
	defaultRatio                 = 0.75
	defaultMaxInstances          = 8
	// minPyramidSide 降采样后模板的最小边长
	minPyramidSide = 16
)

// FeatureMatch SIFT 特征点匹配
// 每次用 RANSAC 求一个单应性，移除其内点后继续求下一个实例
func (e *Engine) FeatureMatch(haystack, needle finder.Image, opts finder.RotationOption) ([]finder.OrientedMatch, error) {
	h, err := asImage(haystack)
	if err != nil {
		return nil, err
	}
	n, err := asImage(needle)
	if err != nil {
		return nil, err
	}

	source, search := h.mat, n.mat
	factor := pyramidFactor(source, search, opts.MinDstLength)
	if factor != 1 {
		source = ResizeImage(h.mat, int(math.Round(float64(h.mat.Cols())*factor)), int(math.Round(float64(h.mat.Rows())*factor)))
		defer source.Close()
		search = ResizeImage(n.mat, int(math.Round(float64(n.mat.Cols())*factor)), int(math.Round(float64(n.mat.Rows())*factor)))
		defer search.Close()
	}

	sift := gocv.NewSIFT()
	defer sift.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	kpSearch, descSearch := sift.DetectAndCompute(search, mask)
	defer descSearch.Close()
	kpSource, descSource := sift.DetectAndCompute(source, mask)
	defer descSource.Close()

	if len(kpSearch) < 2 || len(kpSource) < 2 {
		return nil, nil
	}

	matcher := gocv.NewBFMatcherWithParams(gocv.NormL2, false)
	defer matcher.Close()
	good := filterGoodMatches(matcher.KnnMatch(descSearch, descSource, 2), e.ratio)

	var out []finder.OrientedMatch
	for len(out) < e.maxInstances && len(good) >= e.minInliers {
		inst, ok := e.findInstance(kpSearch, kpSource, good, source, search)
		if !ok {
			break
		}
		good = inst.remaining

		if inst.valid {
			m := toOriented(inst.corners, factor)
			m.Angle = cornerAngle(m)
			m.Score = inst.score
			m.Size = finder.Size{Width: n.mat.Cols(), Height: n.mat.Rows()}
			if math.Abs(m.Angle) <= opts.Range+1e-9 {
				out = append(out, m)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// instance 单次单应性求解结果
type instance struct {
	corners   []gocv.Point2f
	score     float64
	valid     bool
	remaining []gocv.DMatch
}

// findInstance 求解一个实例；ok 为 false 表示无法继续
func (e *Engine) findInstance(kpSearch, kpSource []gocv.KeyPoint, matches []gocv.DMatch, source, search gocv.Mat) (instance, bool) {
	var inst instance

	srcMat := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV32FC2)
	dstMat := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV32FC2)
	defer srcMat.Close()
	defer dstMat.Close()

	for i, m := range matches {
		srcMat.SetFloatAt(i, 0, float32(kpSearch[m.QueryIdx].X))
		srcMat.SetFloatAt(i, 1, float32(kpSearch[m.QueryIdx].Y))
		dstMat.SetFloatAt(i, 0, float32(kpSource[m.TrainIdx].X))
		dstMat.SetFloatAt(i, 1, float32(kpSource[m.TrainIdx].Y))
	}

	mask := gocv.NewMat()
	defer mask.Close()
	H := gocv.FindHomography(srcMat, dstMat, gocv.HomographyMethodRANSAC, 5.0, &mask, 2000, 0.995)
	defer H.Close()
	if H.Empty() || mask.Empty() {
		return inst, false
	}

	inliers, rate := countInliers(mask, len(matches))
	if inliers == 0 {
		return inst, false
	}
	for i, m := range matches {
		if mask.GetUCharAt(i, 0) == 0 {
			inst.remaining = append(inst.remaining, m)
		}
	}
	if inliers < e.minInliers || rate < defaultKeypointMinInlierRate {
		// 剩余匹配过于分散，不再继续
		return inst, len(inst.remaining) < len(matches) && rate >= defaultKeypointMinInlierRate/2
	}

	h, w := search.Rows(), search.Cols()
	corners := perspectiveTransform([]gocv.Point2f{
		{X: 0, Y: 0},
		{X: 0, Y: float32(h)},
		{X: float32(w), Y: float32(h)},
		{X: float32(w), Y: 0},
	}, H)
	if !validateCorners(corners, source.Cols(), source.Rows()) {
		return inst, true
	}

	inst.corners = corners
	inst.valid = true
	inst.score = verifyConfidence(source, search, H)
	if inst.score < 0 {
		// 无法回投影时退化为内点比例
		inst.score = (1 + rate) / 2
	}
	return inst, true
}

// pyramidFactor 源图短边超过 minDst 时降采样，模板不小于 minPyramidSide
func pyramidFactor(source, search gocv.Mat, minDst int) float64 {
	short := min(source.Cols(), source.Rows())
	if minDst <= 0 || short <= minDst {
		return 1
	}
	factor := float64(minDst) / float64(short)
	needleShort := float64(min(search.Cols(), search.Rows()))
	if needleShort*factor < minPyramidSide {
		factor = math.Min(1, minPyramidSide/needleShort)
	}
	return factor
}

func toOriented(corners []gocv.Point2f, factor float64) finder.OrientedMatch {
	p := func(c gocv.Point2f) finder.Point2f {
		return finder.Point2f{X: float64(c.X) / factor, Y: float64(c.Y) / factor}
	}
	return finder.OrientedMatch{
		TopLeft:     p(corners[0]),
		BottomLeft:  p(corners[1]),
		BottomRight: p(corners[2]),
		TopRight:    p(corners[3]),
	}
}

// cornerAngle 上边 (左上 -> 右上) 相对水平方向的角度，顺时针为正
func cornerAngle(m finder.OrientedMatch) float64 {
	return math.Atan2(m.TopRight.Y-m.TopLeft.Y, m.TopRight.X-m.TopLeft.X) * 180 / math.Pi
}

// filterGoodMatches 比率测试筛选匹配点，按距离升序
func filterGoodMatches(matches [][]gocv.DMatch, ratio float64) []gocv.DMatch {
	var good []gocv.DMatch
	for _, m := range matches {
		if len(m) >= 2 && float64(m[0].Distance) < ratio*float64(m[1].Distance) {
			good = append(good, m[0])
		}
	}

	sort.Slice(good, func(i, j int) bool {
		return good[i].Distance < good[j].Distance
	})

	return good
}

func countInliers(mask gocv.Mat, total int) (int, float64) {
	if total == 0 || mask.Empty() {
		return 0, 0
	}
	inliers := 0
	for i := 0; i < mask.Rows(); i++ {
		if mask.GetUCharAt(i, 0) > 0 {
			inliers++
		}
	}
	return inliers, float64(inliers) / float64(total)
}

func validateCorners(corners []gocv.Point2f, width, height int) bool {
	if len(corners) != 4 || width <= 0 || height <= 0 {
		return false
	}

	w := float64(width)
	h := float64(height)
	tolX := math.Max(defaultCornerTolPx, w*defaultCornerTolRatio)
	tolY := math.Max(defaultCornerTolPx, h*defaultCornerTolRatio)

	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64

	for _, pt := range corners {
		x := float64(pt.X)
		y := float64(pt.Y)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return false
		}
		if x < -tolX || x > (w-1)+tolX || y < -tolY || y > (h-1)+tolY {
			return false
		}
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	if maxX-minX < 2 || maxY-minY < 2 {
		return false
	}

	return polygonArea(corners) >= 1
}

func polygonArea(pts []gocv.Point2f) float64 {
	if len(pts) < 3 {
		return 0
	}
	area := 0.0
	for i := 0; i < len(pts); i++ {
		j := (i + 1) % len(pts)
		area += float64(pts[i].X*pts[j].Y - pts[j].X*pts[i].Y)
	}
	return math.Abs(area) * 0.5
}

// perspectiveTransform 透视变换
func perspectiveTransform(pts []gocv.Point2f, H gocv.Mat) []gocv.Point2f {
	m := homography(H)
	result := make([]gocv.Point2f, len(pts))
	for i, pt := range pts {
		x, y := m.apply(float64(pt.X), float64(pt.Y))
		result[i] = gocv.Point2f{X: float32(x), Y: float32(y)}
	}
	return result
}

// matrix3 3x3 单应性矩阵
type matrix3 [3][3]float64

func homography(H gocv.Mat) matrix3 {
	var m matrix3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = H.GetDoubleAt(r, c)
		}
	}
	return m
}

func (m matrix3) apply(x, y float64) (float64, float64) {
	w := m[2][0]*x + m[2][1]*y + m[2][2]
	if w == 0 {
		return math.NaN(), math.NaN()
	}
	return (m[0][0]*x + m[0][1]*y + m[0][2]) / w, (m[1][0]*x + m[1][1]*y + m[1][2]) / w
}

// inverse 伴随矩阵求逆，奇异时返回 false
func (m matrix3) inverse() (matrix3, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return matrix3{}, false
	}
	inv := matrix3{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	for r := range inv {
		for c := range inv[r] {
			inv[r][c] /= det
		}
	}
	return inv, true
}

func (m matrix3) mat() gocv.Mat {
	out := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.SetDoubleAt(r, c, m[r][c])
		}
	}
	return out
}
