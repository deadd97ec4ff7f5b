package finder

import (
	"errors"
	"image"
	"math"
	"sync/atomic"
)

// plant 预置在源图中的目标
type plant struct {
	rect  Region
	score float64
}

// plantedImage 带预置目标的内存图像
type plantedImage struct {
	*image.Gray
	plants []plant
}

func newPlanted(w, h int, plants ...plant) *plantedImage {
	return &plantedImage{Gray: image.NewGray(image.Rect(0, 0, w, h)), plants: plants}
}

// fakeImage 测试引擎的图像
type fakeImage struct {
	w, h   int
	plants []plant
	engine *fakeEngine
}

func (f *fakeImage) Size() (int, int) { return f.w, f.h }

func (f *fakeImage) Close() error {
	f.engine.closed.Add(1)
	return nil
}

// fakeEngine 按预置目标生成确定性得分图
// 模板尺寸与目标尺寸相差不超过 1 像素时，该位置得分为目标得分，其余位置为 background
type fakeEngine struct {
	background float64
	features   []OrientedMatch

	created    atomic.Int32
	closed     atomic.Int32
	scoreCalls atomic.Int32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{background: 0.1}
}

func (e *fakeEngine) newImage(w, h int, plants []plant) *fakeImage {
	e.created.Add(1)
	return &fakeImage{w: w, h: h, plants: plants, engine: e}
}

func (e *fakeEngine) Load(path string) (Image, error) {
	return nil, errors.New("文件不存在: " + path)
}

func (e *fakeEngine) FromImage(img image.Image) (Image, error) {
	b := img.Bounds()
	var plants []plant
	if p, ok := img.(*plantedImage); ok {
		plants = append(plants, p.plants...)
	}
	return e.newImage(b.Dx(), b.Dy(), plants), nil
}

func (e *fakeEngine) Crop(img Image, rect image.Rectangle) (Image, error) {
	src := img.(*fakeImage)
	bounds := RegionFromRect(rect)
	var plants []plant
	for _, p := range src.plants {
		if p.rect.Within(bounds) {
			plants = append(plants, plant{
				rect:  p.rect.Offset(-float64(rect.Min.X), -float64(rect.Min.Y)),
				score: p.score,
			})
		}
	}
	return e.newImage(rect.Dx(), rect.Dy(), plants), nil
}

func (e *fakeEngine) Resize(img Image, factor float64) (Image, error) {
	src := img.(*fakeImage)
	plants := make([]plant, len(src.plants))
	for i, p := range src.plants {
		plants[i] = plant{rect: p.rect.Scale(factor), score: p.score}
	}
	w := int(math.Round(float64(src.w) * factor))
	h := int(math.Round(float64(src.h) * factor))
	return e.newImage(w, h, plants), nil
}

func (e *fakeEngine) ScoreMap(haystack, needle Image, method Method) (*ScoreMap, error) {
	e.scoreCalls.Add(1)
	h := haystack.(*fakeImage)
	nw, nh := needle.Size()
	if nw > h.w || nh > h.h {
		return nil, errors.New("模板大于源图")
	}

	sm := &ScoreMap{
		Width:    h.w - nw + 1,
		Height:   h.h - nh + 1,
		Needle:   Size{Width: nw, Height: nh},
		Channels: 1,
		Method:   method,
	}
	sm.Values = make([]float32, sm.Width*sm.Height)
	for i := range sm.Values {
		sm.Values[i] = float32(e.raw(method, e.background))
	}
	for _, p := range h.plants {
		if math.Abs(math.Round(p.rect.Width)-float64(nw)) > 1 || math.Abs(math.Round(p.rect.Height)-float64(nh)) > 1 {
			continue
		}
		x, y := int(math.Round(p.rect.Left)), int(math.Round(p.rect.Top))
		if x < 0 || y < 0 || x >= sm.Width || y >= sm.Height {
			continue
		}
		sm.Values[y*sm.Width+x] = float32(e.raw(method, p.score))
	}
	return sm, nil
}

// raw 置信度 => 原始得分，仅支持归一化方法
func (e *fakeEngine) raw(method Method, confidence float64) float64 {
	if method == SqDiffNormed {
		return 1 - confidence
	}
	return confidence
}

func (e *fakeEngine) FeatureMatch(haystack, needle Image, opts RotationOption) ([]OrientedMatch, error) {
	return e.features, nil
}

// fakeScreen 固定尺寸的屏幕
type fakeScreen struct {
	width, height int
	image         image.Image
	density       PixelDensity
}

func (s *fakeScreen) Capture() (image.Image, PixelDensity, error) {
	if s.image == nil {
		return nil, PixelDensity{}, errors.New("截屏失败")
	}
	return s.image, s.density, nil
}

func (s *fakeScreen) Size() (int, int, error) {
	return s.width, s.height, nil
}
