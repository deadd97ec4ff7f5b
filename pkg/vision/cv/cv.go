// Package cv 基于 OpenCV (gocv) 的视觉引擎
//
// 提供:
//   - 模板匹配得分图 (TM_SQDIFF / TM_CCORR / TM_CCOEFF 及其归一化版本)
//   - SIFT 特征点匹配，用于旋转容忍的查找
//
// 基本用法:
//
//	engine := cv.New()
//	f := finder.New(engine, finder.WithScreen(screen.New()))
//	result, err := f.FindMatch(finder.Request{Needle: "button.png"})
package cv

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// Engine OpenCV 视觉引擎
type Engine struct {
	// ratio KNN 比率测试阈值
	ratio float64
	// minInliers 单应性最少内点数
	minInliers int
	// maxInstances 特征匹配最多返回的实例数
	maxInstances int
}

// Option 引擎选项
type Option func(*Engine)

// WithRatio 设置 KNN 比率测试阈值
func WithRatio(ratio float64) Option {
	return func(e *Engine) {
		e.ratio = ratio
	}
}

// WithMaxInstances 设置特征匹配最多返回的实例数
func WithMaxInstances(n int) Option {
	return func(e *Engine) {
		e.maxInstances = n
	}
}

// New 创建 OpenCV 引擎
func New(opts ...Option) *Engine {
	e := &Engine{
		ratio:        defaultRatio,
		minInliers:   defaultKeypointMinInliers,
		maxInstances: defaultMaxInstances,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ finder.Engine = (*Engine)(nil)

// Load 读取图像文件（或 data:image/... base64 URL）
func (e *Engine) Load(path string) (finder.Image, error) {
	mat, err := ReadImageGray(path)
	if err != nil {
		return nil, err
	}
	return &Image{mat: mat}, nil
}

// FromImage 转换内存图像
func (e *Engine) FromImage(img image.Image) (finder.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("图像为 nil")
	}
	color, err := ImageToMat(img)
	if err != nil {
		return nil, err
	}
	defer color.Close()
	return &Image{mat: ToGray(color)}, nil
}

// Crop 裁剪，返回独立的 Mat
func (e *Engine) Crop(img finder.Image, rect image.Rectangle) (finder.Image, error) {
	m, err := asImage(img)
	if err != nil {
		return nil, err
	}
	rect = rect.Intersect(image.Rect(0, 0, m.mat.Cols(), m.mat.Rows()))
	if rect.Empty() {
		return nil, fmt.Errorf("裁剪区域为空")
	}
	return &Image{mat: CropImage(m.mat, rect)}, nil
}

// Resize 按比例缩放
func (e *Engine) Resize(img finder.Image, factor float64) (finder.Image, error) {
	m, err := asImage(img)
	if err != nil {
		return nil, err
	}
	if factor <= 0 {
		return nil, fmt.Errorf("缩放系数必须大于 0: %g", factor)
	}
	w := int(math.Round(float64(m.mat.Cols()) * factor))
	h := int(math.Round(float64(m.mat.Rows()) * factor))
	if w <= 0 || h <= 0 {
		return &Image{mat: gocv.NewMat()}, nil
	}
	return &Image{mat: ResizeImage(m.mat, w, h)}, nil
}

// ScoreMap 计算模板匹配得分图
func (e *Engine) ScoreMap(haystack, needle finder.Image, method finder.Method) (*finder.ScoreMap, error) {
	h, err := asImage(haystack)
	if err != nil {
		return nil, err
	}
	n, err := asImage(needle)
	if err != nil {
		return nil, err
	}
	return scoreMap(h.mat, n.mat, method)
}

func asImage(img finder.Image) (*Image, error) {
	m, ok := img.(*Image)
	if !ok || m == nil {
		return nil, fmt.Errorf("不支持的图像类型: %T", img)
	}
	if m.mat.Empty() {
		return nil, fmt.Errorf("图像为空")
	}
	return m, nil
}
