// Package native 纯 Go 视觉引擎，不依赖 OpenCV
//
// 图像读取、裁剪、缩放、灰度化使用 imaging，旋转使用 bild。
// 得分图在灰度图上计算，与 OpenCV 的 matchTemplate 公式一致。
package native

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// Image 引擎图像：原始像素 + 灰度缓存
type Image struct {
	src  *image.NRGBA
	gray []float64
	// mask 为 nil 表示全部像素参与计算
	mask []bool
	w, h int
}

// newImage 构建灰度缓存；alpha 小于 opaque 的像素不参与计算
func newImage(src *image.NRGBA, opaque uint8) *Image {
	b := src.Bounds()
	img := &Image{src: src, w: b.Dx(), h: b.Dy()}
	if img.w == 0 || img.h == 0 {
		return img
	}

	g := imaging.Grayscale(src)
	img.gray = make([]float64, img.w*img.h)
	for y := 0; y < img.h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+img.w*4]
		for x := 0; x < img.w; x++ {
			off := y*img.w + x
			img.gray[off] = float64(row[x*4])
			if row[x*4+3] < opaque {
				if img.mask == nil {
					img.mask = make([]bool, img.w*img.h)
					for i := range img.mask {
						img.mask[i] = true
					}
				}
				img.mask[off] = false
			}
		}
	}
	return img
}

// Size 返回宽高
func (m *Image) Size() (int, int) {
	return m.w, m.h
}

// Image 返回像素数据
func (m *Image) Image() image.Image {
	return m.src
}

// Masked 是否存在被忽略的透明像素
func (m *Image) Masked() bool {
	return m.mask != nil
}

// Engine 纯 Go 引擎
type Engine struct {
	// workers 并行计算的协程数，0 表示 CPU 核数
	workers int
}

// Option 引擎选项
type Option func(*Engine)

// WithWorkers 设置并行协程数
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// New 创建纯 Go 引擎
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ finder.Engine = (*Engine)(nil)

// Load 从文件读取图像（png/jpeg/gif/bmp/tiff/webp）
func (e *Engine) Load(path string) (finder.Image, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("读取图像失败: %w", err)
	}
	return newImage(imaging.Clone(src), 1), nil
}

// FromImage 转换内存图像
func (e *Engine) FromImage(img image.Image) (finder.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("图像为 nil")
	}
	return newImage(imaging.Clone(img), 1), nil
}

// Crop 裁剪
func (e *Engine) Crop(img finder.Image, rect image.Rectangle) (finder.Image, error) {
	m, err := asImage(img)
	if err != nil {
		return nil, err
	}
	rect = rect.Intersect(m.src.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("裁剪区域为空")
	}
	return newImage(imaging.Crop(m.src, rect), 1), nil
}

// Resize 按比例缩放（双线性）
func (e *Engine) Resize(img finder.Image, factor float64) (finder.Image, error) {
	m, err := asImage(img)
	if err != nil {
		return nil, err
	}
	if factor <= 0 {
		return nil, fmt.Errorf("缩放系数必须大于 0: %g", factor)
	}
	w := int(math.Round(float64(m.w) * factor))
	h := int(math.Round(float64(m.h) * factor))
	if w <= 0 || h <= 0 {
		return newImage(&image.NRGBA{}, 1), nil
	}
	return newImage(imaging.Resize(m.src, w, h, imaging.Linear), 1), nil
}

// ScoreMap 计算得分图
func (e *Engine) ScoreMap(haystack, needle finder.Image, method finder.Method) (*finder.ScoreMap, error) {
	h, err := asImage(haystack)
	if err != nil {
		return nil, err
	}
	n, err := asImage(needle)
	if err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, fmt.Errorf("未知的匹配方法: %s", method)
	}
	if n.w == 0 || n.h == 0 || n.w > h.w || n.h > h.h {
		return nil, fmt.Errorf("模板 %dx%d 大于源图 %dx%d", n.w, n.h, h.w, h.h)
	}
	return e.scoreMap(h, n, method), nil
}

func asImage(img finder.Image) (*Image, error) {
	m, ok := img.(*Image)
	if !ok || m == nil {
		return nil, fmt.Errorf("不支持的图像类型: %T", img)
	}
	return m, nil
}
