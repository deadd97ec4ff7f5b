// Package screen 屏幕截图数据源
//
// 截图为物理像素，屏幕尺寸为 robotgo 输入坐标（逻辑像素），
// 两者之比即像素密度。
package screen

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// Screen robotgo 屏幕数据源
type Screen struct {
	// display 显示器编号，-1 表示主屏
	display int
}

// Option 屏幕选项
type Option func(*Screen)

// WithDisplay 指定显示器
func WithDisplay(id int) Option {
	return func(s *Screen) {
		s.display = id
	}
}

// New 创建屏幕数据源
func New(opts ...Option) *Screen {
	s := &Screen{display: -1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ finder.Screen = (*Screen)(nil)

// Capture 截取整个屏幕，返回图像和像素密度
func (s *Screen) Capture() (image.Image, finder.PixelDensity, error) {
	var (
		img image.Image
		err error
	)
	if s.display >= 0 {
		x, y, w, h := robotgo.GetDisplayBounds(s.display)
		img, err = robotgo.CaptureImg(x, y, w, h)
	} else {
		img, err = robotgo.CaptureImg()
	}
	if err != nil {
		return nil, finder.PixelDensity{}, fmt.Errorf("截屏失败: %w", err)
	}

	w, h, err := s.Size()
	if err != nil {
		return nil, finder.PixelDensity{}, err
	}
	return img, DensityOf(img, w, h), nil
}

// Size 返回逻辑屏幕尺寸
func (s *Screen) Size() (int, int, error) {
	var w, h int
	if s.display >= 0 {
		if s.display >= robotgo.DisplaysNum() {
			return 0, 0, fmt.Errorf("显示器 %d 不存在", s.display)
		}
		_, _, w, h = robotgo.GetDisplayBounds(s.display)
	} else {
		w, h = robotgo.GetScreenSize()
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("获取屏幕尺寸失败: %dx%d", w, h)
	}
	return w, h, nil
}

// GetDisplayCount 获取显示器数量
func GetDisplayCount() int {
	return robotgo.DisplaysNum()
}

// DensityOf 根据截图尺寸与逻辑尺寸计算像素密度
func DensityOf(img image.Image, logicalW, logicalH int) finder.PixelDensity {
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()

	density := finder.UnitDensity
	if logicalW > 0 && imgW > 0 {
		density.ScaleX = float64(imgW) / float64(logicalW)
	}
	if logicalH > 0 && imgH > 0 {
		density.ScaleY = float64(imgH) / float64(logicalH)
	}
	return density
}
