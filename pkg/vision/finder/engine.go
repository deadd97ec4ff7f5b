package finder

import (
	"image"
)

// Image 引擎持有的像素缓冲
type Image interface {
	// Size 返回物理像素宽高
	Size() (width, height int)
}

// Closer 需要释放资源的图像（如 gocv.Mat）
type Closer interface {
	Close() error
}

// Engine 视觉引擎：像素级计算全部交由实现完成
type Engine interface {
	// Load 从文件读取图像
	Load(path string) (Image, error)
	// FromImage 转换内存图像
	FromImage(img image.Image) (Image, error)
	// Crop 裁剪，返回新的图像
	Crop(img Image, rect image.Rectangle) (Image, error)
	// Resize 按比例缩放，不修改输入
	Resize(img Image, factor float64) (Image, error)
	// ScoreMap 计算完整得分图
	ScoreMap(haystack, needle Image, method Method) (*ScoreMap, error)
	// FeatureMatch 旋转容忍的特征匹配，可能返回空
	FeatureMatch(haystack, needle Image, opts RotationOption) ([]OrientedMatch, error)
}

// Screen 屏幕数据源
type Screen interface {
	// Capture 截取全屏，返回图像与像素密度
	Capture() (image.Image, PixelDensity, error)
	// Size 逻辑屏幕尺寸，仅用于 ROI 校验
	Size() (width, height int, err error)
}

// release 释放图像资源
func release(images ...Image) {
	for _, img := range images {
		if c, ok := img.(Closer); ok && c != nil {
			_ = c.Close()
		}
	}
}

func imageSize(img Image) [2]int {
	w, h := img.Size()
	return [2]int{w, h}
}
