package cv

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"strings"

	"gocv.io/x/gocv"
)

// Image 引擎图像，持有灰度 Mat
type Image struct {
	mat gocv.Mat
}

// Size 返回宽高
func (m *Image) Size() (int, int) {
	return m.mat.Cols(), m.mat.Rows()
}

// Mat 返回底层 Mat，调用方不得关闭
func (m *Image) Mat() gocv.Mat {
	return m.mat
}

// Close 释放 Mat
func (m *Image) Close() error {
	return m.mat.Close()
}

// ReadImageGray 读取灰度图像，支持 data:image/...;base64, 格式
func ReadImageGray(filename string) (gocv.Mat, error) {
	if strings.HasPrefix(filename, "data:image/") {
		data, err := decodeDataURL(filename)
		if err != nil {
			return gocv.NewMat(), err
		}
		mat, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
		if err != nil || mat.Empty() {
			return mat, fmt.Errorf("无法解码图像: %v", err)
		}
		return mat, nil
	}

	mat := gocv.IMRead(filename, gocv.IMReadGrayScale)
	if mat.Empty() {
		return mat, fmt.Errorf("无法读取图像: %s", filename)
	}
	return mat, nil
}

func decodeDataURL(url string) ([]byte, error) {
	idx := strings.Index(url, ";base64,")
	if idx < 0 {
		return nil, fmt.Errorf("不支持的 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(url[idx+len(";base64,"):])
	if err != nil {
		return nil, fmt.Errorf("base64 解码失败: %w", err)
	}
	return data, nil
}

// ToGray 转换为灰度图
func ToGray(src gocv.Mat) gocv.Mat {
	switch src.Channels() {
	case 1:
		return src.Clone()
	case 4:
		dst := gocv.NewMat()
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
		return dst
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	return dst
}

// CropImage 裁剪图像，返回独立副本
func CropImage(img gocv.Mat, rect image.Rectangle) gocv.Mat {
	rect = rect.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	region := img.Region(rect)
	defer region.Close()
	return region.Clone()
}

// ResizeImage 调整图像大小
func ResizeImage(img gocv.Mat, width, height int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(img, &dst, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	return dst
}

// ImageToMat 将 image.Image 转换为 BGR Mat
func ImageToMat(img image.Image) (gocv.Mat, error) {
	// 子图或非 RGBA 格式先复制为紧凑的 RGBA
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != rgba.Rect.Dx()*4 {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	// ImageToMatRGB 返回的已是 BGR 通道顺序
	mat, err := gocv.ImageToMatRGB(rgba)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("图像转换失败: %w", err)
	}
	return mat, nil
}
