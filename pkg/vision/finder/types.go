// Package finder 提供多尺度、旋转容忍的模板查找编排
//
// 查找流程:
//   - 多尺度搜索: 先缩放模板，失败后缩放源图
//   - 覆盖式匹配: 同一尺度下反复取最佳位置并屏蔽已命中区域
//   - 旋转搜索: 交由引擎做特征点匹配，结果还原为外接矩形
//   - 非极大值抑制: 合并不同尺度产生的重叠结果
//   - 坐标还原: ROI 偏移、像素密度缩放、置信度过滤
//
// 像素级计算（相关性、缩放、特征点）由 Engine 实现提供，见 cv 与 native 包。
package finder

import (
	"fmt"
	"image"
	"math"
)

// Region 表示矩形区域（逻辑像素）
type Region struct {
	Left   float64 `json:"left" yaml:"left"`
	Top    float64 `json:"top" yaml:"top"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// NewRegion 创建 Region
func NewRegion(left, top, width, height float64) Region {
	return Region{Left: left, Top: top, Width: width, Height: height}
}

// Right 返回右边界
func (r Region) Right() float64 {
	return r.Left + r.Width
}

// Bottom 返回下边界
func (r Region) Bottom() float64 {
	return r.Top + r.Height
}

// Area 返回面积
func (r Region) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Center 返回中心点
func (r Region) Center() (float64, float64) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// Contains 判断点是否落在区域内（左闭右开）
func (r Region) Contains(x, y float64) bool {
	return x >= r.Left && x < r.Right() && y >= r.Top && y < r.Bottom()
}

// Within 判断区域是否完全位于 bounds 内
func (r Region) Within(bounds Region) bool {
	return r.Left >= bounds.Left && r.Top >= bounds.Top &&
		r.Right() <= bounds.Right() && r.Bottom() <= bounds.Bottom()
}

// Offset 平移区域
func (r Region) Offset(dx, dy float64) Region {
	return Region{Left: r.Left + dx, Top: r.Top + dy, Width: r.Width, Height: r.Height}
}

// Scale 所有坐标乘以 factor
func (r Region) Scale(factor float64) Region {
	return Region{
		Left:   r.Left * factor,
		Top:    r.Top * factor,
		Width:  r.Width * factor,
		Height: r.Height * factor,
	}
}

// ImageRect 转换为 image.Rectangle（向外取整）
func (r Region) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.Left)),
		int(math.Floor(r.Top)),
		int(math.Ceil(r.Right())),
		int(math.Ceil(r.Bottom())),
	)
}

// RegionFromRect 从 image.Rectangle 创建 Region
func RegionFromRect(rect image.Rectangle) Region {
	return Region{
		Left:   float64(rect.Min.X),
		Top:    float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

func (r Region) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", r.Left, r.Top, r.Width, r.Height)
}

// MatchResult 单个匹配结果
type MatchResult struct {
	// Confidence 置信度，越高越好
	Confidence float64 `json:"confidence"`
	// Location 匹配区域
	Location Region `json:"location"`
	// Error 诊断信息（可选）
	Error string `json:"error,omitempty"`
}

// PixelDensity 逻辑像素与物理像素的比例
type PixelDensity struct {
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

// UnitDensity 1:1 像素密度
var UnitDensity = PixelDensity{ScaleX: 1, ScaleY: 1}

// Uniform 返回统一缩放系数；X/Y 不相等或为 0 时返回 false
func (d PixelDensity) Uniform() (float64, bool) {
	if d.ScaleX == 0 || d.ScaleY == 0 || d.ScaleX != d.ScaleY {
		return 1, false
	}
	return d.ScaleX, true
}

// Point2f 浮点坐标点
type Point2f struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size 宽高
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OrientedMatch 旋转匹配结果（四个角点）
type OrientedMatch struct {
	TopLeft     Point2f `json:"top_left"`
	BottomLeft  Point2f `json:"bottom_left"`
	BottomRight Point2f `json:"bottom_right"`
	TopRight    Point2f `json:"top_right"`
	// Score 相似度
	Score float64 `json:"score"`
	// Angle 估计的旋转角度（度）
	Angle float64 `json:"angle"`
	// Size 未旋转的模板尺寸
	Size Size `json:"size"`
}

// Corners 返回四个角点
func (m OrientedMatch) Corners() [4]Point2f {
	return [4]Point2f{m.TopLeft, m.BottomLeft, m.BottomRight, m.TopRight}
}

// Snapshot 带像素密度的图像输入
type Snapshot struct {
	Image   image.Image
	Density PixelDensity
}

// ImageInput 支持的图像输入类型
// 可以是文件路径 (string)、image.Image、Snapshot 或引擎 Image
type ImageInput interface{}
