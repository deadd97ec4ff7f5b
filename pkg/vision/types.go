package vision

import (
	"image"
	"math"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// Version 版本号
const Version = "1.0.0"

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewPoint 创建新的 Point
func NewPoint(x, y int) Point {
	return Point{X: x, Y: y}
}

// Rectangle 表示矩形区域（四个角点）
type Rectangle struct {
	TopLeft     Point `json:"top_left"`
	BottomLeft  Point `json:"bottom_left"`
	BottomRight Point `json:"bottom_right"`
	TopRight    Point `json:"top_right"`
}

// NewRectangle 从左上角坐标和宽高创建矩形
func NewRectangle(x, y, w, h int) Rectangle {
	return Rectangle{
		TopLeft:     Point{X: x, Y: y},
		BottomLeft:  Point{X: x, Y: y + h},
		BottomRight: Point{X: x + w, Y: y + h},
		TopRight:    Point{X: x + w, Y: y},
	}
}

// RectangleOf 将区域四舍五入为整数矩形
func RectangleOf(r finder.Region) Rectangle {
	x := int(math.Round(r.Left))
	y := int(math.Round(r.Top))
	return NewRectangle(x, y, int(math.Round(r.Right()))-x, int(math.Round(r.Bottom()))-y)
}

// Center 返回矩形中心点
func (r Rectangle) Center() Point {
	return Point{
		X: (r.TopLeft.X + r.BottomRight.X) / 2,
		Y: (r.TopLeft.Y + r.BottomRight.Y) / 2,
	}
}

// Width 返回矩形宽度
func (r Rectangle) Width() int {
	return r.TopRight.X - r.TopLeft.X
}

// Height 返回矩形高度
func (r Rectangle) Height() int {
	return r.BottomLeft.Y - r.TopLeft.Y
}

// ToImageRect 转换为 image.Rectangle
func (r Rectangle) ToImageRect() image.Rectangle {
	return image.Rect(r.TopLeft.X, r.TopLeft.Y, r.BottomRight.X, r.BottomRight.Y)
}

// Match 带整数坐标的匹配结果，便于点击等后续操作
type Match struct {
	finder.MatchResult
	Rectangle Rectangle `json:"rectangle"`
	Center    Point     `json:"center"`
}

// NewMatch 由 MatchResult 构造 Match
func NewMatch(r finder.MatchResult) Match {
	rect := RectangleOf(r.Location)
	return Match{MatchResult: r, Rectangle: rect, Center: rect.Center()}
}
