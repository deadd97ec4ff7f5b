package finder

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyImage 模板或源图加载失败
	ErrEmptyImage = errors.New("图像为空")
	// ErrTemplateTooLarge 模板在最小缩放下仍大于源图
	ErrTemplateTooLarge = errors.New("模板图像大于源图像")
	// ErrInvalidRegion ROI 超出屏幕范围
	ErrInvalidRegion = errors.New("搜索区域无效")
	// ErrNoMatch 没有满足置信度的匹配
	ErrNoMatch = errors.New("未找到匹配")
)

// EmptyImageError 图像加载失败
type EmptyImageError struct {
	// Name 输入描述（needle / haystack / 路径）
	Name string
	Err  error
}

func (e *EmptyImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("加载 %s 失败, 得到空图像: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("加载 %s 失败, 得到空图像", e.Name)
}

func (e *EmptyImageError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrEmptyImage, e.Err}
	}
	return []error{ErrEmptyImage}
}

// TemplateTooLargeError 模板尺寸错误
type TemplateTooLargeError struct {
	HaystackSize [2]int
	NeedleSize   [2]int
	// Scale 校验时使用的最小缩放系数
	Scale float64
}

func (e *TemplateTooLargeError) Error() string {
	return fmt.Sprintf("搜索输入过大, 请使用更小的模板图像: 模板 %dx%d (缩放 %.2f), 源图 %dx%d",
		e.NeedleSize[0], e.NeedleSize[1], e.Scale, e.HaystackSize[0], e.HaystackSize[1])
}

func (e *TemplateTooLargeError) Unwrap() error {
	return ErrTemplateTooLarge
}

// RegionError ROI 越界
type RegionError struct {
	Region Region
	Bounds Region
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("搜索区域 %s 超出屏幕范围 %s", e.Region, e.Bounds)
}

func (e *RegionError) Unwrap() error {
	return ErrInvalidRegion
}

// NoMatchError 置信度不足
type NoMatchError struct {
	// Required 要求的置信度
	Required float64
	// Best 被拒绝候选中的最高置信度
	Best float64
	// HasCandidate 是否存在候选
	HasCandidate bool
}

func (e *NoMatchError) Error() string {
	if !e.HasCandidate {
		return "无法在屏幕上定位模板, 没有任何匹配"
	}
	return fmt.Sprintf("没有满足置信度 %g 的匹配, 最佳匹配: %g", e.Required, e.Best)
}

func (e *NoMatchError) Unwrap() error {
	return ErrNoMatch
}
