package finder

import (
	"fmt"
	"slices"

	"dario.cat/mergo"
)

// RotationOption 旋转搜索参数
type RotationOption struct {
	// Range 允许的旋转角度范围（度），在 [-Range, Range] 内搜索
	Range float64 `json:"range" yaml:"range"`
	// OverLap 相邻角度的重叠比例，决定角度步长
	OverLap float64 `json:"over_lap" yaml:"over_lap"`
	// MinDstLength 特征提取的最小边长
	MinDstLength int `json:"min_dst_length" yaml:"min_dst_length"`
}

// Config 查找默认配置
type Config struct {
	// Confidence 默认置信度
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// MethodType 相似度方法
	MethodType Method `json:"method_type" yaml:"method_type"`
	// ScaleSteps 缩放系数序列，按顺序尝试
	ScaleSteps []float64 `json:"scale_steps" yaml:"scale_steps"`
	// IsSearchMultipleScales 是否多尺度搜索
	IsSearchMultipleScales bool `json:"is_search_multiple_scales" yaml:"is_search_multiple_scales"`
	// IsRotation 是否旋转搜索（与多尺度互斥）
	IsRotation bool `json:"is_rotation" yaml:"is_rotation"`
	// RotationOption 旋转参数
	RotationOption RotationOption `json:"rotation_option" yaml:"rotation_option"`
	// Debug 输出诊断日志，不影响结果
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultScaleSteps 默认缩放序列
var DefaultScaleSteps = []float64{1, 0.9, 0.8, 0.7, 0.6, 0.5}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Confidence:             0.8,
		MethodType:             CCoeffNormed,
		ScaleSteps:             slices.Clone(DefaultScaleSteps),
		IsSearchMultipleScales: true,
		IsRotation:             false,
		RotationOption: RotationOption{
			Range:        180,
			OverLap:      0.1,
			MinDstLength: 256,
		},
		Debug: false,
	}
}

// Clone 深拷贝
func (c Config) Clone() Config {
	c.ScaleSteps = slices.Clone(c.ScaleSteps)
	return c
}

// Merge 合并配置：patch 中的非零字段覆盖当前值，零值字段继承
// RotationOption 按字段合并
func (c Config) Merge(patch Config) (Config, error) {
	merged := c.Clone()
	patch = patch.Clone()
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return c, fmt.Errorf("合并配置失败: %w", err)
	}
	return merged, nil
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("置信度必须位于 (0, 1]: %g", c.Confidence)
	}
	if !c.MethodType.Valid() {
		return fmt.Errorf("未知的匹配方法: %d", int(c.MethodType))
	}
	for _, s := range c.ScaleSteps {
		if s <= 0 {
			return fmt.Errorf("缩放系数必须大于 0: %g", s)
		}
	}
	if c.RotationOption.Range < 0 || c.RotationOption.Range > 180 {
		return fmt.Errorf("旋转范围必须位于 [0, 180]: %g", c.RotationOption.Range)
	}
	if c.RotationOption.OverLap < 0 || c.RotationOption.OverLap >= 1 {
		return fmt.Errorf("旋转重叠比例必须位于 [0, 1): %g", c.RotationOption.OverLap)
	}
	if c.RotationOption.MinDstLength < 0 {
		return fmt.Errorf("最小特征边长不能为负: %d", c.RotationOption.MinDstLength)
	}
	return nil
}
