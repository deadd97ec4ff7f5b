package finder

import (
	"fmt"
	"math"
	"strings"
)

// Method 相似度计算方法，零值表示未指定
type Method int

const (
	// SqDiff 平方差（越小越好）
	SqDiff Method = iota + 1
	// SqDiffNormed 归一化平方差（越小越好）
	SqDiffNormed
	// CCorr 互相关
	CCorr
	// CCorrNormed 归一化互相关
	CCorrNormed
	// CCoeff 相关系数
	CCoeff
	// CCoeffNormed 归一化相关系数（默认）
	CCoeffNormed
)

var methodNames = map[Method]string{
	SqDiff:       "TM_SQDIFF",
	SqDiffNormed: "TM_SQDIFF_NORMED",
	CCorr:        "TM_CCORR",
	CCorrNormed:  "TM_CCORR_NORMED",
	CCoeff:       "TM_CCOEFF",
	CCoeffNormed: "TM_CCOEFF_NORMED",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Valid 是否为已知方法
func (m Method) Valid() bool {
	_, ok := methodNames[m]
	return ok
}

// IsSquaredDifference 是否为平方差类方法
func (m Method) IsSquaredDifference() bool {
	return m == SqDiff || m == SqDiffNormed
}

// IsNormedCorrelation 是否为归一化相关类方法
func (m Method) IsNormedCorrelation() bool {
	return m == CCorrNormed || m == CCoeffNormed
}

// ParseMethod 解析方法名，支持 "TM_CCOEFF_NORMED"、"ccoeff_normed" 等写法
func ParseMethod(s string) (Method, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(key, "TM_") {
		key = "TM_" + key
	}
	for m, name := range methodNames {
		if name == key {
			return m, nil
		}
	}
	return 0, fmt.Errorf("未知的匹配方法: %s", s)
}

// MarshalText 实现 encoding.TextMarshaler
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("未知的匹配方法: %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

const (
	// SentinelConfidence 调用方未显式指定时传入的置信度
	SentinelConfidence = 0.99
	// SquaredDifferenceFloor 平方差方法在哨兵值下使用的阈值
	SquaredDifferenceFloor = 0.998
)

// ResolveConfidence 计算实际生效的置信度阈值
//   - 未设置 (0) 时使用 fallback
//   - 平方差方法 + 哨兵值 0.99 => 0.998
//   - 其他方法 + 哨兵值 0.99 => fallback
func ResolveConfidence(method Method, requested, fallback float64) float64 {
	switch {
	case requested == 0:
		return fallback
	case requested == SentinelConfidence && method.IsSquaredDifference():
		return SquaredDifferenceFloor
	case requested == SentinelConfidence:
		return fallback
	}
	return requested
}

// ScoreMap 引擎输出的原始得分图
type ScoreMap struct {
	// Width/Height 得分图尺寸 (源图尺寸 - 模板尺寸 + 1)
	Width  int
	Height int
	// Values 行优先的原始得分
	Values []float32
	// Needle 参与计算的模板尺寸
	Needle Size
	// Channels 参与计算的通道数
	Channels int
	// Method 计算方法
	Method Method
}

// At 返回 (x, y) 处的原始得分
func (s *ScoreMap) At(x, y int) float64 {
	return float64(s.Values[y*s.Width+x])
}

// ConfidenceAt 返回 (x, y) 处归一化后的置信度
func (s *ScoreMap) ConfidenceAt(x, y int) float64 {
	return NormalizeScore(s.Method, s.At(x, y), s.Needle, s.Channels)
}

// NormalizeScore 将原始得分转换为 "越高越好" 的置信度
func NormalizeScore(method Method, raw float64, needle Size, channels int) float64 {
	if channels <= 0 {
		channels = 1
	}
	area := float64(needle.Width*needle.Height) * float64(channels)
	var c float64
	switch method {
	case SqDiff:
		if area == 0 {
			return 0
		}
		c = 1 - raw/(area*255*255)
	case SqDiffNormed:
		c = 1 - raw
	case CCorr:
		if area == 0 {
			return 0
		}
		c = raw / (area * 255 * 255)
	case CCoeff:
		if area == 0 {
			return 0
		}
		c = raw / (area * 127.5 * 127.5)
	default:
		c = raw
	}
	return clamp(c, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
