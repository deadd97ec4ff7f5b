package finder

import (
	"fmt"
)

// Exclusions 已命中的区域（源图物理像素坐标）
// 候选窗口中心落在任一区域内即被屏蔽，等价于覆盖源图已匹配区域，但不修改像素
type Exclusions []Region

// Blocks 判断窗口是否被屏蔽
func (e Exclusions) Blocks(window Region) bool {
	cx, cy := window.Center()
	for _, r := range e {
		if r.Contains(cx, cy) {
			return true
		}
	}
	return false
}

// Scale 将区域坐标乘以 factor（用于源图缩放）
func (e Exclusions) Scale(factor float64) Exclusions {
	if factor == 1 {
		return e
	}
	scaled := make(Exclusions, len(e))
	for i, r := range e {
		scaled[i] = r.Scale(factor)
	}
	return scaled
}

// OverwriteResult 单尺度覆盖匹配结果
type OverwriteResult struct {
	// Results 本尺度下的匹配（坐标基于传入的源图）
	Results []MatchResult
	// Exclusions 传入的屏蔽区域加上本次新增区域
	Exclusions Exclusions
	// Best 最高的候选置信度（包括被拒绝的）
	Best *MatchResult
}

// OverwriteMatcher 单尺度多目标匹配器
type OverwriteMatcher struct {
	engine Engine
	method Method
	log    requestLog
}

// NewOverwriteMatcher 创建覆盖式匹配器
func NewOverwriteMatcher(engine Engine, method Method) *OverwriteMatcher {
	return &OverwriteMatcher{engine: engine, method: method, log: defaultRequestLog()}
}

// MatchBest 只取得分图中的最佳位置，不做阈值判断
func (o *OverwriteMatcher) MatchBest(haystack, needle Image) (MatchResult, error) {
	scores, err := o.engine.ScoreMap(haystack, needle, o.method)
	if err != nil {
		return MatchResult{}, fmt.Errorf("计算得分图失败: %w", err)
	}
	best, ok := bestLocation(scores, nil)
	if !ok {
		return MatchResult{}, nil
	}
	return best, nil
}

// MatchAll 在固定尺度下反复查找最佳位置
// 每次接受后屏蔽该区域再查询，直到最佳得分低于阈值；firstMatch 时接受一个即返回
// 已接受位置的中心必然被屏蔽，循环不会重复命中同一位置
func (o *OverwriteMatcher) MatchAll(haystack, needle Image, confidence float64, excluded Exclusions, firstMatch bool) (OverwriteResult, error) {
	out := OverwriteResult{Exclusions: append(Exclusions(nil), excluded...)}

	scores, err := o.engine.ScoreMap(haystack, needle, o.method)
	if err != nil {
		return out, fmt.Errorf("计算得分图失败: %w", err)
	}

	for {
		best, ok := bestLocation(scores, out.Exclusions)
		if !ok {
			break
		}
		if out.Best == nil || best.Confidence > out.Best.Confidence {
			candidate := best
			out.Best = &candidate
		}
		if best.Confidence < confidence {
			break
		}

		o.log.Debug("接受匹配: 位置=%s, 置信度=%.4f", best.Location, best.Confidence)
		out.Results = append(out.Results, best)
		out.Exclusions = append(out.Exclusions, best.Location)

		if firstMatch {
			break
		}
	}
	return out, nil
}

// bestLocation 返回未被屏蔽的最高置信度位置
func bestLocation(scores *ScoreMap, excluded Exclusions) (MatchResult, bool) {
	if scores == nil || scores.Width <= 0 || scores.Height <= 0 {
		return MatchResult{}, false
	}
	w, h := float64(scores.Needle.Width), float64(scores.Needle.Height)

	found := false
	var best MatchResult
	for y := 0; y < scores.Height; y++ {
		for x := 0; x < scores.Width; x++ {
			c := scores.ConfidenceAt(x, y)
			if found && c <= best.Confidence {
				continue
			}
			window := Region{Left: float64(x), Top: float64(y), Width: w, Height: h}
			if len(excluded) > 0 && excluded.Blocks(window) {
				continue
			}
			best = MatchResult{Confidence: c, Location: window}
			found = true
		}
	}
	return best, found
}
