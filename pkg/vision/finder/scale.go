package finder

import (
	"fmt"
	"slices"
)

// MinScaledDimension 缩放后图像的最小边长（不含），小于等于该值时停止搜索
const MinScaledDimension = 10

// ScaleSearchResult 多尺度搜索结果
type ScaleSearchResult struct {
	// Results 两轮搜索的匹配（源图物理像素坐标），按发现顺序
	Results []MatchResult
	// Best 所有候选中置信度最高的一个（可能低于阈值）
	Best *MatchResult
	// Evaluated 实际执行匹配的尺度数量
	Evaluated int
}

// ScaleSearch 多尺度搜索
// 先按顺序缩放模板，若 firstMatch 模式下没有结果（或非 firstMatch 模式），再按同样顺序缩放源图
type ScaleSearch struct {
	engine  Engine
	matcher *OverwriteMatcher
	log     requestLog
}

// NewScaleSearch 创建多尺度搜索
func NewScaleSearch(engine Engine, method Method) *ScaleSearch {
	return &ScaleSearch{
		engine:  engine,
		matcher: NewOverwriteMatcher(engine, method),
		log:     defaultRequestLog(),
	}
}

func (s *ScaleSearch) withLog(log requestLog) *ScaleSearch {
	s.log = log
	s.matcher.log = log
	return s
}

// CheckTemplateSize 校验最小缩放系数下模板不大于源图
func CheckTemplateSize(haystack, needle Image, steps []float64) error {
	if len(steps) == 0 {
		return nil
	}
	smallest := slices.Min(steps)
	hw, hh := haystack.Size()
	nw, nh := needle.Size()
	if smallest*float64(nh) > float64(hh) || smallest*float64(nw) > float64(hw) {
		return &TemplateTooLargeError{
			HaystackSize: imageSize(haystack),
			NeedleSize:   imageSize(needle),
			Scale:        smallest,
		}
	}
	return nil
}

// Search 执行多尺度搜索
func (s *ScaleSearch) Search(haystack, needle Image, confidence float64, steps []float64, firstMatch bool) (ScaleSearchResult, error) {
	var out ScaleSearchResult

	excluded, err := s.scaleNeedle(&out, haystack, needle, confidence, steps, firstMatch)
	if err != nil {
		return out, err
	}
	if firstMatch && len(out.Results) > 0 {
		return out, nil
	}

	if err := s.scaleHaystack(&out, haystack, needle, confidence, steps, excluded, firstMatch); err != nil {
		return out, err
	}
	return out, nil
}

// scaleNeedle 缩放模板，源图保持原样；屏蔽区域在各尺度间累积
func (s *ScaleSearch) scaleNeedle(out *ScaleSearchResult, haystack, needle Image, confidence float64, steps []float64, firstMatch bool) (Exclusions, error) {
	var excluded Exclusions
	hw, hh := haystack.Size()

	for _, factor := range steps {
		scaled, owned, err := s.resize(needle, factor)
		if err != nil {
			return excluded, fmt.Errorf("缩放模板失败 (%.2f): %w", factor, err)
		}
		w, h := scaled.Size()
		if w <= MinScaledDimension || h <= MinScaledDimension || w*h == 0 || w > hw || h > hh {
			s.log.Debug("模板缩放 %.2f 后尺寸 %dx%d 不可用, 停止", factor, w, h)
			if owned {
				release(scaled)
			}
			break
		}

		res, err := s.matcher.MatchAll(haystack, scaled, confidence, excluded, firstMatch)
		if owned {
			release(scaled)
		}
		if err != nil {
			return excluded, err
		}
		out.Evaluated++
		out.Results = append(out.Results, res.Results...)
		out.Best = betterOf(out.Best, res.Best)
		excluded = res.Exclusions
		s.log.Debug("模板缩放 %.2f (%dx%d): 匹配 %d 个", factor, w, h, len(res.Results))

		if firstMatch && len(out.Results) > 0 {
			break
		}
	}
	return excluded, nil
}

// scaleHaystack 缩放源图，模板保持原样；结果坐标还原到原始源图
func (s *ScaleSearch) scaleHaystack(out *ScaleSearchResult, haystack, needle Image, confidence float64, steps []float64, excluded Exclusions, firstMatch bool) error {
	nw, nh := needle.Size()
	if nw <= MinScaledDimension || nh <= MinScaledDimension {
		return nil
	}

	for _, factor := range steps {
		scaled, owned, err := s.resize(haystack, factor)
		if err != nil {
			return fmt.Errorf("缩放源图失败 (%.2f): %w", factor, err)
		}
		w, h := scaled.Size()
		if w <= MinScaledDimension || h <= MinScaledDimension || w*h == 0 || w < nw || h < nh {
			s.log.Debug("源图缩放 %.2f 后尺寸 %dx%d 不可用, 停止", factor, w, h)
			if owned {
				release(scaled)
			}
			break
		}

		// 实际缩放比例以结果尺寸为准
		hw, _ := haystack.Size()
		actual := float64(w) / float64(hw)

		res, err := s.matcher.MatchAll(scaled, needle, confidence, excluded.Scale(actual), firstMatch)
		if owned {
			release(scaled)
		}
		if err != nil {
			return err
		}
		out.Evaluated++

		restored := make([]MatchResult, len(res.Results))
		for i, m := range res.Results {
			m.Location = m.Location.Scale(1 / actual)
			restored[i] = m
			excluded = append(excluded, m.Location)
		}
		out.Results = append(out.Results, restored...)
		if res.Best != nil {
			best := *res.Best
			best.Location = best.Location.Scale(1 / actual)
			out.Best = betterOf(out.Best, &best)
		}
		s.log.Debug("源图缩放 %.2f (%dx%d): 匹配 %d 个", factor, w, h, len(res.Results))

		if firstMatch && len(out.Results) > 0 {
			break
		}
	}
	return nil
}

// resize 缩放图像，系数为 1 时直接返回原图；owned 表示返回值需要释放
func (s *ScaleSearch) resize(img Image, factor float64) (Image, bool, error) {
	if factor == 1 {
		return img, false, nil
	}
	scaled, err := s.engine.Resize(img, factor)
	if err != nil {
		return nil, false, err
	}
	return scaled, true, nil
}

func betterOf(a, b *MatchResult) *MatchResult {
	if b == nil {
		return a
	}
	if a == nil || b.Confidence > a.Confidence {
		c := *b
		return &c
	}
	return a
}
