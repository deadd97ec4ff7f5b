package finder

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zoeyai/imagefinder/internal/diag"
	"github.com/zoeyai/imagefinder/internal/logger"
)

// Request 单次查找请求，零值字段使用 Finder 的配置
type Request struct {
	// Needle 模板（必填）
	Needle ImageInput
	// Haystack 源图，nil 表示截取当前屏幕
	Haystack ImageInput
	// Confidence 置信度，0 或哨兵值 0.99 时按方法解析
	Confidence float64
	// MethodType 相似度方法，0 表示使用配置
	MethodType Method
	// ScaleSteps 缩放序列，空表示使用配置
	ScaleSteps []float64
	// IsSearchMultipleScales 是否多尺度，nil 表示使用配置
	IsSearchMultipleScales *bool
	// IsRotation 是否旋转搜索，nil 表示使用配置
	IsRotation *bool
	// RotationOption 旋转参数，零值字段使用配置
	RotationOption RotationOption
	// ROI 搜索区域（逻辑像素）
	ROI *Region
	// Debug 输出诊断日志
	Debug bool
}

// params 解析后的请求参数
type params struct {
	confidence   float64
	method       Method
	scaleSteps   []float64
	multiScale   bool
	rotation     bool
	rotationOpts RotationOption
	roi          *Region
	debug        bool
}

// Finder 模板查找器
// 配置在每次请求开始时读取一次，请求之间不共享可变状态
type Finder struct {
	engine Engine
	screen Screen
	log    *logger.Logger

	mu     sync.RWMutex
	config Config
}

// Option Finder 构造选项
type Option func(*Finder)

// WithConfig 设置初始配置
func WithConfig(cfg Config) Option {
	return func(f *Finder) {
		f.config = cfg.Clone()
	}
}

// WithScreen 设置屏幕数据源
func WithScreen(screen Screen) Option {
	return func(f *Finder) {
		f.screen = screen
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(f *Finder) {
		f.log = l
	}
}

// New 创建 Finder
func New(engine Engine, opts ...Option) *Finder {
	f := &Finder{
		engine: engine,
		log:    logger.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetConfig 返回当前配置的副本
func (f *Finder) GetConfig() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.Clone()
}

// SetConfig 合并配置，只影响之后发起的请求
func (f *Finder) SetConfig(patch Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged, err := f.config.Merge(patch)
	if err != nil {
		return err
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	f.config = merged
	return nil
}

// ReplaceConfig 整体替换配置
func (f *Finder) ReplaceConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = cfg.Clone()
	return nil
}

// resolve 合并请求参数与配置快照
func (f *Finder) resolve(req Request) params {
	cfg := f.GetConfig()

	p := params{
		method:       cfg.MethodType,
		scaleSteps:   cfg.ScaleSteps,
		multiScale:   cfg.IsSearchMultipleScales,
		rotation:     cfg.IsRotation,
		rotationOpts: cfg.RotationOption,
		roi:          req.ROI,
		debug:        req.Debug || cfg.Debug,
	}
	if req.MethodType.Valid() {
		p.method = req.MethodType
	}
	if len(req.ScaleSteps) > 0 {
		p.scaleSteps = req.ScaleSteps
	}
	if req.IsSearchMultipleScales != nil {
		p.multiScale = *req.IsSearchMultipleScales
	}
	if len(p.scaleSteps) == 0 {
		p.multiScale = false
	}
	if req.IsRotation != nil {
		p.rotation = *req.IsRotation
	}
	// 旋转与多尺度互斥，开启旋转时忽略多尺度
	if p.rotation {
		p.multiScale = false
	}
	if req.RotationOption.Range != 0 {
		p.rotationOpts.Range = req.RotationOption.Range
	}
	if req.RotationOption.OverLap != 0 {
		p.rotationOpts.OverLap = req.RotationOption.OverLap
	}
	if req.RotationOption.MinDstLength != 0 {
		p.rotationOpts.MinDstLength = req.RotationOption.MinDstLength
	}
	p.confidence = ResolveConfidence(p.method, req.Confidence, cfg.Confidence)
	return p
}

// prepared 请求准备阶段的产物
type prepared struct {
	params
	needle   Image
	haystack Image
	density  PixelDensity
	screen   Size
	owned    []Image
	log      requestLog
}

func (p *prepared) close() {
	release(p.owned...)
}

// prepare 解析参数、校验 ROI、加载图像、校验模板尺寸；任何错误都在匹配前返回
func (f *Finder) prepare(req Request, log requestLog) (*prepared, error) {
	p := &prepared{params: f.resolve(req), log: log}
	p.log.debug = p.debug

	if p.roi != nil {
		if f.screen == nil {
			return nil, fmt.Errorf("%w: 未配置屏幕数据源, 无法校验 ROI", ErrInvalidRegion)
		}
		w, h, err := f.screen.Size()
		if err != nil {
			return nil, fmt.Errorf("获取屏幕尺寸失败: %w", err)
		}
		p.screen = Size{Width: w, Height: h}
		if err := ValidateRegion(*p.roi, p.screen); err != nil {
			return nil, err
		}
	}

	needle, _, owned, err := f.load(req.Needle, "needle")
	if err != nil {
		return nil, err
	}
	if owned {
		p.owned = append(p.owned, needle)
	}
	p.needle = needle

	haystack, density, err := f.loadHaystack(req.Haystack, p.roi, p)
	if err != nil {
		p.close()
		return nil, err
	}
	p.haystack = haystack
	p.density = density

	steps := []float64{1}
	if p.multiScale {
		steps = p.scaleSteps
	}
	if !p.rotation {
		if err := CheckTemplateSize(p.haystack, p.needle, steps); err != nil {
			p.close()
			return nil, err
		}
	}
	return p, nil
}

// load 加载图像输入；owned 表示由 Finder 创建、需要释放
func (f *Finder) load(input ImageInput, name string) (Image, PixelDensity, bool, error) {
	var (
		img     Image
		density = UnitDensity
		owned   = true
		err     error
	)

	switch v := input.(type) {
	case nil:
		return nil, density, false, &EmptyImageError{Name: name}
	case Image:
		img, owned = v, false
	case string:
		name = v
		img, err = f.engine.Load(v)
	case Snapshot:
		img, err = f.engine.FromImage(v.Image)
		density = v.Density
	case *Snapshot:
		img, err = f.engine.FromImage(v.Image)
		density = v.Density
	case image.Image:
		img, err = f.engine.FromImage(v)
	default:
		return nil, density, false, fmt.Errorf("不支持的图像输入类型: %T", input)
	}
	if err != nil {
		return nil, density, false, &EmptyImageError{Name: name, Err: err}
	}
	if img == nil {
		return nil, density, false, &EmptyImageError{Name: name}
	}
	if w, h := img.Size(); w == 0 || h == 0 {
		if owned {
			release(img)
		}
		return nil, density, false, &EmptyImageError{Name: name}
	}
	if density.ScaleX == 0 && density.ScaleY == 0 {
		density = UnitDensity
	}
	return img, density, owned, nil
}

// loadHaystack 加载源图，nil 时截屏；有 ROI 时按像素密度放大后裁剪
func (f *Finder) loadHaystack(input ImageInput, roi *Region, p *prepared) (Image, PixelDensity, error) {
	if input == nil {
		if f.screen == nil {
			return nil, UnitDensity, &EmptyImageError{Name: "screen", Err: errors.New("未配置屏幕数据源")}
		}
		captured, density, err := f.screen.Capture()
		if err != nil {
			return nil, UnitDensity, &EmptyImageError{Name: "screen", Err: err}
		}
		input = Snapshot{Image: captured, Density: density}
	}

	haystack, density, owned, err := f.load(input, "haystack")
	if err != nil {
		return nil, density, err
	}
	if owned {
		p.owned = append(p.owned, haystack)
	}
	if roi == nil {
		return haystack, density, nil
	}

	w, h := haystack.Size()
	rect := InflateRegion(*roi, density).ImageRect().Intersect(image.Rect(0, 0, w, h))
	if rect.Empty() {
		return nil, density, &RegionError{Region: *roi, Bounds: RegionFromRect(image.Rect(0, 0, w, h))}
	}
	cropped, err := f.engine.Crop(haystack, rect)
	if err != nil {
		return nil, density, &EmptyImageError{Name: "haystack", Err: err}
	}
	p.owned = append(p.owned, cropped)
	return cropped, density, nil
}

// FindMatch 查找单个最佳匹配
func (f *Finder) FindMatch(req Request) (MatchResult, error) {
	results, err := f.find(req, true)
	if err != nil {
		return MatchResult{}, err
	}
	return results[0], nil
}

// FindMatches 查找所有满足置信度的匹配，去重后按置信度降序
func (f *Finder) FindMatches(req Request) ([]MatchResult, error) {
	return f.find(req, false)
}

func (f *Finder) find(req Request, single bool) (results []MatchResult, err error) {
	start := time.Now()
	log := requestLog{l: f.log.With("request", uuid.NewString())}

	p, err := f.prepare(req, log)
	if err != nil {
		log.Event("TPL", false, elapsedMs(start), err.Error())
		return nil, err
	}
	defer p.close()

	category := "TPL"
	if p.rotation {
		category = "ROT"
	}
	defer func() {
		detail := ""
		if err != nil {
			detail = err.Error()
		} else {
			detail = fmt.Sprintf("%d 个匹配, 最佳 %s 置信度 %.4f", len(results), results[0].Location, results[0].Confidence)
		}
		p.log.Event(category, err == nil, elapsedMs(start), detail)
		if p.debug {
			if snapshot, derr := diag.MemorySnapshot(); derr == nil {
				p.log.Debug("进程内存: %s", snapshot)
			}
		}
	}()

	p.log.Debug("方法=%s, 置信度=%.3f, 多尺度=%v, 旋转=%v", p.method, p.confidence, p.multiScale, p.rotation)

	candidates, err := f.search(p, single)
	if err != nil {
		return nil, err
	}
	if !single {
		candidates = SuppressNonMaximum(candidates)
	}

	return Normalize(candidates, NormalizeOptions{
		Density:    p.density,
		Confidence: p.confidence,
		ROI:        p.roi,
		Screen:     p.screen,
	})
}

// search 分派到旋转/多尺度/单尺度搜索，返回源图物理坐标下的候选
// 没有达到阈值的结果时返回最佳候选，便于报告置信度
func (f *Finder) search(p *prepared, single bool) ([]MatchResult, error) {
	switch {
	case p.rotation:
		rs := NewRotationSearch(f.engine)
		rs.log = p.log
		res, err := rs.Search(p.haystack, p.needle, p.confidence, p.rotationOpts)
		if err != nil {
			return nil, err
		}
		if len(res.Matches) == 0 {
			if res.Best == nil {
				return nil, nil
			}
			return OrientedToResults([]OrientedMatch{*res.Best}), nil
		}
		return OrientedToResults(res.Matches), nil

	case p.multiScale:
		ss := NewScaleSearch(f.engine, p.method).withLog(p.log)
		res, err := ss.Search(p.haystack, p.needle, p.confidence, p.scaleSteps, single)
		if err != nil {
			return nil, err
		}
		if len(res.Results) == 0 {
			if res.Best == nil {
				return nil, nil
			}
			return []MatchResult{*res.Best}, nil
		}
		if single {
			return res.Results[:1], nil
		}
		return res.Results, nil

	case single:
		om := NewOverwriteMatcher(f.engine, p.method)
		om.log = p.log
		best, err := om.MatchBest(p.haystack, p.needle)
		if err != nil {
			return nil, err
		}
		return []MatchResult{best}, nil

	default:
		om := NewOverwriteMatcher(f.engine, p.method)
		om.log = p.log
		res, err := om.MatchAll(p.haystack, p.needle, p.confidence, nil, false)
		if err != nil {
			return nil, err
		}
		if len(res.Results) == 0 && res.Best != nil {
			return []MatchResult{*res.Best}, nil
		}
		return res.Results, nil
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
