package finder

import (
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/zoeyai/imagefinder/internal/logger"
)

func newTestFinder(engine *fakeEngine, opts ...Option) *Finder {
	opts = append([]Option{WithLogger(logger.NewWithWriter(io.Discard))}, opts...)
	return New(engine, opts...)
}

func boolPtr(v bool) *bool { return &v }

func approxRegion(a, b Region) bool {
	const eps = 1e-6
	return math.Abs(a.Left-b.Left) < eps && math.Abs(a.Top-b.Top) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps
}

func TestFindMatchesReturnsEveryInstance(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	haystack := newPlanted(200, 200,
		plant{rect: NewRegion(10, 10, 20, 20), score: 0.95},
		plant{rect: NewRegion(80, 30, 20, 20), score: 0.97},
		plant{rect: NewRegion(150, 150, 20, 20), score: 0.9},
	)
	results, err := f.FindMatches(Request{Needle: newPlanted(20, 20), Haystack: haystack})
	if err != nil {
		t.Fatalf("FindMatches 失败: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("匹配数量错误: got %d, want 3: %+v", len(results), results)
	}

	want := []Region{NewRegion(80, 30, 20, 20), NewRegion(10, 10, 20, 20), NewRegion(150, 150, 20, 20)}
	for i, r := range results {
		if !approxRegion(r.Location, want[i]) {
			t.Errorf("结果 %d 位置错误: got %s, want %s", i, r.Location, want[i])
		}
		if i > 0 && r.Confidence > results[i-1].Confidence {
			t.Errorf("结果未按置信度降序: %v", results)
		}
	}
}

func TestFindMatchesSingleScale(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	haystack := newPlanted(120, 60,
		plant{rect: NewRegion(0, 0, 20, 20), score: 0.9},
		plant{rect: NewRegion(60, 20, 20, 20), score: 0.85},
	)
	results, err := f.FindMatches(Request{
		Needle:                 newPlanted(20, 20),
		Haystack:               haystack,
		IsSearchMultipleScales: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("FindMatches 失败: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("匹配数量错误: got %d, want 2", len(results))
	}
	if got := engine.scoreCalls.Load(); got != 1 {
		t.Errorf("单尺度只应计算一次得分图: got %d", got)
	}
}

func TestFindMatchesManyInstances(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	// 10x4 网格，间距 30，互不重叠
	var plants []plant
	for row := 0; row < 4; row++ {
		for col := 0; col < 10; col++ {
			plants = append(plants, plant{
				rect:  NewRegion(float64(5+col*30), float64(5+row*30), 20, 20),
				score: 0.95,
			})
		}
	}
	results, err := f.FindMatches(Request{
		Needle:                 newPlanted(20, 20),
		Haystack:               newPlanted(320, 140, plants...),
		IsSearchMultipleScales: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("FindMatches 失败: %v", err)
	}
	if len(results) != len(plants) {
		t.Fatalf("匹配数量错误: got %d, want %d", len(results), len(plants))
	}

	found := map[Region]bool{}
	for _, r := range results {
		found[r.Location] = true
	}
	for _, p := range plants {
		if !found[p.rect] {
			t.Errorf("缺少实例: %s", p.rect)
		}
	}
}

func TestFindMatchScaledNeedle(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	// 目标为模板的 0.8 倍
	haystack := newPlanted(200, 200, plant{rect: NewRegion(40, 60, 16, 16), score: 0.93})
	result, err := f.FindMatch(Request{Needle: newPlanted(20, 20), Haystack: haystack})
	if err != nil {
		t.Fatalf("FindMatch 失败: %v", err)
	}
	if !approxRegion(result.Location, NewRegion(40, 60, 16, 16)) {
		t.Errorf("位置错误: got %s", result.Location)
	}
}

func TestFindMatchScaledHaystackMapsBack(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	// 目标大于模板，只能通过缩小源图命中
	haystack := newPlanted(200, 200, plant{rect: NewRegion(50, 50, 25, 25), score: 0.92})
	result, err := f.FindMatch(Request{Needle: newPlanted(20, 20), Haystack: haystack})
	if err != nil {
		t.Fatalf("FindMatch 失败: %v", err)
	}
	if !approxRegion(result.Location, NewRegion(50, 50, 25, 25)) {
		t.Errorf("源图缩放后的坐标未还原: got %s, want (50, 50, 25, 25)", result.Location)
	}
}

func TestFindMatchSmallNeedleStops(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	haystack := newPlanted(100, 100, plant{rect: NewRegion(5, 5, 10, 10), score: 1})
	_, err := f.FindMatch(Request{Needle: newPlanted(10, 10), Haystack: haystack})

	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("期望 NoMatchError, got %v", err)
	}
	if noMatch.HasCandidate {
		t.Errorf("不应有任何候选: %+v", noMatch)
	}
	if got := engine.scoreCalls.Load(); got != 0 {
		t.Errorf("模板边长 <= %d 时不应计算得分图: got %d", MinScaledDimension, got)
	}
}

func TestFindMatchTemplateTooLarge(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	tests := []struct {
		name   string
		needle *plantedImage
		multi  bool
	}{
		{"多尺度最小系数仍过大", newPlanted(500, 500), true},
		{"单尺度模板过大", newPlanted(250, 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.FindMatch(Request{
				Needle:                 tt.needle,
				Haystack:               newPlanted(200, 200),
				IsSearchMultipleScales: boolPtr(tt.multi),
			})
			if !errors.Is(err, ErrTemplateTooLarge) {
				t.Errorf("期望 ErrTemplateTooLarge, got %v", err)
			}
		})
	}
	if got := engine.scoreCalls.Load(); got != 0 {
		t.Errorf("尺寸校验应在匹配前完成: got %d 次得分图计算", got)
	}
}

func TestFindMatchNoMatchReportsBest(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	haystack := newPlanted(100, 100, plant{rect: NewRegion(30, 30, 20, 20), score: 0.6})
	_, err := f.FindMatch(Request{
		Needle:                 newPlanted(20, 20),
		Haystack:               haystack,
		Confidence:             0.8,
		IsSearchMultipleScales: boolPtr(false),
	})

	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("期望 NoMatchError, got %v", err)
	}
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("应能匹配 ErrNoMatch")
	}
	if math.Abs(noMatch.Best-0.6) > 1e-6 || noMatch.Required != 0.8 {
		t.Errorf("诊断信息错误: %+v", noMatch)
	}
}

func TestFindMatchesNoMatchReportsBest(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	haystack := newPlanted(100, 100, plant{rect: NewRegion(30, 30, 20, 20), score: 0.5})
	_, err := f.FindMatches(Request{Needle: newPlanted(20, 20), Haystack: haystack})

	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("期望 NoMatchError, got %v", err)
	}
	if math.Abs(noMatch.Best-0.5) > 1e-6 {
		t.Errorf("最佳置信度错误: got %g, want 0.5", noMatch.Best)
	}
}

func TestFindMatchPixelDensity(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	haystack := Snapshot{
		Image:   newPlanted(400, 400, plant{rect: NewRegion(100, 100, 50, 50), score: 0.95}),
		Density: PixelDensity{ScaleX: 2, ScaleY: 2},
	}
	result, err := f.FindMatch(Request{
		Needle:                 newPlanted(50, 50),
		Haystack:               haystack,
		IsSearchMultipleScales: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("FindMatch 失败: %v", err)
	}
	if !approxRegion(result.Location, NewRegion(50, 50, 25, 25)) {
		t.Errorf("密度还原错误: got %s, want (50, 50, 25, 25)", result.Location)
	}
}

func TestFindMatchROIOffset(t *testing.T) {
	engine := newFakeEngine()
	screen := &fakeScreen{width: 200, height: 200}
	f := newTestFinder(engine, WithScreen(screen))

	haystack := newPlanted(200, 200,
		plant{rect: NewRegion(25, 35, 20, 20), score: 0.9},
		// ROI 之外的更高分目标不应被返回
		plant{rect: NewRegion(170, 170, 20, 20), score: 0.99},
	)
	roi := NewRegion(20, 30, 100, 100)
	result, err := f.FindMatch(Request{
		Needle:                 newPlanted(20, 20),
		Haystack:               haystack,
		ROI:                    &roi,
		IsSearchMultipleScales: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("FindMatch 失败: %v", err)
	}
	if !approxRegion(result.Location, NewRegion(25, 35, 20, 20)) {
		t.Errorf("ROI 偏移错误: got %s, want (25, 35, 20, 20)", result.Location)
	}
	if engine.created.Load() != engine.closed.Load() {
		t.Errorf("图像未全部释放: created=%d closed=%d", engine.created.Load(), engine.closed.Load())
	}
}

func TestFindMatchROIOutsideScreen(t *testing.T) {
	engine := newFakeEngine()
	screen := &fakeScreen{width: 100, height: 100}
	f := newTestFinder(engine, WithScreen(screen))

	roi := NewRegion(90, 90, 20, 20)
	_, err := f.FindMatch(Request{Needle: newPlanted(20, 20), Haystack: newPlanted(100, 100), ROI: &roi})
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("期望 ErrInvalidRegion, got %v", err)
	}
	if engine.scoreCalls.Load() != 0 || engine.created.Load() != 0 {
		t.Errorf("ROI 校验应在加载图像前完成")
	}
}

func TestFindMatchCapturesScreen(t *testing.T) {
	engine := newFakeEngine()
	screen := &fakeScreen{
		width:   100,
		height:  100,
		image:   newPlanted(200, 200, plant{rect: NewRegion(60, 80, 20, 20), score: 0.9}),
		density: PixelDensity{ScaleX: 2, ScaleY: 2},
	}
	f := newTestFinder(engine, WithScreen(screen))

	result, err := f.FindMatch(Request{Needle: newPlanted(20, 20), IsSearchMultipleScales: boolPtr(false)})
	if err != nil {
		t.Fatalf("FindMatch 失败: %v", err)
	}
	if !approxRegion(result.Location, NewRegion(30, 40, 10, 10)) {
		t.Errorf("截屏坐标错误: got %s", result.Location)
	}
}

func TestFindMatchEmptyImage(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)

	tests := []struct {
		name     string
		needle   ImageInput
		haystack ImageInput
	}{
		{"模板文件不存在", "missing.png", newPlanted(100, 100)},
		{"模板为空", nil, newPlanted(100, 100)},
		{"源图尺寸为 0", newPlanted(20, 20), newPlanted(0, 0)},
		{"未配置屏幕", newPlanted(20, 20), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.FindMatch(Request{Needle: tt.needle, Haystack: tt.haystack})
			if !errors.Is(err, ErrEmptyImage) {
				t.Errorf("期望 ErrEmptyImage, got %v", err)
			}
		})
	}
	if engine.created.Load() != engine.closed.Load() {
		t.Errorf("图像未全部释放: created=%d closed=%d", engine.created.Load(), engine.closed.Load())
	}
}

func TestFindMatchSquaredDifferenceSentinel(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		ok    bool
	}{
		{"低于 0.998", 0.997, false},
		{"高于 0.998", 0.999, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			f := newTestFinder(engine)
			haystack := newPlanted(100, 100, plant{rect: NewRegion(10, 10, 20, 20), score: tt.score})

			_, err := f.FindMatch(Request{
				Needle:                 newPlanted(20, 20),
				Haystack:               haystack,
				Confidence:             SentinelConfidence,
				MethodType:             SqDiffNormed,
				IsSearchMultipleScales: boolPtr(false),
			})
			if tt.ok && err != nil {
				t.Errorf("期望匹配成功, got %v", err)
			}
			if !tt.ok {
				var noMatch *NoMatchError
				if !errors.As(err, &noMatch) || noMatch.Required != SquaredDifferenceFloor {
					t.Errorf("期望阈值 %g 的 NoMatchError, got %v", SquaredDifferenceFloor, err)
				}
			}
		})
	}
}

func TestFindMatchesRotation(t *testing.T) {
	engine := newFakeEngine()
	engine.features = []OrientedMatch{
		{
			TopLeft: Point2f{X: 40, Y: 20}, BottomLeft: Point2f{X: 30, Y: 20},
			BottomRight: Point2f{X: 30, Y: 50}, TopRight: Point2f{X: 40, Y: 50},
			Score: 0.9, Angle: 90, Size: Size{Width: 30, Height: 10},
		},
		{
			TopLeft: Point2f{X: 100, Y: 100}, BottomLeft: Point2f{X: 100, Y: 110},
			BottomRight: Point2f{X: 130, Y: 110}, TopRight: Point2f{X: 130, Y: 100},
			Score: 0.4, Size: Size{Width: 30, Height: 10},
		},
	}
	f := newTestFinder(engine)

	results, err := f.FindMatches(Request{
		Needle:     newPlanted(30, 10),
		Haystack:   newPlanted(200, 200),
		IsRotation: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("FindMatches 失败: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("应只保留达到置信度的旋转匹配: got %d", len(results))
	}
	if !approxRegion(results[0].Location, NewRegion(30, 20, 30, 30)) {
		t.Errorf("旋转外接区域错误: got %s", results[0].Location)
	}
	if engine.scoreCalls.Load() != 0 {
		t.Errorf("旋转搜索不应执行模板匹配")
	}
}

func TestFindMatchRotationNoMatch(t *testing.T) {
	engine := newFakeEngine()
	engine.features = []OrientedMatch{{Score: 0.3, Size: Size{Width: 20, Height: 20}}}
	f := newTestFinder(engine)

	_, err := f.FindMatch(Request{Needle: newPlanted(20, 20), Haystack: newPlanted(100, 100), IsRotation: boolPtr(true)})
	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) || math.Abs(noMatch.Best-0.3) > 1e-9 {
		t.Errorf("期望最佳置信度 0.3 的 NoMatchError, got %v", err)
	}
}

func TestSetConfigMerge(t *testing.T) {
	f := newTestFinder(newFakeEngine())

	if err := f.SetConfig(Config{Confidence: 0.9, ScaleSteps: []float64{1, 0.5}}); err != nil {
		t.Fatalf("SetConfig 失败: %v", err)
	}
	cfg := f.GetConfig()
	if cfg.Confidence != 0.9 {
		t.Errorf("Confidence 未更新: %g", cfg.Confidence)
	}
	if cfg.MethodType != CCoeffNormed {
		t.Errorf("未设置的字段应保持默认: %s", cfg.MethodType)
	}
	if len(cfg.ScaleSteps) != 2 {
		t.Errorf("ScaleSteps 未更新: %v", cfg.ScaleSteps)
	}
	if cfg.RotationOption.Range != 180 {
		t.Errorf("RotationOption 应保持默认: %+v", cfg.RotationOption)
	}

	// 返回的是副本
	cfg.ScaleSteps[0] = 42
	if f.GetConfig().ScaleSteps[0] == 42 {
		t.Error("GetConfig 应返回副本")
	}
}

func TestSetConfigInvalid(t *testing.T) {
	f := newTestFinder(newFakeEngine())

	tests := []struct {
		name  string
		patch Config
	}{
		{"置信度过大", Config{Confidence: 1.5}},
		{"缩放系数为负", Config{ScaleSteps: []float64{1, -0.5}}},
		{"未知方法", Config{MethodType: Method(99)}},
		{"旋转范围过大", Config{RotationOption: RotationOption{Range: 270}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.SetConfig(tt.patch); err == nil {
				t.Error("期望返回错误")
			}
		})
	}
	if cfg := f.GetConfig(); cfg.Confidence != 0.8 || len(cfg.ScaleSteps) != len(DefaultScaleSteps) {
		t.Errorf("校验失败后配置不应改变: %+v", cfg)
	}
}

func TestConfigUsedByLaterRequests(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)
	haystack := newPlanted(100, 100, plant{rect: NewRegion(10, 10, 20, 20), score: 0.85})
	req := Request{Needle: newPlanted(20, 20), Haystack: haystack, IsSearchMultipleScales: boolPtr(false)}

	if _, err := f.FindMatch(req); err != nil {
		t.Fatalf("默认置信度 0.8 应匹配: %v", err)
	}
	if err := f.SetConfig(Config{Confidence: 0.9}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.FindMatch(req); !errors.Is(err, ErrNoMatch) {
		t.Errorf("置信度 0.9 时期望 ErrNoMatch, got %v", err)
	}
}

func TestConcurrentRequests(t *testing.T) {
	engine := newFakeEngine()
	f := newTestFinder(engine)
	haystack := newPlanted(100, 100,
		plant{rect: NewRegion(10, 10, 20, 20), score: 0.95},
		plant{rect: NewRegion(60, 60, 20, 20), score: 0.95},
	)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_ = f.SetConfig(Config{Confidence: 0.85})
			}
			results, err := f.FindMatches(Request{Needle: newPlanted(20, 20), Haystack: haystack})
			if err != nil {
				errs <- err
				return
			}
			if len(results) != 2 {
				errs <- errors.New("匹配数量错误")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestResolvePrefersRotation(t *testing.T) {
	f := newTestFinder(newFakeEngine())
	p := f.resolve(Request{IsRotation: boolPtr(true), RotationOption: RotationOption{Range: 30}})
	if !p.rotation || p.multiScale {
		t.Errorf("开启旋转时应关闭多尺度: %+v", p)
	}
	if p.rotationOpts.Range != 30 || p.rotationOpts.MinDstLength != 256 {
		t.Errorf("旋转参数应按字段合并: %+v", p.rotationOpts)
	}
}
