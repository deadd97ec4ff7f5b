package cv

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// getTestDataDir 获取测试资源目录
func getTestDataDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "testdata")
}

func noiseImage(w, h int, seed int64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(r.Intn(256))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestScoreMap(t *testing.T) {
	e := New()
	src := noiseImage(120, 90, 1)
	haystack, err := e.FromImage(src)
	if err != nil {
		t.Fatalf("FromImage 失败: %v", err)
	}
	defer haystack.(*Image).Close()
	needle, err := e.FromImage(src.SubImage(image.Rect(37, 21, 61, 39)))
	if err != nil {
		t.Fatalf("FromImage 失败: %v", err)
	}
	defer needle.(*Image).Close()

	for _, m := range []finder.Method{finder.SqDiff, finder.SqDiffNormed, finder.CCorrNormed, finder.CCoeffNormed} {
		t.Run(m.String(), func(t *testing.T) {
			sm, err := e.ScoreMap(haystack, needle, m)
			if err != nil {
				t.Fatalf("ScoreMap 失败: %v", err)
			}
			if sm.Width != 97 || sm.Height != 73 {
				t.Errorf("得分图尺寸错误: %dx%d", sm.Width, sm.Height)
			}

			bx, by, best := 0, 0, math.Inf(-1)
			for y := 0; y < sm.Height; y++ {
				for x := 0; x < sm.Width; x++ {
					if c := sm.ConfidenceAt(x, y); c > best {
						bx, by, best = x, y, c
					}
				}
			}
			if bx != 37 || by != 21 {
				t.Errorf("最佳位置错误: (%d, %d)", bx, by)
			}
			if best < 0.99 {
				t.Errorf("置信度过低: %g", best)
			}
		})
	}
}

func TestScoreMapTemplateTooLarge(t *testing.T) {
	e := New()
	small, _ := e.FromImage(noiseImage(10, 10, 2))
	large, _ := e.FromImage(noiseImage(20, 20, 2))
	defer small.(*Image).Close()
	defer large.(*Image).Close()

	_, err := e.ScoreMap(small, large, finder.CCoeffNormed)
	if _, ok := err.(*finder.TemplateTooLargeError); !ok {
		t.Errorf("期望 TemplateTooLargeError, got %v", err)
	}
}

func TestResizeAndCrop(t *testing.T) {
	e := New()
	img, _ := e.FromImage(noiseImage(100, 60, 3))
	defer img.(*Image).Close()

	scaled, err := e.Resize(img, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	defer scaled.(*Image).Close()
	if w, h := scaled.Size(); w != 50 || h != 30 {
		t.Errorf("Resize 尺寸错误: %dx%d", w, h)
	}

	cropped, err := e.Crop(img, image.Rect(10, 10, 40, 30))
	if err != nil {
		t.Fatal(err)
	}
	defer cropped.(*Image).Close()
	if w, h := cropped.Size(); w != 30 || h != 20 {
		t.Errorf("Crop 尺寸错误: %dx%d", w, h)
	}
}

func TestLoad(t *testing.T) {
	e := New()
	if _, err := e.Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("不存在的文件应返回错误")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, noiseImage(16, 12, 4)); err != nil {
		t.Fatal(err)
	}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	img, err := e.Load(url)
	if err != nil {
		t.Fatalf("data URL 读取失败: %v", err)
	}
	defer img.(*Image).Close()
	if w, h := img.Size(); w != 16 || h != 12 {
		t.Errorf("尺寸错误: %dx%d", w, h)
	}
}

// colorImage 生成 R、G、B 互不相同的彩色图像
func colorImage(w, h int, seed int64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(r.Intn(256)),
				G: uint8(r.Intn(128)),
				B: uint8(255 - r.Intn(64)),
				A: 255,
			})
		}
	}
	return img
}

// 文件读取与内存图像转换得到的灰度必须一致
func TestFromImageGrayMatchesLoad(t *testing.T) {
	e := New()
	src := colorImage(24, 16, 11)

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	loaded, err := e.Load("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	defer loaded.(*Image).Close()
	want := loaded.(*Image).Mat()

	rgba := image.NewRGBA(src.Bounds())
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			rgba.Set(x, y, src.At(x, y))
		}
	}

	inputs := map[string]image.Image{"NRGBA": src, "RGBA": rgba}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			img, err := e.FromImage(input)
			if err != nil {
				t.Fatalf("FromImage 失败: %v", err)
			}
			defer img.(*Image).Close()
			got := img.(*Image).Mat()

			for y := 0; y < 16; y++ {
				for x := 0; x < 24; x++ {
					a, b := int(got.GetUCharAt(y, x)), int(want.GetUCharAt(y, x))
					if a-b > 1 || b-a > 1 {
						t.Fatalf("(%d, %d) 灰度不一致: FromImage=%d Load=%d", x, y, a, b)
					}
				}
			}
		})
	}
}

func TestMatrixInverse(t *testing.T) {
	m := matrix3{{2, 0, 10}, {0, 2, 20}, {0, 0, 1}}
	inv, ok := m.inverse()
	if !ok {
		t.Fatal("矩阵应可逆")
	}
	x, y := m.apply(3, 4)
	bx, by := inv.apply(x, y)
	if math.Abs(bx-3) > 1e-9 || math.Abs(by-4) > 1e-9 {
		t.Errorf("逆变换错误: (%g, %g)", bx, by)
	}

	if _, ok := (matrix3{}).inverse(); ok {
		t.Error("零矩阵不可逆")
	}
}

func TestCornerAngle(t *testing.T) {
	m := finder.OrientedMatch{TopLeft: finder.Point2f{X: 0, Y: 0}, TopRight: finder.Point2f{X: 10, Y: 10}}
	if a := cornerAngle(m); math.Abs(a-45) > 1e-9 {
		t.Errorf("角度错误: %g", a)
	}
}

func TestFeatureMatch(t *testing.T) {
	testDataDir := getTestDataDir()
	e := New()

	target, err := e.Load(filepath.Join(testDataDir, "target.png"))
	if err != nil {
		t.Skipf("跳过测试：无法读取目标图像: %v", err)
		return
	}
	defer target.(*Image).Close()

	template, err := e.Load(filepath.Join(testDataDir, "template1.png"))
	if err != nil {
		t.Skipf("跳过测试：无法读取模板图像: %v", err)
		return
	}
	defer template.(*Image).Close()

	matches, err := e.FeatureMatch(target, template, finder.RotationOption{Range: 180, OverLap: 0.1, MinDstLength: 256})
	if err != nil {
		t.Fatalf("特征匹配失败: %v", err)
	}
	t.Logf("找到 %d 个实例", len(matches))
	for i, m := range matches {
		t.Logf("  [%d] 区域=%s, 角度=%.1f, 得分=%.3f", i+1, finder.BoundingRegion(m), m.Angle, m.Score)
		if i > 0 && m.Score > matches[i-1].Score {
			t.Error("结果未按得分降序")
		}
	}
}

func TestEngineWithFinder(t *testing.T) {
	src := noiseImage(160, 120, 5)
	f := finder.New(New())

	result, err := f.FindMatch(finder.Request{
		Needle:   src.SubImage(image.Rect(60, 40, 92, 64)),
		Haystack: src,
	})
	if err != nil {
		t.Fatalf("FindMatch 失败: %v", err)
	}
	if result.Location != finder.NewRegion(60, 40, 32, 24) {
		t.Errorf("位置错误: %s", result.Location)
	}
}
