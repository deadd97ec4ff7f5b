package native

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

const epsilon = 1e-9

// integral 积分图，尺寸 (w+1)*(h+1)，首行首列为 0
type integral struct {
	sum, sumSq []float64
	stride     int
}

func buildIntegral(img *Image) *integral {
	stride := img.w + 1
	in := &integral{
		sum:    make([]float64, stride*(img.h+1)),
		sumSq:  make([]float64, stride*(img.h+1)),
		stride: stride,
	}
	for y := 0; y < img.h; y++ {
		var row, rowSq float64
		for x := 0; x < img.w; x++ {
			v := img.gray[y*img.w+x]
			row += v
			rowSq += v * v
			off := (y+1)*stride + x + 1
			in.sum[off] = in.sum[off-stride] + row
			in.sumSq[off] = in.sumSq[off-stride] + rowSq
		}
	}
	return in
}

// window 返回 [x, x+w) x [y, y+h) 的像素和与平方和
func (in *integral) window(x, y, w, h int) (float64, float64) {
	a := y*in.stride + x
	b := a + w
	c := (y+h)*in.stride + x
	d := c + w
	return in.sum[d] - in.sum[b] - in.sum[c] + in.sum[a],
		in.sumSq[d] - in.sumSq[b] - in.sumSq[c] + in.sumSq[a]
}

// template 模板中参与计算的像素
type template struct {
	// offsets 像素在源图窗口中的偏移（按源图宽度展开）
	offsets []int
	values  []float64
	n       float64
	sum     float64
	sumSq   float64
	masked  bool
}

func buildTemplate(n *Image, haystackWidth int) *template {
	t := &template{masked: n.mask != nil}
	for y := 0; y < n.h; y++ {
		for x := 0; x < n.w; x++ {
			off := y*n.w + x
			if t.masked && !n.mask[off] {
				continue
			}
			v := n.gray[off]
			t.offsets = append(t.offsets, y*haystackWidth+x)
			t.values = append(t.values, v)
			t.sum += v
			t.sumSq += v * v
		}
	}
	t.n = float64(len(t.values))
	return t
}

// scoreMap 计算完整得分图，按行并行
func (e *Engine) scoreMap(h, n *Image, method finder.Method) *finder.ScoreMap {
	sm := &finder.ScoreMap{
		Width:    h.w - n.w + 1,
		Height:   h.h - n.h + 1,
		Needle:   finder.Size{Width: n.w, Height: n.h},
		Channels: 1,
		Method:   method,
	}
	sm.Values = make([]float32, sm.Width*sm.Height)

	t := buildTemplate(n, h.w)
	var in *integral
	if !t.masked {
		in = buildIntegral(h)
	}

	e.parallelRows(sm.Height, func(y int) {
		for x := 0; x < sm.Width; x++ {
			base := y*h.w + x
			var cross, sumI, sumSqI float64
			if t.masked {
				for i, off := range t.offsets {
					v := h.gray[base+off]
					cross += v * t.values[i]
					sumI += v
					sumSqI += v * v
				}
			} else {
				for i, off := range t.offsets {
					cross += h.gray[base+off] * t.values[i]
				}
				sumI, sumSqI = in.window(x, y, n.w, n.h)
			}
			sm.Values[y*sm.Width+x] = float32(score(method, t, cross, sumI, sumSqI))
		}
	})
	return sm
}

// score 按 OpenCV matchTemplate 的定义计算单个窗口的原始得分
func score(method finder.Method, t *template, cross, sumI, sumSqI float64) float64 {
	switch method {
	case finder.SqDiff:
		return math.Max(t.sumSq-2*cross+sumSqI, 0)
	case finder.SqDiffNormed:
		sq := math.Max(t.sumSq-2*cross+sumSqI, 0)
		denom := math.Sqrt(t.sumSq * sumSqI)
		if denom < epsilon {
			if sq < epsilon {
				return 0
			}
			return 1
		}
		return math.Min(sq/denom, 1)
	case finder.CCorr:
		return cross
	case finder.CCorrNormed:
		denom := math.Sqrt(t.sumSq * sumSqI)
		if denom < epsilon {
			return 0
		}
		return cross / denom
	case finder.CCoeff:
		if t.n == 0 {
			return 0
		}
		return cross - t.sum*sumI/t.n
	default:
		return ccoeffNormed(t, cross, sumI, sumSqI)
	}
}

func ccoeffNormed(t *template, cross, sumI, sumSqI float64) float64 {
	if t.n == 0 {
		return 0
	}
	varT := t.sumSq - t.sum*t.sum/t.n
	varI := sumSqI - sumI*sumI/t.n
	// 纯色模板与纯色窗口
	if varT < epsilon && varI < epsilon {
		if math.Abs(t.sum-sumI)/t.n < 1 {
			return 1
		}
		return 0
	}
	denom := math.Sqrt(math.Max(varT, 0) * math.Max(varI, 0))
	if denom < epsilon {
		return 0
	}
	return (cross - t.sum*sumI/t.n) / denom
}

// parallelRows 把 rows 行分发给多个协程
func (e *Engine) parallelRows(rows int, fn func(y int)) {
	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		for y := 0; y < rows; y++ {
			fn(y)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				y := int(next.Add(1) - 1)
				if y >= rows {
					return
				}
				fn(y)
			}
		}()
	}
	wg.Wait()
}
