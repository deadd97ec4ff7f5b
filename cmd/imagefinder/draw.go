package main

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/zoeyai/imagefinder/pkg/auto/screen"
	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

var markColor = color.NRGBA{R: 255, A: 255}

const markWidth = 2

// saveAnnotated 在源图上框出匹配结果并保存
// 结果为逻辑像素，按源图的像素密度换算回物理像素
func saveAnnotated(path, haystack string, source finder.Snapshot, results []finder.MatchResult) error {
	var (
		img     image.Image
		density = finder.UnitDensity
		err     error
	)
	switch {
	case haystack != "":
		img, err = imaging.Open(haystack, imaging.AutoOrientation(true))
	case source.Image != nil:
		img, density = source.Image, source.Density
	default:
		img, density, err = screen.New().Capture()
	}
	if err != nil {
		return err
	}

	return imaging.Save(annotate(img, density, results), path)
}

// annotate 返回绘制了结果边框的副本
func annotate(img image.Image, density finder.PixelDensity, results []finder.MatchResult) *image.NRGBA {
	dst := imaging.Clone(img)
	for _, r := range results {
		drawRect(dst, finder.InflateRegion(r.Location, density).ImageRect(), markWidth)
	}
	return dst
}

// drawRect 绘制矩形边框
func drawRect(dst draw.Image, rect image.Rectangle, width int) {
	src := image.NewUniform(markColor)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+width),
		image.Rect(rect.Min.X, rect.Max.Y-width, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+width, rect.Max.Y),
		image.Rect(rect.Max.X-width, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}
