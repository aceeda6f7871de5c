// Package raster содержит реализации port.RasterOps.
package raster

import (
	"image"

	"layer-inspector/internal/domain/port"
)

// Native реализация растровых операций на чистом Go.
type Native struct{}

// NewNative создаёт нативный набор операций.
func NewNative() *Native {
	return &Native{}
}

// Crop копирует область r в новое изображение с началом в (0,0).
func (n *Native) Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		si := src.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()], src.Pix[si:si+r.Dx()])
	}
	return dst
}

// Threshold бинаризация: пиксели > thresh становятся 255.
func (n *Native) Threshold(src *image.Gray, thresh uint8) *image.Gray {
	dst := image.NewGray(src.Bounds())
	unaryOp(dst, src, func(v uint8) uint8 {
		if v > thresh {
			return 0xff
		}
		return 0
	})
	return dst
}

func (n *Native) Not(dst, src *image.Gray) {
	unaryOp(dst, src, func(v uint8) uint8 { return ^v })
}

func (n *Native) And(dst, a, b *image.Gray) {
	binaryOp(dst, a, b, func(x, y uint8) uint8 { return x & y })
}

func (n *Native) Or(dst, a, b *image.Gray) {
	binaryOp(dst, a, b, func(x, y uint8) uint8 { return x | y })
}

func (n *Native) Subtract(dst, a, b *image.Gray) {
	binaryOp(dst, a, b, func(x, y uint8) uint8 {
		if x > y {
			return x - y
		}
		return 0
	})
}

// CountNonZero число ненулевых пикселей.
func (n *Native) CountNonZero(src *image.Gray) int {
	r := src.Bounds()
	count := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := src.PixOffset(r.Min.X, y)
		for _, v := range src.Pix[i : i+r.Dx()] {
			if v != 0 {
				count++
			}
		}
	}
	return count
}

// FindNonZero координаты ненулевых пикселей в порядке развёртки.
func (n *Native) FindNonZero(src *image.Gray) []image.Point {
	r := src.Bounds()
	var points []image.Point
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := src.PixOffset(r.Min.X, y)
		for x, v := range src.Pix[i : i+r.Dx()] {
			if v != 0 {
				points = append(points, image.Pt(r.Min.X+x, y))
			}
		}
	}
	return points
}

// Erode эрозия ядром 3x3; пиксели за пределами изображения не учитываются.
func (n *Native) Erode(src *image.Gray, iterations int) *image.Gray {
	r := src.Bounds()
	w, h := r.Dx(), r.Dy()
	cur := n.Crop(src, r)
	if iterations <= 0 || w == 0 || h == 0 {
		cur.Rect = r
		return cur
	}
	tmp := make([]uint8, w*h)
	for it := 0; it < iterations; it++ {
		// по строкам
		for y := 0; y < h; y++ {
			row := cur.Pix[y*w : y*w+w]
			out := tmp[y*w : y*w+w]
			for x := 0; x < w; x++ {
				v := row[x]
				if x > 0 {
					v = min(v, row[x-1])
				}
				if x+1 < w {
					v = min(v, row[x+1])
				}
				out[x] = v
			}
		}
		// по столбцам
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := tmp[y*w+x]
				if y > 0 {
					v = min(v, tmp[(y-1)*w+x])
				}
				if y+1 < h {
					v = min(v, tmp[(y+1)*w+x])
				}
				cur.Pix[y*w+x] = v
			}
		}
	}
	cur.Rect = r
	return cur
}

func unaryOp(dst, src *image.Gray, f func(uint8) uint8) {
	r := dst.Bounds().Intersect(src.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di, si := dst.PixOffset(r.Min.X, y), src.PixOffset(r.Min.X, y)
		d, s := dst.Pix[di:di+r.Dx()], src.Pix[si:si+r.Dx()]
		for x := range d {
			d[x] = f(s[x])
		}
	}
}

func binaryOp(dst, a, b *image.Gray, f func(uint8, uint8) uint8) {
	r := dst.Bounds().Intersect(a.Bounds()).Intersect(b.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		di, ai, bi := dst.PixOffset(r.Min.X, y), a.PixOffset(r.Min.X, y), b.PixOffset(r.Min.X, y)
		d, pa, pb := dst.Pix[di:di+r.Dx()], a.Pix[ai:ai+r.Dx()], b.Pix[bi:bi+r.Dx()]
		for x := range d {
			d[x] = f(pa[x], pb[x])
		}
	}
}

// Проверка реализации интерфейса
var _ port.RasterOps = (*Native)(nil)
