package raster

import (
	"image"

	"golang.org/x/image/vector"

	"layer-inspector/internal/domain/entity"
)

// coverage с которой пиксель считается внутри многоугольника
const insideCoverage = 0x80

// FillContours закрашивает области по правилу чёт-нечет и рисует граничные пиксели контуров.
// Многоугольник строится по центрам пикселей, поэтому покрытие внутренних пикселей полное.
func (n *Native) FillContours(dst *image.Gray, contours []entity.Contour, value uint8) {
	var area image.Rectangle
	for _, c := range contours {
		if len(c) > 0 {
			area = area.Union(c.Bounds())
		}
	}
	area = area.Intersect(dst.Bounds())
	if area.Empty() {
		return
	}

	parity := make([]uint8, area.Dx()*area.Dy())
	for _, c := range contours {
		if len(c) < 3 {
			continue
		}
		cb := c.Bounds()
		z := vector.NewRasterizer(cb.Dx(), cb.Dy())
		for i, p := range c {
			x, y := float32(p.X-cb.Min.X)+0.5, float32(p.Y-cb.Min.Y)+0.5
			if i == 0 {
				z.MoveTo(x, y)
			} else {
				z.LineTo(x, y)
			}
		}
		z.ClosePath()

		mask := image.NewAlpha(image.Rect(0, 0, cb.Dx(), cb.Dy()))
		z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

		visible := cb.Intersect(area)
		for y := visible.Min.Y; y < visible.Max.Y; y++ {
			for x := visible.Min.X; x < visible.Max.X; x++ {
				if mask.Pix[mask.PixOffset(x-cb.Min.X, y-cb.Min.Y)] >= insideCoverage {
					parity[(y-area.Min.Y)*area.Dx()+x-area.Min.X] ^= 1
				}
			}
		}
	}

	for y := area.Min.Y; y < area.Max.Y; y++ {
		di := dst.PixOffset(area.Min.X, y)
		pi := (y - area.Min.Y) * area.Dx()
		for x := 0; x < area.Dx(); x++ {
			if parity[pi+x] == 1 {
				dst.Pix[di+x] = value
			}
		}
	}
	for _, c := range contours {
		for _, p := range c {
			if p.In(area) {
				dst.Pix[dst.PixOffset(p.X, p.Y)] = value
			}
		}
	}
}
