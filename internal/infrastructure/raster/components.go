package raster

import (
	"image"

	"layer-inspector/internal/domain/entity"
)

// ConnectedComponents размечает ненулевые пиксели. Метки выдаются в порядке развёртки.
func (n *Native) ConnectedComponents(src *image.Gray, diagonal bool) *entity.Components {
	r := src.Bounds()
	w, h := r.Dx(), r.Dy()
	cc := &entity.Components{
		Origin: r.Min,
		Width:  w,
		Labels: make([]int32, w*h),
		Stats:  []entity.ComponentStats{{}},
	}

	offsets := []image.Point{image.Pt(1, 0), image.Pt(-1, 0), image.Pt(0, 1), image.Pt(0, -1)}
	if diagonal {
		offsets = append(offsets, image.Pt(1, 1), image.Pt(-1, 1), image.Pt(1, -1), image.Pt(-1, -1))
	}

	var stack []int
	for y := 0; y < h; y++ {
		row := src.PixOffset(r.Min.X, r.Min.Y+y)
		for x := 0; x < w; x++ {
			if src.Pix[row+x] == 0 || cc.Labels[y*w+x] != 0 {
				continue
			}
			label := int32(len(cc.Stats))
			stats := entity.ComponentStats{}
			cc.Labels[y*w+x] = label
			stack = append(stack[:0], y*w+x)
			for len(stack) > 0 {
				i := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := i%w, i/w
				p := image.Rectangle{Min: image.Pt(px, py), Max: image.Pt(px+1, py+1)}
				if stats.Area == 0 {
					stats.Bounds = p
				} else {
					stats.Bounds = stats.Bounds.Union(p)
				}
				stats.Area++

				for _, o := range offsets {
					nx, ny := px+o.X, py+o.Y
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if cc.Labels[j] != 0 || src.Pix[src.PixOffset(r.Min.X+nx, r.Min.Y+ny)] == 0 {
						continue
					}
					cc.Labels[j] = label
					stack = append(stack, j)
				}
			}
			stats.Bounds = stats.Bounds.Add(r.Min)
			cc.Stats = append(cc.Stats, stats)
		}
	}
	return cc
}
