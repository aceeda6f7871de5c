package raster

import (
	"image"

	"layer-inspector/internal/domain/entity"
)

// FindContours трассирует все границы (внешние и отверстий) методом
// Suzuki-Abe и восстанавливает иерархию вложенности.
func (n *Native) FindContours(src *image.Gray) *entity.ContourTree {
	r := src.Bounds()
	w, h := r.Dx(), r.Dy()
	pw := w + 2

	// рамка из нулей вокруг изображения
	f := make([]int32, pw*(h+2))
	for y := 0; y < h; y++ {
		si := src.PixOffset(r.Min.X, r.Min.Y+y)
		for x := 0; x < w; x++ {
			if src.Pix[si+x] != 0 {
				f[(y+1)*pw+x+1] = 1
			}
		}
	}

	t := &tracer{f: f, pw: pw}
	// соседи по часовой стрелке начиная с востока (ось y вниз)
	t.offs = [8]int{1, pw + 1, pw, pw - 1, -1, -pw - 1, -pw, -pw + 1}

	// borders[nbd]: 0 не используется, 1 рамка изображения
	type border struct {
		hole   bool
		parent int32
	}
	borders := []border{{}, {hole: true}}
	var contours [][]int

	nbd := int32(1)
	for y := 1; y <= h; y++ {
		lnbd := int32(1)
		for x := 1; x <= w; x++ {
			p := y*pw + x
			v := f[p]
			if v == 0 {
				continue
			}

			var start int
			var hole bool
			switch {
			case v == 1 && f[p-1] == 0:
				start = p - 1
			case v >= 1 && f[p+1] == 0:
				start, hole = p+1, true
				if v > 1 {
					lnbd = v
				}
			default:
				if v != 1 {
					lnbd = abs32(v)
				}
				continue
			}

			nbd++
			parent := lnbd
			if prev := borders[lnbd]; prev.hole == hole {
				parent = prev.parent
			}
			borders = append(borders, border{hole: hole, parent: parent})
			contours = append(contours, t.follow(p, start, nbd))

			if f[p] != 1 {
				lnbd = abs32(f[p])
			}
		}
	}

	tree := &entity.ContourTree{
		Contours:  make([]entity.Contour, len(contours)),
		Hierarchy: make([]entity.ContourLink, len(contours)),
		Holes:     make([]bool, len(contours)),
	}
	lastChild := make([]int, len(contours))
	lastRoot := -1
	for i, pix := range contours {
		c := make(entity.Contour, len(pix))
		for k, p := range pix {
			c[k] = image.Pt(p%pw-1+r.Min.X, p/pw-1+r.Min.Y)
		}
		tree.Contours[i] = c
		tree.Holes[i] = borders[i+2].hole
		lastChild[i] = -1

		// номер границы nbd соответствует контуру nbd-2
		parent := max(int(borders[i+2].parent)-2, -1)
		link := entity.ContourLink{Next: -1, Prev: -1, FirstChild: -1, Parent: parent}
		prevSibling := lastRoot
		if parent >= 0 {
			prevSibling = lastChild[parent]
		}
		if prevSibling >= 0 {
			link.Prev = prevSibling
			tree.Hierarchy[prevSibling].Next = i
		} else if parent >= 0 {
			tree.Hierarchy[parent].FirstChild = i
		}
		if parent >= 0 {
			lastChild[parent] = i
		} else {
			lastRoot = i
		}
		tree.Hierarchy[i] = link
	}
	return tree
}

type tracer struct {
	f    []int32
	pw   int
	offs [8]int
}

func (t *tracer) dir(from, to int) int {
	d := to - from
	for i, o := range t.offs {
		if o == d {
			return i
		}
	}
	return 0
}

// follow обходит границу, начиная с пикселя p0 и соседа start.
func (t *tracer) follow(p0, start int, nbd int32) []int {
	f := t.f
	d := t.dir(p0, start)
	p1 := -1
	for k := 0; k < 8; k++ {
		q := p0 + t.offs[(d+k)%8]
		if f[q] != 0 {
			p1 = q
			break
		}
	}
	if p1 < 0 {
		// одиночный пиксель
		f[p0] = -nbd
		return []int{p0}
	}

	var points []int
	p2, p3 := p1, p0
	for {
		d = t.dir(p3, p2)
		p4 := p2
		eastZero := false
		for k := 1; k <= 8; k++ {
			dd := (d - k + 16) % 8
			q := p3 + t.offs[dd]
			if f[q] != 0 {
				p4 = q
				break
			}
			if dd == 0 {
				eastZero = true
			}
		}

		if eastZero {
			f[p3] = -nbd
		} else if f[p3] == 1 {
			f[p3] = nbd
		}
		points = append(points, p3)

		if p4 == p0 && p3 == p1 {
			return points
		}
		p2, p3 = p3, p4
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
