package entity

import (
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Contour замкнутая ломаная по центрам граничных пикселей.
type Contour []image.Point

// Bounds ограничивающий прямоугольник контура.
func (c Contour) Bounds() image.Rectangle {
	return pointsBounds(c)
}

// Ring переводит контур в замкнутое кольцо orb.
func (c Contour) Ring() orb.Ring {
	ring := make(orb.Ring, 0, len(c)+1)
	for _, p := range c {
		ring = append(ring, orb.Point{float64(p.X), float64(p.Y)})
	}
	if len(c) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}

// Area площадь многоугольника контура.
func (c Contour) Area() float64 {
	if len(c) < 3 {
		return 0
	}
	return math.Abs(planar.Area(c.Ring()))
}

// Orientation направление обхода контура.
func (c Contour) Orientation() orb.Orientation {
	if len(c) < 3 {
		return 0
	}
	return c.Ring().Orientation()
}

// Translate возвращает копию контура, сдвинутую на offset.
func (c Contour) Translate(offset image.Point) Contour {
	out := make(Contour, len(c))
	for i, p := range c {
		out[i] = p.Add(offset)
	}
	return out
}

// ContourLink связи контура в иерархии; -1 означает отсутствие.
type ContourLink struct {
	Next       int
	Prev       int
	FirstChild int
	Parent     int
}

// ContourTree результат иерархического трассирования контуров.
type ContourTree struct {
	Contours  []Contour
	Hierarchy []ContourLink
	Holes     []bool
}

// Externals контуры верхнего уровня.
func (t *ContourTree) Externals() []Contour {
	var result []Contour
	for i, link := range t.Hierarchy {
		if link.Parent == -1 {
			result = append(result, t.Contours[i])
		}
	}
	return result
}

// HollowContour контур полости вместе с вложенными в неё внешними контурами
// и площадью за их вычетом.
type HollowContour struct {
	Contours []Contour
	Area     float64
}

// Bounds ограничивающий прямоугольник полости.
func (h HollowContour) Bounds() image.Rectangle {
	if len(h.Contours) == 0 {
		return image.Rectangle{}
	}
	return h.Contours[0].Bounds()
}

// Hollows группирует каждый контур отверстия с его прямыми потомками.
// Пустые контуры пропускаются.
func (t *ContourTree) Hollows() []HollowContour {
	var result []HollowContour
	for i, link := range t.Hierarchy {
		if !t.Holes[i] || len(t.Contours[i]) == 0 {
			continue
		}
		group := []Contour{t.Contours[i]}
		area := t.Contours[i].Area()
		for child := link.FirstChild; child != -1; child = t.Hierarchy[child].Next {
			if len(t.Contours[child]) == 0 {
				continue
			}
			group = append(group, t.Contours[child])
			area -= t.Contours[child].Area()
		}
		result = append(result, HollowContour{Contours: group, Area: max(area, 0)})
	}
	return result
}

// ComponentStats статистика одной связной компоненты.
type ComponentStats struct {
	Bounds image.Rectangle
	Area   int
}

// Components разметка связных компонент. Метка 0 фон, Stats[i] описывает метку i.
type Components struct {
	Origin image.Point
	Width  int
	Labels []int32
	Stats  []ComponentStats
}

// Count число меток вместе с фоном.
func (c *Components) Count() int {
	return len(c.Stats)
}

// Label метка пикселя в абсолютных координатах.
func (c *Components) Label(x, y int) int32 {
	return c.Labels[(y-c.Origin.Y)*c.Width+(x-c.Origin.X)]
}
