//go:build gocv
// +build gocv

package raster

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
)

// GoCV растровые операции через OpenCV.
type GoCV struct {
	kernel gocv.Mat
}

// NewGoCV создаёт набор операций на OpenCV.
func NewGoCV() *GoCV {
	return &GoCV{kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))}
}

// Close освобождает ядро морфологии.
func (g *GoCV) Close() error {
	return g.kernel.Close()
}

func (g *GoCV) Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	mat := toMat(src)
	defer mat.Close()

	region := mat.Region(r.Sub(src.Bounds().Min))
	defer region.Close()
	roi := region.Clone()
	defer roi.Close()

	return fromMat(roi, image.Rect(0, 0, r.Dx(), r.Dy()))
}

func (g *GoCV) Threshold(src *image.Gray, thresh uint8) *image.Gray {
	mat := toMat(src)
	defer mat.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Threshold(mat, &out, float32(thresh), 255, gocv.ThresholdBinary)

	return fromMat(out, src.Bounds())
}

func (g *GoCV) Not(dst, src *image.Gray) {
	mat := toMat(src.SubImage(dst.Bounds()).(*image.Gray))
	defer mat.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.BitwiseNot(mat, &out)

	copyInto(dst, out)
}

func (g *GoCV) And(dst, a, b *image.Gray) {
	g.binary(dst, a, b, gocv.BitwiseAnd)
}

func (g *GoCV) Or(dst, a, b *image.Gray) {
	g.binary(dst, a, b, gocv.BitwiseOr)
}

func (g *GoCV) Subtract(dst, a, b *image.Gray) {
	g.binary(dst, a, b, gocv.Subtract)
}

func (g *GoCV) binary(dst, a, b *image.Gray, op func(gocv.Mat, gocv.Mat, *gocv.Mat)) {
	r := dst.Bounds()
	ma := toMat(a.SubImage(r).(*image.Gray))
	defer ma.Close()
	mb := toMat(b.SubImage(r).(*image.Gray))
	defer mb.Close()

	out := gocv.NewMat()
	defer out.Close()
	op(ma, mb, &out)

	copyInto(dst, out)
}

func (g *GoCV) Erode(src *image.Gray, iterations int) *image.Gray {
	cur := toMat(src)
	defer cur.Close()

	for i := 0; i < iterations; i++ {
		next := gocv.NewMat()
		gocv.Erode(cur, &next, g.kernel)
		cur.Close()
		cur = next
	}
	return fromMat(cur, src.Bounds())
}

func (g *GoCV) CountNonZero(src *image.Gray) int {
	mat := toMat(src)
	defer mat.Close()
	return gocv.CountNonZero(mat)
}

func (g *GoCV) FindNonZero(src *image.Gray) []image.Point {
	mat := toMat(src)
	defer mat.Close()

	idx := gocv.NewMat()
	defer idx.Close()
	gocv.FindNonZero(mat, &idx)

	origin := src.Bounds().Min
	points := make([]image.Point, 0, idx.Rows())
	for i := 0; i < idx.Rows(); i++ {
		v := idx.GetVeciAt(i, 0)
		points = append(points, image.Pt(int(v[0]), int(v[1])).Add(origin))
	}
	return points
}

func (g *GoCV) ConnectedComponents(src *image.Gray, diagonal bool) *entity.Components {
	mat := toMat(src)
	defer mat.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	conn := 4
	if diagonal {
		conn = 8
	}
	count := gocv.ConnectedComponentsWithStatsWithParams(mat, &labels, &stats, &centroids,
		conn, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)

	r := src.Bounds()
	cc := &entity.Components{
		Origin: r.Min,
		Width:  r.Dx(),
		Labels: make([]int32, r.Dx()*r.Dy()),
		Stats:  make([]entity.ComponentStats, count),
	}
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			cc.Labels[y*r.Dx()+x] = labels.GetIntAt(y, x)
		}
	}
	for i := 1; i < count; i++ {
		left := int(stats.GetIntAt(i, int(gocv.CC_STAT_LEFT)))
		top := int(stats.GetIntAt(i, int(gocv.CC_STAT_TOP)))
		width := int(stats.GetIntAt(i, int(gocv.CC_STAT_WIDTH)))
		height := int(stats.GetIntAt(i, int(gocv.CC_STAT_HEIGHT)))
		cc.Stats[i] = entity.ComponentStats{
			Bounds: image.Rect(left, top, left+width, top+height).Add(r.Min),
			Area:   int(stats.GetIntAt(i, int(gocv.CC_STAT_AREA))),
		}
	}
	return cc
}

func (g *GoCV) FindContours(src *image.Gray) *entity.ContourTree {
	mat := toMat(src)
	defer mat.Close()

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()
	contours := gocv.FindContoursWithParams(mat, &hierarchy, gocv.RetrievalTree, gocv.ChainApproxNone)
	defer contours.Close()

	origin := src.Bounds().Min
	tree := &entity.ContourTree{
		Contours:  make([]entity.Contour, contours.Size()),
		Hierarchy: make([]entity.ContourLink, contours.Size()),
		Holes:     make([]bool, contours.Size()),
	}
	for i := 0; i < contours.Size(); i++ {
		pts := contours.At(i).ToPoints()
		c := make(entity.Contour, len(pts))
		for k, p := range pts {
			c[k] = p.Add(origin)
		}
		tree.Contours[i] = c

		v := hierarchy.GetVeciAt(0, i)
		tree.Hierarchy[i] = entity.ContourLink{
			Next: int(v[0]), Prev: int(v[1]), FirstChild: int(v[2]), Parent: int(v[3]),
		}
	}
	// отверстия лежат на нечётной глубине вложенности
	for i := range tree.Hierarchy {
		depth := 0
		for p := tree.Hierarchy[i].Parent; p != -1; p = tree.Hierarchy[p].Parent {
			depth++
		}
		tree.Holes[i] = depth%2 == 1
	}
	return tree
}

func (g *GoCV) FillContours(dst *image.Gray, contours []entity.Contour, value uint8) {
	r := dst.Bounds()
	pts := make([][]image.Point, 0, len(contours))
	for _, c := range contours {
		if len(c) == 0 {
			continue
		}
		shifted := make([]image.Point, len(c))
		for i, p := range c {
			shifted[i] = p.Sub(r.Min)
		}
		pts = append(pts, shifted)
	}
	if len(pts) == 0 {
		return
	}

	mat := toMat(dst)
	defer mat.Close()
	vec := gocv.NewPointsVectorFromPoints(pts)
	defer vec.Close()

	c := color.RGBA{R: value, G: value, B: value, A: value}
	gocv.DrawContours(&mat, vec, -1, c, -1)

	copyInto(dst, mat)
}

// toMat копирует изображение в непрерывный Mat.
func toMat(img *image.Gray) gocv.Mat {
	r := img.Bounds()
	buf := make([]byte, r.Dx()*r.Dy())
	for y := 0; y < r.Dy(); y++ {
		i := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(buf[y*r.Dx():(y+1)*r.Dx()], img.Pix[i:i+r.Dx()])
	}
	mat, err := gocv.NewMatFromBytes(r.Dy(), r.Dx(), gocv.MatTypeCV8UC1, buf)
	if err != nil {
		panic(fmt.Errorf("convert %v raster to mat: %w", r, err))
	}
	return mat
}

// fromMat создаёт изображение с заданными границами из данных Mat.
func fromMat(mat gocv.Mat, r image.Rectangle) *image.Gray {
	img := image.NewGray(r)
	copyInto(img, mat)
	return img
}

func copyInto(dst *image.Gray, mat gocv.Mat) {
	r := dst.Bounds()
	data := mat.ToBytes()
	for y := 0; y < r.Dy(); y++ {
		i := dst.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[i:i+r.Dx()], data[y*r.Dx():(y+1)*r.Dx()])
	}
}

// Проверка реализации интерфейса
var _ port.RasterOps = (*GoCV)(nil)
