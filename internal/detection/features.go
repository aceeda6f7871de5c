package detection

import (
	"context"
	"fmt"
	"image"

	"layer-inspector/internal/domain/entity"
)

// порог бинаризации разности слоёв при поиске нависаний
const overhangDiffThreshold = 127

// needsDecode: слой декодируется только если его проверит хотя бы один детектор.
func (r *run) needsDecode(layer *entity.Layer) bool {
	o := r.opts
	if o.TouchingBound.Enabled || o.ResinTrap.Enabled {
		return true
	}
	i := layer.Index
	island := o.Island.Enabled && i > 0 && o.Island.WhiteListLayers.Allows(i)
	overhang := o.Overhang.Enabled && i > 0 && o.Overhang.WhiteListLayers.Allows(i)
	return island || overhang
}

// detectLayerFeatures одна задача общего прохода по слоям.
func (r *run) detectLayerFeatures(ctx context.Context, index int) error {
	defer r.progress.Increment()

	layer := r.src.Layer(index)
	if layer.IsEmpty || !r.needsDecode(layer) {
		return nil
	}
	img, err := r.src.LayerImage(index)
	if err != nil {
		return fmt.Errorf("decode layer %d: %w", index, err)
	}

	if r.opts.TouchingBound.Enabled {
		r.detectTouchingBound(layer, img)
	}

	if index > 0 {
		var previous *image.Gray
		loadPrevious := func() (*image.Gray, error) {
			if previous != nil {
				return previous, nil
			}
			prev, err := r.src.LayerImage(index - 1)
			if err != nil {
				return nil, fmt.Errorf("decode layer %d: %w", index-1, err)
			}
			previous = prev
			return previous, nil
		}

		if r.opts.Island.Enabled && r.opts.Island.WhiteListLayers.Allows(index) {
			if err := r.detectIslands(ctx, layer, img, loadPrevious); err != nil {
				return err
			}
		}

		ov := r.opts.Overhang
		independent := !r.opts.Island.Enabled || ov.IndependentFromIslands
		if ov.Enabled && independent && ov.WhiteListLayers.Allows(index) {
			prev, err := loadPrevious()
			if err != nil {
				return err
			}
			r.detectOverhang(layer, img, prev)
		}
	}

	if r.opts.ResinTrap.Enabled {
		r.extractHollows(index, img)
	}
	return nil
}

// detectTouchingBound собирает яркие пиксели в полях вдоль краёв, к которым подходит геометрия слоя.
func (r *run) detectTouchingBound(layer *entity.Layer, img *image.Gray) {
	cfg := r.opts.TouchingBound
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	touchTop := layer.Bounds.Min.Y <= cfg.MarginTop
	touchBottom := layer.Bounds.Max.Y >= h-cfg.MarginBottom
	touchLeft := layer.Bounds.Min.X <= cfg.MarginLeft
	touchRight := layer.Bounds.Max.X >= w-cfg.MarginRight

	var points []image.Point
	scan := func(x, y int) {
		if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y >= cfg.MinimumPixelBrightness {
			points = append(points, image.Pt(b.Min.X+x, b.Min.Y+y))
		}
	}

	topEnd := min(cfg.MarginTop, h)
	bottomStart := max(h-cfg.MarginBottom, 0)
	if touchTop {
		// полосы не пересекаются на маленьких изображениях
		bottomStart = max(bottomStart, topEnd)
	}
	if touchTop || touchBottom {
		for x := 0; x < w; x++ {
			if touchTop {
				for y := 0; y < topEnd; y++ {
					scan(x, y)
				}
			}
			if touchBottom {
				for y := bottomStart; y < h; y++ {
					scan(x, y)
				}
			}
		}
	}

	leftEnd := min(cfg.MarginLeft, w)
	rightStart := max(w-cfg.MarginRight, 0)
	if touchLeft {
		rightStart = max(rightStart, leftEnd)
	}
	if touchLeft || touchRight {
		for y := topEnd; y < bottomStart; y++ {
			if touchLeft {
				for x := 0; x < leftEnd; x++ {
					scan(x, y)
				}
			}
			if touchRight {
				for x := rightStart; x < w; x++ {
					scan(x, y)
				}
			}
		}
	}

	if len(points) > 0 {
		r.agg.add(entity.NewPointsIssue(entity.IssueTouchingBound, layer.Index, points, image.Rectangle{}))
	}
}

// detectIslands ищет компоненты, недостаточно опёртые на предыдущий слой.
func (r *run) detectIslands(ctx context.Context, layer *entity.Layer, img *image.Gray, previous func() (*image.Gray, error)) error {
	cfg := r.opts.Island
	ov := r.opts.Overhang

	bin := img
	if cfg.BinaryThreshold > 0 {
		bin = r.ops.Threshold(img, cfg.BinaryThreshold)
	}
	cc := r.ops.ConnectedComponents(bin, cfg.AllowDiagonalBonds)

	for label := 1; label < cc.Count(); label++ {
		if ctx.Err() != nil {
			return nil
		}
		rect := cc.Stats[label].Bounds
		if rect.Dx()*rect.Dy() < cfg.RequiredAreaToProcessCheck {
			continue
		}
		prev, err := previous()
		if err != nil {
			return err
		}

		var points []image.Point
		supporting := 0
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				if cc.Label(x, y) != int32(label) || img.GrayAt(x, y).Y < cfg.RequiredPixelBrightnessToProcessCheck {
					continue
				}
				points = append(points, image.Pt(x, y))
				if prev.GrayAt(x, y).Y >= cfg.RequiredPixelBrightnessToSupport {
					supporting++
				}
			}
		}
		if len(points) == 0 {
			continue
		}

		required := max(1, float64(len(points))*cfg.RequiredPixelsToSupportMultiplier)
		isIsland := float64(supporting) < required

		retest := (ov.Enabled && !ov.IndependentFromIslands && !isIsland) ||
			(isIsland && cfg.EnhancedDetection && supporting >= cfg.RequiredPixelsToSupport)
		if retest {
			overhang := r.overhangPoints(img, prev, rect, func(p image.Point) bool {
				return cc.Label(p.X, p.Y) == int32(label)
			})
			switch {
			case len(overhang) >= ov.RequiredPixelsToConsider:
				r.agg.add(entity.NewPointsIssue(entity.IssueOverhang, layer.Index, overhang, rect))
				isIsland = false
			case cfg.EnhancedDetection && !(ov.Enabled && ov.IndependentFromIslands):
				// независимая проверка нависаний не запускается, остров снимаем здесь
				isIsland = false
			}
		}

		if isIsland {
			r.agg.add(entity.NewPointsIssue(entity.IssueIsland, layer.Index, points, rect))
		}
	}
	return nil
}

// detectOverhang независимая проверка всего слоя.
func (r *run) detectOverhang(layer *entity.Layer, img, prev *image.Gray) {
	points := r.overhangPoints(img, prev, img.Bounds(), nil)
	if len(points) >= r.opts.Overhang.RequiredPixelsToConsider {
		r.agg.add(entity.NewPointsIssue(entity.IssueOverhang, layer.Index, points, layer.Bounds))
	}
}

// overhangPoints пиксели новой площади в rect, пережившие эрозию.
func (r *run) overhangPoints(img, prev *image.Gray, rect image.Rectangle, keep func(image.Point) bool) []image.Point {
	rect = rect.Intersect(img.Bounds()).Intersect(prev.Bounds())
	if rect.Empty() {
		return nil
	}
	diff := image.NewGray(rect)
	r.ops.Subtract(diff, img.SubImage(rect).(*image.Gray), prev.SubImage(rect).(*image.Gray))
	eroded := r.ops.Erode(r.ops.Threshold(diff, overhangDiffThreshold), r.opts.Overhang.ErodeIterations)

	points := r.ops.FindNonZero(eroded)
	if keep == nil {
		return points
	}
	kept := points[:0]
	for _, p := range points {
		if keep(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

// extractHollows трассирует контуры слоя внутри ROI для поиска ловушек смолы.
func (r *run) extractHollows(index int, img *image.Gray) {
	bin := r.ops.Threshold(r.ops.Crop(img, r.roi), r.opts.ResinTrap.BinaryThreshold)
	tree := r.ops.FindContours(bin)
	r.externals[index] = tree.Externals()
	r.hollows[index] = tree.Hollows()
}
