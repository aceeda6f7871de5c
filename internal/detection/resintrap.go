package detection

import (
	"context"
	"image"
	"time"

	"layer-inspector/internal/domain/entity"
)

// hollowVerdict итог проверки одной полости против карты воздуха.
type hollowVerdict uint8

const (
	verdictSkipped hollowVerdict = iota
	verdictTrap                  // пересечения с воздухом нет
	verdictAir                   // соединена с воздухом, добавляется в карту
	verdictSolid                 // пересечение слабое, вычитается из карты
)

// resinTrapClassifier два прохода по слоям: снизу вверх находит кандидатов в ловушки,
// сверху вниз переводит в присоски те, что открыты к воздуху сверху.
type resinTrapClassifier struct {
	*run
	cfg   entity.ResinTrapDetectionConfiguration
	cache *layerImageCache
	size  image.Rectangle

	traps       [][]entity.HollowContour
	airContours [][]entity.HollowContour
	suctionCups [][]entity.HollowContour
}

func newResinTrapClassifier(r *run, window int) *resinTrapClassifier {
	n := r.src.LayerCount()
	cfg := r.opts.ResinTrap
	return &resinTrapClassifier{
		run:         r,
		cfg:         cfg,
		cache:       newLayerImageCache(r.ops, r.src, r.roi, cfg.MaximumPixelBrightnessToDrain, cfg.StartLayerIndex, window, r.parallelism),
		size:        image.Rect(0, 0, r.roi.Dx(), r.roi.Dy()),
		traps:       make([][]entity.HollowContour, n),
		airContours: make([][]entity.HollowContour, n),
		suctionCups: make([][]entity.HollowContour, n),
	}
}

// classify выполняет оба прохода и публикует результат. При отмене ничего не публикует.
func (c *resinTrapClassifier) classify(ctx context.Context) error {
	defer c.cache.releaseAll()

	started := time.Now()
	if err := c.forward(ctx); err != nil || ctx.Err() != nil {
		return err
	}
	detectionDuration.WithLabelValues(phaseResinForward).Observe(time.Since(started).Seconds())

	started = time.Now()
	if err := c.reverse(ctx); err != nil || ctx.Err() != nil {
		return err
	}
	detectionDuration.WithLabelValues(phaseResinReverse).Observe(time.Since(started).Seconds())

	c.emit(ctx)
	return nil
}

// forward первый проход снизу вверх.
func (c *resinTrapClassifier) forward(ctx context.Context) error {
	n := c.src.LayerCount()
	start := c.cfg.StartLayerIndex
	c.progress.Reset("Detection pass 1 of 2 (resin traps)", n, start)

	air := image.NewGray(c.size)
	local := image.NewGray(c.size)
	for i := start; i < n; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.cache.ensureForward(ctx, i); err != nil {
			return err
		}
		solid := c.cache.get(i)
		if solid == nil {
			return nil
		}

		c.localAirMap(local, solid, c.externals[i])
		if i == start {
			copy(air.Pix, local.Pix)
		}
		c.ops.Subtract(air, air, solid)
		c.ops.Or(air, air, local)

		// крайние слои всегда считаются открытыми
		drain := i == start || i == n-1
		candidates := c.candidates(i)
		verdicts := c.testHollows(ctx, i, candidates, solid, air, func(overlap int) hollowVerdict {
			switch {
			case drain || overlap >= c.cfg.RequiredBlackPixelsToDrain:
				return verdictAir
			case overlap == 0:
				return verdictTrap
			default:
				return verdictSolid
			}
		})
		for k, v := range verdicts {
			switch v {
			case verdictTrap:
				c.traps[i] = append(c.traps[i], candidates[k])
			case verdictAir:
				c.airContours[i] = append(c.airContours[i], candidates[k])
			}
		}

		c.cache.release(i)
		c.progress.Increment()
		layersProcessed.WithLabelValues(phaseResinForward).Inc()
	}
	return nil
}

// reverse второй проход сверху вниз.
func (c *resinTrapClassifier) reverse(ctx context.Context) error {
	n := c.src.LayerCount()
	start := c.cfg.StartLayerIndex
	c.progress.Reset("Detection pass 2 of 2 (resin traps)", n, start)

	air := image.NewGray(c.size)
	local := image.NewGray(c.size)
	for i := n - 1; i >= start; i-- {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.cache.ensureBackward(ctx, i); err != nil {
			return err
		}
		solid := c.cache.get(i)
		if solid == nil {
			return nil
		}

		if i == n-1 {
			// всё полое на верхнем слое открыто
			c.ops.Not(air, solid)
		}
		c.localAirMap(local, solid, c.externals[i])
		if seeds := c.airContours[i]; len(seeds) > 0 {
			for _, h := range seeds {
				c.ops.FillContours(local, h.Contours, 0xff)
			}
			c.ops.Subtract(local, local, solid)
		}
		c.ops.Subtract(air, air, solid)
		c.ops.Or(air, air, local)

		if traps := c.traps[i]; len(traps) > 0 {
			verdicts := c.testHollows(ctx, i, traps, solid, air, func(overlap int) hollowVerdict {
				if overlap >= c.cfg.RequiredBlackPixelsToDrain {
					return verdictAir
				}
				return verdictSolid
			})
			if ctx.Err() != nil {
				return nil
			}
			var kept []entity.HollowContour
			for k, v := range verdicts {
				if v == verdictAir {
					c.suctionCups[i] = append(c.suctionCups[i], traps[k])
				} else {
					kept = append(kept, traps[k])
				}
			}
			c.traps[i] = kept
		}

		c.cache.release(i)
		c.progress.Increment()
		layersProcessed.WithLabelValues(phaseResinReverse).Inc()
	}
	return nil
}

// candidates полости слоя с площадью не меньше порога.
func (c *resinTrapClassifier) candidates(index int) []entity.HollowContour {
	var result []entity.HollowContour
	for _, h := range c.hollows[index] {
		if h.Area >= c.cfg.RequiredAreaToProcessCheck {
			result = append(result, h)
		}
	}
	return result
}

// localAirMap: всё, что не закрыто слоем, кроме внутренностей внешних контуров.
func (c *resinTrapClassifier) localAirMap(dst, solid *image.Gray, externals []entity.Contour) {
	c.ops.Not(dst, solid)
	if len(externals) > 0 {
		c.ops.FillContours(dst, externals, 0)
	}
}

// hollowMask закрашенная полость без пикселей самого слоя. Полости одного слоя
// после этого не пересекаются, и порядок их проверки не влияет на карту воздуха.
func (c *resinTrapClassifier) hollowMask(h entity.HollowContour, solid *image.Gray) *image.Gray {
	r := h.Bounds().Intersect(solid.Bounds())
	if r.Empty() {
		return nil
	}
	mask := image.NewGray(r)
	c.ops.FillContours(mask, h.Contours, 0xff)
	c.ops.Subtract(mask, mask, solid.SubImage(r).(*image.Gray))
	return mask
}

// testHollows параллельно проверяет полости слоя. Чтение карты воздуха и её изменение
// по решению decide выполняются под блокировкой слоя.
func (c *resinTrapClassifier) testHollows(ctx context.Context, index int, hollows []entity.HollowContour, solid, air *image.Gray, decide func(overlap int) hollowVerdict) []hollowVerdict {
	verdicts := make([]hollowVerdict, len(hollows))
	if len(hollows) == 0 {
		return verdicts
	}
	mu := c.src.Layer(index).Mutex()

	_ = forEach(ctx, c.parallelism, 0, len(hollows), func(_ context.Context, k int) error {
		h := hollows[k]
		if len(h.Contours) == 0 || len(h.Contours[0]) == 0 {
			return nil
		}
		mask := c.hollowMask(h, solid)
		if mask == nil {
			return nil
		}
		overlap := image.NewGray(mask.Bounds())

		mu.Lock()
		defer mu.Unlock()
		view := air.SubImage(mask.Bounds()).(*image.Gray)
		c.ops.And(overlap, view, mask)
		v := decide(c.ops.CountNonZero(overlap))
		switch v {
		case verdictAir:
			c.ops.Or(view, view, mask)
		case verdictSolid:
			c.ops.Subtract(view, view, mask)
		}
		verdicts[k] = v
		return nil
	})
	return verdicts
}

// emit переводит контуры в глобальные координаты и публикует проблемы.
// Присоски публикуются сверху вниз.
func (c *resinTrapClassifier) emit(ctx context.Context) {
	offset := c.roi.Min
	n := c.src.LayerCount()
	_ = forEach(ctx, c.parallelism, 0, n, func(_ context.Context, i int) error {
		c.traps[i] = translateHollows(c.traps[i], offset)
		c.suctionCups[i] = translateHollows(c.suctionCups[i], offset)
		return nil
	})
	if ctx.Err() != nil {
		return
	}

	for i := 0; i < n; i++ {
		for _, h := range c.traps[i] {
			c.agg.add(entity.NewContoursIssue(entity.IssueResinTrap, i, h.Contours, h.Area))
		}
	}
	if c.cfg.DetectSuctionCups {
		for i := n - 1; i >= 0; i-- {
			for _, h := range c.suctionCups[i] {
				if h.Area < c.cfg.RequiredAreaToConsiderSuctionCup {
					continue
				}
				c.agg.add(entity.NewContoursIssue(entity.IssueSuctionCup, i, h.Contours, h.Area))
			}
		}
	}

	c.traps, c.airContours, c.suctionCups = nil, nil, nil
}

func translateHollows(hollows []entity.HollowContour, offset image.Point) []entity.HollowContour {
	if len(hollows) == 0 || offset == (image.Point{}) {
		return hollows
	}
	out := make([]entity.HollowContour, len(hollows))
	for k, h := range hollows {
		contours := make([]entity.Contour, len(h.Contours))
		for j, ct := range h.Contours {
			contours[j] = ct.Translate(offset)
		}
		out[k] = entity.HollowContour{Contours: contours, Area: h.Area}
	}
	return out
}
