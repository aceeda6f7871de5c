package detection

import (
	"context"
	"fmt"
	"image"

	"layer-inspector/internal/domain/port"
)

// cacheSlot ячейка арены кэша.
type cacheSlot struct {
	img     *image.Gray
	present bool
}

// layerImageCache скользящее окно растров слоёв, обрезанных по ROI и бинаризованных.
// Каждую ячейку заполняет не более одной задачи; освобождать ячейку во время
// заполнения нельзя.
type layerImageCache struct {
	ops         port.RasterOps
	src         port.LayerSource
	roi         image.Rectangle
	thresh      uint8
	start       int
	window      int
	parallelism int
	slots       []cacheSlot
}

func newLayerImageCache(ops port.RasterOps, src port.LayerSource, roi image.Rectangle, thresh uint8, start, window, parallelism int) *layerImageCache {
	return &layerImageCache{
		ops:         ops,
		src:         src,
		roi:         roi,
		thresh:      thresh,
		start:       start,
		window:      window,
		parallelism: parallelism,
		slots:       make([]cacheSlot, src.LayerCount()),
	}
}

// ensureForward подгружает [index, index+window] при промахе.
func (c *layerImageCache) ensureForward(ctx context.Context, index int) error {
	if c.slots[index].present {
		return nil
	}
	return c.load(ctx, index, min(len(c.slots), index+c.window+1))
}

// ensureBackward подгружает [index-window, index] при промахе, не ниже стартового слоя.
func (c *layerImageCache) ensureBackward(ctx context.Context, index int) error {
	if c.slots[index].present {
		return nil
	}
	return c.load(ctx, max(c.start, index-c.window), index+1)
}

func (c *layerImageCache) load(ctx context.Context, from, to int) error {
	return forEach(ctx, c.parallelism, from, to, func(_ context.Context, i int) error {
		if c.slots[i].present {
			return nil
		}
		img, err := c.src.LayerImage(i)
		if err != nil {
			return fmt.Errorf("decode layer %d: %w", i, err)
		}
		c.slots[i] = cacheSlot{
			img:     c.ops.Threshold(c.ops.Crop(img, c.roi), c.thresh),
			present: true,
		}
		return nil
	})
}

// get растр слоя или nil, если его нет в кэше.
func (c *layerImageCache) get(index int) *image.Gray {
	return c.slots[index].img
}

func (c *layerImageCache) release(index int) {
	c.slots[index] = cacheSlot{}
}

func (c *layerImageCache) releaseAll() {
	for i := range c.slots {
		c.slots[i] = cacheSlot{}
	}
}

// size число занятых ячеек.
func (c *layerImageCache) size() int {
	n := 0
	for _, s := range c.slots {
		if s.present {
			n++
		}
	}
	return n
}
