// Package layers источник слоёв на основе PNG-блобов в памяти.
package layers

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
)

var (
	// ErrNoLayers источник не содержит ни одного слоя
	ErrNoLayers = errors.New("no layer images found")
	// ErrUnsupportedImage изображение слоя нельзя использовать
	ErrUnsupportedImage = errors.New("unsupported layer image")
	// ErrImageTooLarge заявленный размер слоя или архива превышает лимит загрузчика
	ErrImageTooLarge = errors.New("layer data too large")
)

// DefaultLayerHeight высота слоя по умолчанию, мм.
const DefaultLayerHeight = 0.05

// Option настройка стопки слоёв.
type Option func(*Stack)

// WithLayerHeight задаёт высоту слоя в миллиметрах.
func WithLayerHeight(h float64) Option {
	return func(s *Stack) {
		if h > 0 {
			s.layerHeight = h
		}
	}
}

// WithMachineHeight задаёт высоту рабочей зоны принтера в миллиметрах.
func WithMachineHeight(h float64) Option {
	return func(s *Stack) {
		s.machineHeight = h
	}
}

// Stack неизменяемая стопка слоёв. Растры хранятся сжатыми и декодируются по запросу.
type Stack struct {
	layers        []*entity.Layer
	blobs         [][]byte
	size          image.Rectangle
	bounds        image.Rectangle
	layerHeight   float64
	machineHeight float64
}

func newStack(count int, opts ...Option) *Stack {
	s := &Stack{
		layers:      make([]*entity.Layer, count),
		blobs:       make([][]byte, count),
		layerHeight: DefaultLayerHeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromImages собирает стопку из готовых изображений; все слои одного размера.
func FromImages(images []image.Image, opts ...Option) (*Stack, error) {
	if len(images) == 0 {
		return nil, ErrNoLayers
	}
	s := newStack(len(images), opts...)
	for i, img := range images {
		if err := s.set(i, img); err != nil {
			return nil, err
		}
	}
	if err := s.finish(); err != nil {
		return nil, err
	}
	return s, nil
}

// set сохраняет слой i. Разные индексы можно заполнять конкурентно.
func (s *Stack) set(i int, img image.Image) error {
	gray := toGray(img)
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, gray); err != nil {
		return fmt.Errorf("encode layer %d: %w", i, err)
	}

	bounds := nonZeroBounds(gray)
	s.blobs[i] = buf.Bytes()
	s.layers[i] = &entity.Layer{
		Index:     i,
		Bounds:    bounds,
		PositionZ: entity.RoundHeight(float64(i+1) * s.layerHeight),
		IsEmpty:   bounds.Empty(),
	}
	return nil
}

// finish проверяет размеры и считает общий прямоугольник.
func (s *Stack) finish() error {
	for i, blob := range s.blobs {
		cfg, err := png.DecodeConfig(bytes.NewReader(blob))
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		size := image.Rect(0, 0, cfg.Width, cfg.Height)
		if i == 0 {
			s.size = size
		} else if size != s.size {
			return fmt.Errorf("layer %d is %v, expected %v: %w", i, size.Size(), s.size.Size(), ErrUnsupportedImage)
		}
		s.bounds = s.bounds.Union(s.layers[i].Bounds)
	}
	return nil
}

func (s *Stack) LayerCount() int {
	return len(s.layers)
}

func (s *Stack) Layer(index int) *entity.Layer {
	return s.layers[index]
}

// LayerImage декодирует слой; вызывающий получает собственную копию.
func (s *Stack) LayerImage(index int) (*image.Gray, error) {
	img, err := png.Decode(bytes.NewReader(s.blobs[index]))
	if err != nil {
		return nil, fmt.Errorf("decode layer %d: %w", index, err)
	}
	return toGray(img), nil
}

func (s *Stack) BoundingRectangle() image.Rectangle {
	return s.bounds
}

// Size размер изображения слоя.
func (s *Stack) Size() image.Rectangle {
	return s.size
}

func (s *Stack) MachineHeight() float64 {
	return s.machineHeight
}

func (s *Stack) PrintHeight() float64 {
	if len(s.layers) == 0 {
		return 0
	}
	return s.layers[len(s.layers)-1].PositionZ
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(g, g.Bounds(), img, b.Min, xdraw.Src)
	return g
}

func nonZeroBounds(img *image.Gray) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+b.Dx()]
		first, last := -1, -1
		for x, v := range row {
			if v == 0 {
				continue
			}
			if first < 0 {
				first = x
			}
			last = x
		}
		if first < 0 {
			continue
		}
		r = r.Union(image.Rect(b.Min.X+first, y, b.Min.X+last+1, y+1))
	}
	return r
}

// Проверка реализации интерфейса
var _ port.LayerSource = (*Stack)(nil)
