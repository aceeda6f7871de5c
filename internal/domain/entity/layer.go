package entity

import (
	"image"
	"math"
	"sync"
)

// HeightPrecision число знаков после запятой для высот в миллиметрах.
const HeightPrecision = 3

// Layer метаданные одного слоя печати.
type Layer struct {
	Index     int
	Bounds    image.Rectangle // прямоугольник ненулевых пикселей
	PositionZ float64         // высота слоя, мм
	IsEmpty   bool

	mu sync.Mutex
}

// Mutex блокировка слоя; удерживается при изменении растра слоя на месте.
func (l *Layer) Mutex() *sync.Mutex {
	return &l.mu
}

// RoundHeight округляет высоту до HeightPrecision знаков.
func RoundHeight(v float64) float64 {
	p := math.Pow10(HeightPrecision)
	return math.Round(v*p) / p
}
