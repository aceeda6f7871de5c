package port

import (
	"image"

	"layer-inspector/internal/domain/entity"
)

// RasterOps растровые операции над монохромными изображениями.
// Бинарные операции читают операнды в тех же абсолютных координатах, что и dst.
type RasterOps interface {
	// Crop копирует область r в новое изображение с началом в (0,0)
	Crop(src *image.Gray, r image.Rectangle) *image.Gray

	// Threshold бинаризация: пиксели > thresh становятся 255, остальные 0
	Threshold(src *image.Gray, thresh uint8) *image.Gray

	Not(dst, src *image.Gray)
	And(dst, a, b *image.Gray)
	Or(dst, a, b *image.Gray)
	// Subtract вычитание с насыщением
	Subtract(dst, a, b *image.Gray)

	// Erode эрозия прямоугольным ядром 3x3
	Erode(src *image.Gray, iterations int) *image.Gray

	CountNonZero(src *image.Gray) int
	FindNonZero(src *image.Gray) []image.Point

	// ConnectedComponents разметка связных компонент (4- или 8-связность)
	ConnectedComponents(src *image.Gray, diagonal bool) *entity.Components

	// FindContours трассировка контуров с полной иерархией
	FindContours(src *image.Gray) *entity.ContourTree

	// FillContours заливка по правилу чёт-нечет вместе с граничными пикселями контуров
	FillContours(dst *image.Gray, contours []entity.Contour, value uint8)
}
