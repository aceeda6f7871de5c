package port

import (
	"image"

	"layer-inspector/internal/domain/entity"
)

// LayerSource индексированный доступ к растрам и метаданным слоёв.
// Ядро только заимствует растры на время задачи и не владеет ими.
type LayerSource interface {
	// LayerCount количество слоёв
	LayerCount() int

	// Layer метаданные слоя, включая его блокировку
	Layer(index int) *entity.Layer

	// LayerImage декодирует растр слоя; каждый вызов возвращает новую копию
	LayerImage(index int) (*image.Gray, error)

	// BoundingRectangle объединённый прямоугольник геометрии всех слоёв
	BoundingRectangle() image.Rectangle

	// MachineHeight высота рабочей зоны принтера, мм (0 если неизвестна)
	MachineHeight() float64

	// PrintHeight высота модели, мм
	PrintHeight() float64
}
