package port

import (
	"context"

	"layer-inspector/internal/domain/entity"
)

// Detector движок поиска дефектов печати
type Detector interface {
	// Detect анализирует все слои источника и возвращает упорядоченный список групп проблем
	Detect(ctx context.Context, src LayerSource, opts entity.DetectionOptions, ignored *entity.IgnoredIssues, progress Progress) (entity.MainIssues, error)
}

// StackLoader собирает источник слоёв из загруженных данных
type StackLoader interface {
	// FromArchive читает zip-архив с изображениями слоёв
	FromArchive(ctx context.Context, data []byte) (LayerSource, error)

	// FromDirectory читает каталог с изображениями слоёв
	FromDirectory(ctx context.Context, dir string) (LayerSource, error)
}
