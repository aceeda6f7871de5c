// Package detection поиск дефектов печати по стопке растров слоёв.
package detection

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
)

// defaultCacheFactor слоёв в окне кэша на одну горутину.
const defaultCacheFactor = 10

// Engine движок поиска дефектов. Не хранит состояние между запусками.
type Engine struct {
	ops         port.RasterOps
	logger      *slog.Logger
	cacheFactor int
}

// Option настройка Engine.
type Option func(*Engine)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCacheFactor задаёт число слоёв окна кэша на одну горутину.
func WithCacheFactor(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.cacheFactor = k
		}
	}
}

// NewEngine создаёт движок поверх растровых операций.
func NewEngine(ops port.RasterOps, opts ...Option) *Engine {
	e := &Engine{
		ops:         ops,
		logger:      slog.Default(),
		cacheFactor: defaultCacheFactor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run состояние одного запуска детекции.
type run struct {
	ops         port.RasterOps
	src         port.LayerSource
	opts        entity.DetectionOptions
	parallelism int
	progress    port.Progress
	logger      *slog.Logger
	agg         *issueAggregator
	roi         image.Rectangle

	// заполняются общим проходом, каждый индекс пишет одна задача
	externals [][]entity.Contour
	hollows   [][]entity.HollowContour
}

// Detect находит проблемы во всех слоях источника.
// Отмена ctx не ошибка: возвращается накопленный упорядоченный результат.
// Ошибка возвращается только если не удалось декодировать слой.
func (e *Engine) Detect(ctx context.Context, src port.LayerSource, opts entity.DetectionOptions, ignored *entity.IgnoredIssues, progress port.Progress) (entity.MainIssues, error) {
	started := time.Now()
	r := e.newRun(src, opts, ignored, progress)
	n := src.LayerCount()
	r.logger.Info("detection started", "layers", n, "parallelism", r.parallelism, "roi", r.roi)

	if err := r.detect(ctx, e.cacheFactor); err != nil {
		detectionRuns.WithLabelValues("error").Inc()
		r.logger.Error("detection failed", "error", err)
		return nil, err
	}

	result := r.agg.result()
	elapsed := time.Since(started)
	detectionDuration.WithLabelValues(phaseTotal).Observe(elapsed.Seconds())
	if ctx.Err() != nil {
		detectionRuns.WithLabelValues("cancelled").Inc()
		r.logger.Warn("detection cancelled", "issues", len(result), "elapsed", elapsed)
		return result, nil
	}
	detectionRuns.WithLabelValues("ok").Inc()
	r.logger.Info("detection finished", "issues", len(result), "elapsed", elapsed)
	return result, nil
}

func (e *Engine) newRun(src port.LayerSource, opts entity.DetectionOptions, ignored *entity.IgnoredIssues, progress port.Progress) *run {
	if progress == nil {
		progress = nopProgress{}
	}
	n := src.LayerCount()
	return &run{
		ops:         e.ops,
		src:         src,
		opts:        opts,
		parallelism: resolveParallelism(opts.Parallelism),
		progress:    progress,
		logger:      e.logger.With("run_id", uuid.NewString()),
		agg:         newIssueAggregator(ignored),
		roi:         src.BoundingRectangle(),
		externals:   make([][]entity.Contour, n),
		hollows:     make([][]entity.HollowContour, n),
	}
}

func (r *run) detect(ctx context.Context, cacheFactor int) error {
	n := r.src.LayerCount()
	if n == 0 {
		return nil
	}

	r.detectPrintHeight()
	if r.opts.EmptyLayers {
		for i := 0; i < n; i++ {
			if layer := r.src.Layer(i); layer.IsEmpty {
				r.agg.add(entity.NewLayerIssue(entity.IssueEmptyLayer, layer))
			}
		}
	}

	o := r.opts
	if o.Island.Enabled || o.Overhang.Enabled || o.ResinTrap.Enabled || o.TouchingBound.Enabled {
		started := time.Now()
		r.progress.Reset("Detecting islands, overhangs and touching bounds", n, 0)
		err := forEach(ctx, r.parallelism, 0, n, func(ctx context.Context, i int) error {
			if err := r.detectLayerFeatures(ctx, i); err != nil {
				return err
			}
			layersProcessed.WithLabelValues(phaseFeatures).Inc()
			return nil
		})
		if err != nil {
			return err
		}
		detectionDuration.WithLabelValues(phaseFeatures).Observe(time.Since(started).Seconds())
		r.logger.Debug("layer features done", "elapsed", time.Since(started))
	}
	if ctx.Err() != nil {
		return nil
	}

	rt := o.ResinTrap
	if !rt.Enabled || r.roi.Empty() || rt.StartLayerIndex >= n {
		return nil
	}
	classifier := newResinTrapClassifier(r, r.parallelism*cacheFactor)
	if err := classifier.classify(ctx); err != nil {
		return err
	}
	r.logger.Debug("resin trap classification done")
	return nil
}

// detectPrintHeight отмечает слои выше рабочей зоны принтера.
func (r *run) detectPrintHeight() {
	cfg := r.opts.PrintHeight
	machine := r.src.MachineHeight()
	if !cfg.Enabled || machine <= 0 {
		return
	}
	limit := entity.RoundHeight(machine + cfg.Offset)
	if r.src.PrintHeight() <= limit {
		return
	}
	for i := 0; i < r.src.LayerCount(); i++ {
		if layer := r.src.Layer(i); layer.PositionZ > limit {
			r.agg.add(entity.NewLayerIssue(entity.IssuePrintHeight, layer))
		}
	}
}

type nopProgress struct{}

func (nopProgress) Reset(string, int, int) {}
func (nopProgress) Increment() {}

// Проверка реализации интерфейса
var _ port.Detector = (*Engine)(nil)
