package container

import (
	"log/slog"
	"time"

	"layer-inspector/config"
	app "layer-inspector/internal/application"
	"layer-inspector/internal/detection"
	"layer-inspector/internal/domain/port"
	"layer-inspector/internal/infrastructure/layers"
	"layer-inspector/internal/infrastructure/progress"
	"layer-inspector/internal/infrastructure/raster"
	"layer-inspector/internal/infrastructure/storage"
)

// progressInterval как часто трекер пишет промежуточный прогресс.
const progressInterval = 2 * time.Second

type Container struct {
	UserService       *app.UserService
	InspectionService *app.InspectionService
}

func New(cfg *config.Config, logger *slog.Logger) *Container {
	return NewWith(cfg, storage.NewMemoryUserRepository(), raster.Default(), logger)
}

// NewWith собирает сервисы поверх переданного хранилища и растрового бэкенда.
func NewWith(cfg *config.Config, userRepo port.UserRepository, ops port.RasterOps, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}

	engine := detection.NewEngine(ops, detection.WithLogger(logger.With("component", "detection")))
	loader := layers.NewLoader(logger.With("component", "layers"),
		layers.WithLayerHeight(cfg.LayerHeight),
		layers.WithMachineHeight(cfg.MachineHeight))
	newProgress := func() port.Progress {
		return progress.NewTracker(logger.With("component", "progress"), progressInterval)
	}

	userService := app.NewUserService(userRepo)
	inspectionService := app.NewInspectionService(userService, engine, loader, cfg.Detection, newProgress, logger)

	return &Container{
		UserService:       userService,
		InspectionService: inspectionService,
	}
}
