package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
)

// ErrDetectorNotConfigured сервис собран без детектора или загрузчика.
var ErrDetectorNotConfigured = errors.New("detector is not configured")

type InspectionService struct {
	users       *UserService
	detector    port.Detector
	loader      port.StackLoader
	opts        entity.DetectionOptions
	newProgress func() port.Progress
	logger      *slog.Logger
}

// NewInspectionService создаёт сервис, который управляет проверкой стопок слоёв.
// newProgress вызывается на каждый запуск; nil отключает отчёт о прогрессе.
func NewInspectionService(users *UserService, detector port.Detector, loader port.StackLoader, opts entity.DetectionOptions, newProgress func() port.Progress, logger *slog.Logger) *InspectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InspectionService{
		users:       users,
		detector:    detector,
		loader:      loader,
		opts:        opts,
		newProgress: newProgress,
		logger:      logger,
	}
}

// Options настройки детекции по умолчанию.
func (s *InspectionService) Options() entity.DetectionOptions {
	return s.opts
}

// Inspect запускает детектор по источнику и собирает отчёт.
func (s *InspectionService) Inspect(ctx context.Context, src port.LayerSource, opts entity.DetectionOptions, ignored *entity.IgnoredIssues) (*entity.InspectionReport, error) {
	if s.detector == nil {
		return nil, ErrDetectorNotConfigured
	}

	var progress port.Progress
	if s.newProgress != nil {
		progress = s.newProgress()
	}

	started := time.Now()
	issues, err := s.detector.Detect(ctx, src, opts, ignored, progress)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	return &entity.InspectionReport{
		ID:         uuid.NewString(),
		CreatedAt:  started,
		LayerCount: src.LayerCount(),
		Duration:   time.Since(started),
		Issues:     issues,
	}, nil
}

// InspectDirectory проверяет каталог с изображениями слоёв.
func (s *InspectionService) InspectDirectory(ctx context.Context, dir string, ignored *entity.IgnoredIssues) (*entity.InspectionReport, error) {
	if s.loader == nil {
		return nil, ErrDetectorNotConfigured
	}
	src, err := s.loader.FromDirectory(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	return s.Inspect(ctx, src, s.opts, ignored)
}

// InspectArchive проверяет zip-архив пользователя с учётом его списка игнорируемых
// и запоминает отчёт. При ошибке или отмене ctx пользователь возвращается в главное меню,
// а последний отчёт не меняется.
func (s *InspectionService) InspectArchive(ctx context.Context, userID, chatID int64, data []byte) (*entity.InspectionReport, error) {
	if s.loader == nil {
		return nil, ErrDetectorNotConfigured
	}

	user, err := s.users.SetState(ctx, userID, chatID, entity.StateProcessing)
	if err != nil {
		return nil, err
	}

	report, err := s.inspectArchive(ctx, data, user.Ignored)
	if err == nil && ctx.Err() != nil {
		// частичный отчёт пользователь не увидит, последним его не запоминаем
		err = fmt.Errorf("inspection cancelled: %w", ctx.Err())
	}
	if err != nil {
		if _, stateErr := s.users.Cancel(context.WithoutCancel(ctx), userID, chatID); stateErr != nil {
			s.logger.Warn("reset user state", "user_id", userID, "error", stateErr)
		}
		return nil, err
	}

	if _, err := s.users.RememberReport(context.WithoutCancel(ctx), userID, chatID, report); err != nil {
		return nil, err
	}
	s.logger.Info("archive inspected",
		"user_id", userID, "report_id", report.ID, "layers", report.LayerCount,
		"issues", len(report.Issues), "duration", report.Duration)
	return report, nil
}

func (s *InspectionService) inspectArchive(ctx context.Context, data []byte, ignored *entity.IgnoredIssues) (*entity.InspectionReport, error) {
	src, err := s.loader.FromArchive(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}
	return s.Inspect(ctx, src, s.opts, ignored)
}
