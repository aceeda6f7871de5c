package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"layer-inspector/internal/domain/entity"
)

type Config struct {
	TelegramToken string
	LogLevel      string  `validate:"oneof=debug info warn error"`
	LayerHeight   float64 `validate:"gt=0"`
	MachineHeight float64 `validate:"gte=0"`
	ProfilePath   string
	MetricsAddr   string `validate:"omitempty,hostname_port"`

	Detection entity.DetectionOptions
}

var validate = validator.New()

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LayerHeight:   0.05,
		ProfilePath:   os.Getenv("DETECTION_PROFILE"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		Detection:     entity.DefaultDetectionOptions(),
	}

	var err error
	if cfg.LayerHeight, err = envFloat("LAYER_HEIGHT", cfg.LayerHeight); err != nil {
		return nil, err
	}
	if cfg.MachineHeight, err = envFloat("MACHINE_HEIGHT", 0); err != nil {
		return nil, err
	}

	if cfg.ProfilePath != "" {
		if cfg.Detection, err = LoadProfile(cfg.ProfilePath, cfg.Detection); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("PARALLELISM"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PARALLELISM: %w", err)
		}
		cfg.Detection.Parallelism = p
	}
	cfg.Detection.Parallelism = CapParallelism(cfg.Detection.Parallelism)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadProfile накладывает YAML-профиль на base: заданные в файле ключи заменяют значения base.
func LoadProfile(path string, base entity.DetectionOptions) (entity.DetectionOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read profile: %w", err)
	}
	opts := base
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return base, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return opts, nil
}

// Validate проверяет диапазоны значений. Детектор сам настройки не проверяет.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CapParallelism: <=0 автоматически, иначе не больше числа ядер.
func CapParallelism(p int) int {
	if p <= 0 {
		return 0
	}
	return min(p, runtime.NumCPU())
}

// SlogLevel уровень журнала для slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
