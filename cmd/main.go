package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"layer-inspector/config"
	telegram "layer-inspector/internal/api"
	"layer-inspector/internal/container"
	"layer-inspector/internal/domain/entity"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("Failed: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "layer-inspector",
		Short:         "Detect printability issues in stacks of 3D-print layer images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScanCmd(), newBotCmd())
	return root
}

type scanFlags struct {
	format        string
	profile       string
	layerHeight   float64
	machineHeight float64
	parallelism   int
	metricsAddr   string
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan DIR",
		Short: "Scan a directory of layer images and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}
			logger := newLogger(cfg)
			serveMetrics(cmd.Context(), cfg.MetricsAddr, logger)

			c := container.New(cfg, logger)
			report, err := c.InspectionService.InspectDirectory(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, f.format)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.format, "format", "text", "output format: text or json")
	flags.StringVar(&f.profile, "profile", "", "YAML detection profile")
	flags.Float64Var(&f.layerHeight, "layer-height", 0, "layer height in mm")
	flags.Float64Var(&f.machineHeight, "machine-height", 0, "printer build height in mm, 0 disables the print height check")
	flags.IntVar(&f.parallelism, "parallelism", 0, "worker count, 0 means one per CPU")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while scanning")
	return cmd
}

// apply накладывает явно заданные флаги поверх конфигурации из окружения.
func (f *scanFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if f.format != "text" && f.format != "json" {
		return fmt.Errorf("unknown format %q", f.format)
	}
	flags := cmd.Flags()
	if flags.Changed("profile") {
		opts, err := config.LoadProfile(f.profile, entity.DefaultDetectionOptions())
		if err != nil {
			return err
		}
		opts.Parallelism = cfg.Detection.Parallelism
		cfg.Detection = opts
	}
	if flags.Changed("layer-height") {
		cfg.LayerHeight = f.layerHeight
	}
	if flags.Changed("machine-height") {
		cfg.MachineHeight = f.machineHeight
	}
	if flags.Changed("parallelism") {
		cfg.Detection.Parallelism = config.CapParallelism(f.parallelism)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	return config.Validate(cfg)
}

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.TelegramToken == "" {
				return errors.New("TELEGRAM_TOKEN is required")
			}
			logger := newLogger(cfg)
			serveMetrics(cmd.Context(), cfg.MetricsAddr, logger)

			// Собираем сервисы приложения
			appContainer := container.New(cfg, logger)

			// Создаём бота
			bot, err := telegram.NewBot(cfg.TelegramToken, appContainer.UserService, appContainer.InspectionService, logger.With("component", "bot"))
			if err != nil {
				return fmt.Errorf("create bot: %w", err)
			}

			logger.Info("bot is running")
			return bot.Run(cmd.Context())
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}

// serveMetrics поднимает /metrics до отмены ctx; пустой адрес ничего не делает.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", "addr", addr)
}

func writeReport(w io.Writer, report *entity.InspectionReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := io.WriteString(w, report.Summary(0))
	return err
}
