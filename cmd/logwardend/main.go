// Command logwardend runs the log ingestion, template-mining, and
// anomaly-detection service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/loganix/logwarden/internal/anomaly"
	"github.com/loganix/logwarden/internal/audit"
	"github.com/loganix/logwarden/internal/cache"
	"github.com/loganix/logwarden/internal/config"
	"github.com/loganix/logwarden/internal/health"
	"github.com/loganix/logwarden/internal/httpapi"
	"github.com/loganix/logwarden/internal/ingest"
	"github.com/loganix/logwarden/internal/metrics"
	"github.com/loganix/logwarden/internal/miner"
	"github.com/loganix/logwarden/internal/storage"
	"github.com/loganix/logwarden/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "logwardend:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting logwardend",
		zap.String("environment", cfg.Environment),
		zap.String("bind_addr", cfg.BindAddr),
	)

	shutdownOTel, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "logwardend",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store := storage.New()

	m := miner.New(miner.Config{
		Depth:       cfg.MinerDepth,
		SimTh:       cfg.MinerSimThresh,
		MaxChildren: cfg.MinerMaxChildren,
		MaxClusters: cfg.MinerMaxClusters,
		QueueSize:   cfg.MinerQueueSize,
	})
	defer m.Close()

	detectCfg := anomaly.DefaultConfig()
	if cfg.DetectWindow > 0 {
		detectCfg.DetectWindow = cfg.DetectWindow
	}
	detector := anomaly.New(store, detectCfg, logger)
	met := metrics.New(logger)
	auditLogger := audit.NewLogger(logger, cfg.EnableAuditLog)
	cacheMgr := cache.NewManager(cache.DefaultConfig())

	svc := ingest.New(cfg, store, m, detector, met, auditLogger, cacheMgr, logger)

	checker := health.New(store, detector, cfg.DetectInterval, logger)
	healthServer := health.NewServer(checker, logger, cfg.HealthPort, cfg.HealthBindAddr, cfg.MetricsEndpoint)
	apiServer := httpapi.NewServer(svc, checker, met, logger, cfg.BindAddr, cfg.MaxUploadSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if err := healthServer.Start(); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	stopDetection := runDetectionLoop(ctx, svc, logger, cfg.DetectInterval)
	healthServer.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error, shutting down", zap.Error(err))
	}

	stop() // cancel ctx so the detection loop and any in-flight requests observe shutdown
	healthServer.SetReady(false)
	stopDetection()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown error", zap.Error(err))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", zap.Error(err))
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn("otel shutdown error", zap.Error(err))
	}

	logger.Info("logwardend stopped")
	return nil
}

// runDetectionLoop runs the anomaly detector on cfg.DetectInterval until
// ctx is cancelled. The returned function does not stop the loop; it blocks
// until the loop's goroutine has exited.
func runDetectionLoop(ctx context.Context, svc *ingest.Service, logger *zap.Logger, interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cycleCtx, cancel := context.WithTimeout(ctx, interval)
				anomalies, err := svc.RunDetectionCycle(cycleCtx)
				cancel()
				if err != nil {
					logger.Warn("detection cycle completed with errors", zap.Error(err), zap.Int("anomalies", len(anomalies)))
				} else if len(anomalies) > 0 {
					logger.Info("detection cycle found anomalies", zap.Int("count", len(anomalies)))
				}
			}
		}
	}()
	return func() { <-done }
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.LogLevel {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if cfg.LogFormat == "console" {
		zapCfg.Encoding = "console"
	}

	return zapCfg.Build()
}
