// Package main provides the entry point for the edit coordination service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdirGamil/animeedit/internal/config"
	"github.com/AdirGamil/animeedit/internal/metrics"
	"github.com/AdirGamil/animeedit/internal/notify"
	"github.com/AdirGamil/animeedit/internal/server"
	"github.com/AdirGamil/animeedit/internal/service"
	"github.com/AdirGamil/animeedit/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	seedPath := flag.String("seed", "", "path to a YAML seed file loaded into the available partition on first start")
	flag.Parse()

	// Initialize logger
	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting edit coordination service")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// The admin token gates the admin API; generate one per process when the
	// deployment does not pin it.
	if cfg.Admin.Token == "" {
		cfg.Admin.Token = uuid.New().String()
		logger.Warn("admin token not configured, generated an ephemeral one")
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("database_enabled", cfg.Database.Enabled),
	)

	// Initialize record store
	var records store.RecordStore
	if cfg.Database.Enabled {
		pgStore, err := store.NewPostgresRecordStore(
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Name,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.MaxConns,
			cfg.Database.MinConns,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		records = pgStore
	} else {
		records = store.NewMemoryRecordStore(logger)
	}
	defer records.Close()

	// Seed the available partition if requested
	if *seedPath != "" {
		seed, err := store.LoadSeedFile(*seedPath)
		if err != nil {
			logger.Fatal("failed to load seed file", zap.Error(err))
		}
		count, err := store.Seed(context.Background(), records, seed, logger)
		if err != nil {
			logger.Fatal("failed to seed record store", zap.Error(err))
		}
		logger.Info("record store seeded", zap.Int("records", count))
	}

	// Initialize metrics
	m := metrics.NewMetrics()
	m.SetHealthStatus(true)

	// Notification hub and coordination tables. The hub is the tables'
	// publisher and replays its latest snapshots to joining clients.
	hub := notify.NewHub(cfg.Websocket.EventQueueDepth, m, logger)
	locks := service.NewLockTable(hub, logger)
	pending := service.NewPendingEditTable(hub, logger)
	hub.OnDisconnect(locks.ReleaseByHolder)

	review := service.NewReviewService(records, locks, pending, logger)

	// Initialize HTTP server
	httpServer := server.NewServer(cfg, records, locks, pending, review, hub, m, logger)
	httpServer.SetupRoutes()

	// Metrics server if enabled
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		return httpServer.Start()
	})
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start()
		})
		logger.Info("metrics server started",
			zap.Int("port", cfg.Metrics.Port),
			zap.String("path", cfg.Metrics.Path),
		)
	}

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-gCtx.Done():
		logger.Error("server error", zap.Error(g.Wait()))
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	m.SetHealthStatus(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	// Stop the hub last so in-flight mutations can still publish.
	stop()
	g.Wait()

	logger.Info("edit coordination service shutdown complete")
}

// initLogger initializes the zap logger.
func initLogger() *zap.Logger {
	// Get log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// Get log format from environment
	logFormat := os.Getenv("LOG_FORMAT")

	var config zap.Config
	if logFormat == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
