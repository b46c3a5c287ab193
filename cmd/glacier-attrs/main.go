package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	geojsonadapter "github.com/cryodata/glacier-attrs-etl/internal/adapter/geojson"
	httpadapter "github.com/cryodata/glacier-attrs-etl/internal/adapter/http"
	kafkaadapter "github.com/cryodata/glacier-attrs-etl/internal/adapter/kafka"
	postgresadapter "github.com/cryodata/glacier-attrs-etl/internal/adapter/postgres"
	"github.com/cryodata/glacier-attrs-etl/internal/config"
	"github.com/cryodata/glacier-attrs-etl/internal/observability"
	"github.com/cryodata/glacier-attrs-etl/internal/refresh"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		source    refresh.Source
		publisher refresh.Publisher
		pool      *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database pool", "error", err)
			os.Exit(1)
		}
		source = postgresadapter.NewSource(pool, cfg.GlacierTable)
		publisher = postgresadapter.NewPublisher(pool, logger)
		logger.Info("postgres source enabled", "glacier_table", cfg.GlacierTable)
	} else {
		source = geojsonadapter.NewSource(cfg.FixtureDir, cfg.GlacierTable)
		logger.Info("geojson fixture source enabled", "dir", cfg.FixtureDir)
	}

	var notifier refresh.Notifier
	var kafkaNotifier *kafkaadapter.Notifier
	if cfg.KafkaEnabled {
		kafkaNotifier = kafkaadapter.NewNotifier(cfg, logger)
		notifier = kafkaNotifier
		logger.Info("kafka notifications enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka notifications disabled")
	}

	controller := refresh.New(source, publisher, notifier, cfg.JoinSpecs, logger, metrics, clockwork.NewRealClock())

	srv := httpadapter.NewServer(cfg.HTTPAddr, controller, controller, controller, cfg.AdminToken, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Build the first snapshot at startup so readers aren't waiting on an
	// admin trigger after every restart. Failure is logged, not fatal: the
	// service stays up and the next refresh request retries.
	if _, err := controller.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("initial refresh failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}
	if pool != nil {
		pool.Close()
	}

	logger.Info("shutdown complete")
}
