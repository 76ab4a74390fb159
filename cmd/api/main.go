// Command api serves aggregate queries over the harvested indices.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/api"
	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/elastic"
	"github.com/Hkarnen/comp90024-assignment-2/internal/config"
	"github.com/Hkarnen/comp90024-assignment-2/internal/observability"
	"github.com/Hkarnen/comp90024-assignment-2/internal/query"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	es, err := elastic.New(elastic.Config{
		Addresses:          cfg.ESAddresses,
		Username:           cfg.ESUsername,
		Password:           cfg.ESPassword,
		InsecureSkipVerify: cfg.ESInsecureSkipVerify,
	}, logger)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	svc := query.NewService(es, query.Indices{
		Weather:    cfg.WeatherIndex,
		AirQuality: cfg.AirQualityIndex,
		Traffic:    cfg.TrafficIndex,
		Vehicles:   cfg.VehicleIndex,
	}, cfg.LocalTimezone, logger)

	app := api.NewApp(svc, api.Options{
		RequestTimeout: cfg.APIRequestTimeout,
		Metrics:        metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api server starting", "addr", cfg.APIAddr)
		if err := app.Listen(cfg.APIAddr); err != nil {
			logger.Error("api server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
