package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/Hkarnen/comp90024-assignment-2/internal/adapter/http"
	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled harvests and the ops server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a)
		},
	}
}

// serve runs until ctx is cancelled by a signal.
func serve(ctx context.Context, a *app) error {
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.harvester, a.logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(a.harvester, map[domain.Source]time.Duration{
		domain.SourceWeather:    a.cfg.WeatherInterval,
		domain.SourceAirQuality: a.cfg.AirQualityInterval,
		domain.SourceTraffic:    a.cfg.TrafficInterval,
	}, a.logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
