package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/bom"
	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/elastic"
	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/epa"
	kafkaadapter "github.com/Hkarnen/comp90024-assignment-2/internal/adapter/kafka"
	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/upstream"
	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/vicroads"
	"github.com/Hkarnen/comp90024-assignment-2/internal/config"
	"github.com/Hkarnen/comp90024-assignment-2/internal/harvest"
	"github.com/Hkarnen/comp90024-assignment-2/internal/observability"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

// app holds the wired harvester and whatever must be closed with it.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	harvester *harvest.Harvester
	feed      *kafkaadapter.Writer
}

// setup loads configuration and wires the harvester. A dry run harvests into
// memory and publishes nothing.
func setup(dryRun bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	a := &app{cfg: cfg, logger: logger, metrics: metrics}

	var st store.Store
	if dryRun {
		st = store.NewMemory()
		logger.Info("dry run: documents are kept in memory")
	} else {
		es, err := elastic.New(elastic.Config{
			Addresses:          cfg.ESAddresses,
			Username:           cfg.ESUsername,
			Password:           cfg.ESPassword,
			InsecureSkipVerify: cfg.ESInsecureSkipVerify,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create store: %w", err)
		}
		st = es
	}

	opts := harvest.Options{
		Store:      st,
		Weather:    bomClient(cfg, metrics, logger),
		AirQuality: epaClient(cfg, metrics, logger),
		Traffic:    trafficClient(cfg, metrics, logger),
		Indices: harvest.Indices{
			Weather:    cfg.WeatherIndex,
			AirQuality: cfg.AirQualityIndex,
			Traffic:    cfg.TrafficIndex,
		},
		Workers: cfg.HarvestWorkers,
		Metrics: metrics,
	}

	if cfg.FeedEnabled() && !dryRun {
		a.feed = kafkaadapter.NewWriter(kafkaadapter.WriterConfig{
			Brokers: cfg.FeedBrokers,
			Topic:   cfg.FeedTopic,
		}, logger)
		opts.Publisher = a.feed
		logger.Info("observation feed enabled", "brokers", cfg.FeedBrokers, "topic", cfg.FeedTopic)
	}

	a.harvester = harvest.New(opts, logger)
	return a, nil
}

func (a *app) close() {
	if a.feed == nil {
		return
	}
	if err := a.feed.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}
}

func bomClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *bom.Client {
	headers := http.Header{}
	headers.Set("User-Agent", cfg.BOMUserAgent)

	fetcher := upstream.New(upstream.Options{
		Name:    "bom",
		Client:  &http.Client{Timeout: cfg.UpstreamTimeout},
		Headers: headers,
		Metrics: metrics,
	}, logger)

	return bom.NewClient(bom.Config{
		IndexURL:           cfg.BOMIndexURL,
		ObservationBaseURL: cfg.BOMObservationBaseURL,
		StationsURL:        cfg.BOMStationsURL,
	}, fetcher, logger)
}

func epaClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *epa.Client {
	headers := http.Header{}
	headers.Set("X-API-Key", cfg.EPAAPIKey)
	headers.Set("User-Agent", cfg.EPAUserAgent)

	fetcher := upstream.New(upstream.Options{
		Name:    "epa",
		Client:  &http.Client{Timeout: cfg.UpstreamTimeout},
		Headers: headers,
		Retry: upstream.RetryPolicy{
			MaxAttempts: cfg.EPAMaxAttempts,
			Delay:       cfg.EPARetryDelay,
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.EPARequestsPerSecond), 1),
		Metrics: metrics,
	}, logger)

	return epa.NewClient(cfg.EPABaseURL, fetcher, logger)
}

func trafficClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *vicroads.Client {
	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", cfg.TrafficAPIKey)
	headers.Set("Cache-Control", "no-cache")

	fetcher := upstream.New(upstream.Options{
		Name:    "vicroads",
		Client:  &http.Client{Timeout: cfg.UpstreamTimeout},
		Headers: headers,
		Metrics: metrics,
	}, logger)

	return vicroads.NewClient(cfg.TrafficURL, fetcher)
}
