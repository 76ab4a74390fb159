// Package harvest runs fetch, normalize and write passes over the telemetry
// sources and records their outcome.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/observability"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

// WeatherClient lists station products and fetches their observations.
type WeatherClient interface {
	StationURLs(ctx context.Context) ([]string, error)
	Observations(ctx context.Context, url string) ([]domain.WeatherRecord, error)
	StationTable(ctx context.Context) (domain.StationTable, error)
}

// AirQualityClient lists monitoring sites and fetches each site's latest
// complete reading. LatestReading returns nil when the site has none.
type AirQualityClient interface {
	Sites(ctx context.Context) ([]domain.Site, error)
	LatestReading(ctx context.Context, site domain.Site) (*domain.AirQualityRecord, error)
}

// TrafficClient fetches the whole freeway feed in one call.
type TrafficClient interface {
	Features(ctx context.Context) ([]domain.TrafficFeature, error)
}

// Publisher forwards newly written documents to the observation feed.
type Publisher interface {
	Publish(ctx context.Context, source domain.Source, docs []domain.Document) error
}

// Indices names the store index of each source.
type Indices struct {
	Weather    string
	AirQuality string
	Traffic    string
}

// Options wires a Harvester. Source clients may be nil when the process
// never runs that source. Publisher is optional.
type Options struct {
	Store      store.Store
	Weather    WeatherClient
	AirQuality AirQualityClient
	Traffic    TrafficClient
	Publisher  Publisher
	Indices    Indices
	Workers    int
	Metrics    *observability.Metrics
}

// Harvester runs harvest passes. Passes for different sources may run
// concurrently.
type Harvester struct {
	store      store.Store
	writer     *IndexWriter
	weather    WeatherClient
	airQuality AirQualityClient
	traffic    TrafficClient
	publisher  Publisher
	indices    Indices
	workers    int
	metrics    *observability.Metrics
	logger     *slog.Logger

	ready   atomic.Bool
	mu      sync.RWMutex
	lastRun map[domain.Source]Summary
}

// New creates a Harvester.
func New(opts Options, logger *slog.Logger) *Harvester {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Harvester{
		store:      opts.Store,
		writer:     NewIndexWriter(opts.Store),
		weather:    opts.Weather,
		airQuality: opts.AirQuality,
		traffic:    opts.Traffic,
		publisher:  opts.Publisher,
		indices:    opts.Indices,
		workers:    workers,
		metrics:    metrics,
		logger:     logger,
		lastRun:    make(map[domain.Source]Summary),
	}
}

// CheckReadiness returns nil once any harvest pass has completed.
func (h *Harvester) CheckReadiness(_ context.Context) error {
	if !h.ready.Load() {
		return errors.New("no harvest pass has completed yet")
	}
	return nil
}

// LastRuns returns the most recent summary of each source that has run, in
// source order.
func (h *Harvester) LastRuns() []Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Summary, 0, len(h.lastRun))
	for _, src := range domain.Sources {
		if s, ok := h.lastRun[src]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Run performs one pass over src.
func (h *Harvester) Run(ctx context.Context, src domain.Source) (*Summary, error) {
	switch src {
	case domain.SourceWeather:
		return h.RunWeather(ctx)
	case domain.SourceAirQuality:
		return h.RunAirQuality(ctx)
	case domain.SourceTraffic:
		return h.RunTraffic(ctx)
	}
	return nil, fmt.Errorf("unknown source %q", src)
}

// RunAll runs every source in turn. A failed source does not stop the
// others; the returned error joins every failure.
func (h *Harvester) RunAll(ctx context.Context) ([]*Summary, error) {
	var (
		sums []*Summary
		errs []error
	)
	for _, src := range domain.Sources {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		sum, err := h.Run(ctx, src)
		if sum != nil {
			sums = append(sums, sum)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
		}
	}
	return sums, errors.Join(errs...)
}

// RunWeather harvests every station product listed on the observation index.
// A failed station-table fetch leaves documents with coarse coordinates only.
func (h *Harvester) RunWeather(ctx context.Context) (*Summary, error) {
	if h.weather == nil {
		return nil, errors.New("weather client not configured")
	}

	stations, err := h.weather.StationTable(ctx)
	if err != nil {
		h.logger.Warn("station table unavailable, using coarse coordinates", "source", domain.SourceWeather, "error", err)
		stations = domain.StationTable{}
	}

	job := Job[domain.WeatherRecord]{
		Source: domain.SourceWeather,
		Index:  h.indices.Weather,
		Enumerate: func(ctx context.Context) ([]Unit[domain.WeatherRecord], error) {
			urls, err := h.weather.StationURLs(ctx)
			if err != nil {
				return nil, err
			}
			units := make([]Unit[domain.WeatherRecord], len(urls))
			for i, url := range urls {
				units[i] = Unit[domain.WeatherRecord]{
					ID: url,
					Fetch: func(ctx context.Context) ([]domain.WeatherRecord, error) {
						return h.weather.Observations(ctx, url)
					},
				}
			}
			return units, nil
		},
		Normalize: func(rec domain.WeatherRecord) (domain.Document, error) {
			return domain.NormalizeWeather(rec, stations)
		},
	}
	return h.execute(ctx, job.Source, func(ctx context.Context) (*Summary, error) {
		return run(ctx, h, job)
	})
}

// RunAirQuality harvests the latest complete PM2.5 reading of every site.
func (h *Harvester) RunAirQuality(ctx context.Context) (*Summary, error) {
	if h.airQuality == nil {
		return nil, errors.New("air quality client not configured")
	}

	job := Job[domain.AirQualityRecord]{
		Source: domain.SourceAirQuality,
		Index:  h.indices.AirQuality,
		Enumerate: func(ctx context.Context) ([]Unit[domain.AirQualityRecord], error) {
			sites, err := h.airQuality.Sites(ctx)
			if err != nil {
				return nil, err
			}
			units := make([]Unit[domain.AirQualityRecord], len(sites))
			for i, site := range sites {
				units[i] = Unit[domain.AirQualityRecord]{
					ID: site.ID,
					Fetch: func(ctx context.Context) ([]domain.AirQualityRecord, error) {
						rec, err := h.airQuality.LatestReading(ctx, site)
						if err != nil || rec == nil {
							return nil, err
						}
						return []domain.AirQualityRecord{*rec}, nil
					},
				}
			}
			return units, nil
		},
		Normalize: func(rec domain.AirQualityRecord) (domain.Document, error) {
			return domain.NormalizeAirQuality(rec)
		},
	}
	return h.execute(ctx, job.Source, func(ctx context.Context) (*Summary, error) {
		return run(ctx, h, job)
	})
}

// RunTraffic harvests the freeway feed. The feed is a single request, so a
// failed fetch fails the pass rather than skipping a unit.
func (h *Harvester) RunTraffic(ctx context.Context) (*Summary, error) {
	if h.traffic == nil {
		return nil, errors.New("traffic client not configured")
	}

	job := Job[domain.TrafficFeature]{
		Source: domain.SourceTraffic,
		Index:  h.indices.Traffic,
		Enumerate: func(ctx context.Context) ([]Unit[domain.TrafficFeature], error) {
			features, err := h.traffic.Features(ctx)
			if err != nil {
				return nil, err
			}
			units := make([]Unit[domain.TrafficFeature], len(features))
			for i, f := range features {
				units[i] = Unit[domain.TrafficFeature]{
					ID: string(f.Properties.ID),
					Fetch: func(context.Context) ([]domain.TrafficFeature, error) {
						return []domain.TrafficFeature{f}, nil
					},
				}
			}
			return units, nil
		},
		Normalize: func(f domain.TrafficFeature) (domain.Document, error) {
			return domain.NormalizeTraffic(f)
		},
	}
	return h.execute(ctx, job.Source, func(ctx context.Context) (*Summary, error) {
		return run(ctx, h, job)
	})
}

// execute wraps a pass with metrics, logging, feed publishing and the
// last-run record.
func (h *Harvester) execute(ctx context.Context, src domain.Source, pass func(context.Context) (*Summary, error)) (*Summary, error) {
	label := string(src)
	start := time.Now()
	h.metrics.HarvestInProgress.WithLabelValues(label).Set(1)
	defer h.metrics.HarvestInProgress.WithLabelValues(label).Set(0)

	sum, err := pass(ctx)
	sum.FinishedAt = domain.Now()
	h.metrics.HarvestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		sum.Error = err.Error()
		h.metrics.HarvestRuns.WithLabelValues(label, "failed").Inc()
		h.logger.Error("harvest failed", "source", src, "error", err,
			"written", sum.Written, "already_present", sum.AlreadyPresent)
		h.record(*sum)
		return sum, err
	}

	h.metrics.HarvestRuns.WithLabelValues(label, "success").Inc()
	h.logger.Info("harvest complete",
		"source", src,
		"units", sum.Units,
		"records", sum.Records,
		"written", sum.Written,
		"already_present", sum.AlreadyPresent,
		"skipped_fetch", sum.SkippedFetch,
		"failed_normalize", sum.FailedNormalize,
		"failed_write", sum.FailedWrite,
		"duration", time.Since(start),
	)

	h.publish(ctx, src, sum.NewDocuments)
	h.record(*sum)
	h.ready.Store(true)
	return sum, nil
}

// publish forwards new documents to the feed. A feed failure is logged and
// never fails the pass.
func (h *Harvester) publish(ctx context.Context, src domain.Source, docs []domain.Document) {
	if h.publisher == nil || len(docs) == 0 {
		return
	}
	if err := h.publisher.Publish(ctx, src, docs); err != nil {
		h.logger.Warn("feed publish failed", "source", src, "documents", len(docs), "error", err)
		return
	}
	h.metrics.FeedPublished.WithLabelValues(string(src)).Add(float64(len(docs)))
}

func (h *Harvester) record(sum Summary) {
	sum.NewDocuments = nil
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRun[sum.Source] = sum
}
