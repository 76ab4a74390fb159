package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

// Indices names the store index of each source, plus the vehicle register
// loaded outside the harvesters.
type Indices struct {
	Weather    string
	AirQuality string
	Traffic    string
	Vehicles   string
}

// Service answers read requests against the document store. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	store   store.Store
	indices Indices
	loc     *time.Location
	logger  *slog.Logger
}

// NewService creates a Service. loc is the time zone callers' year, month,
// day and hour refer to.
func NewService(s store.Store, indices Indices, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: s, indices: indices, loc: loc, logger: logger}
}

// WeatherStations lists distinct weather stations.
func (s *Service) WeatherStations(ctx context.Context) (WeatherStationListing, error) {
	resp, err := s.store.Search(ctx, s.indices.Weather, BuildWeatherStations())
	if err != nil {
		return WeatherStationListing{}, fmt.Errorf("list weather stations: %w", err)
	}
	listing, err := decodeWeatherStations(resp)
	if err != nil {
		return WeatherStationListing{}, err
	}
	if listing.HasDuplicates() {
		s.logger.Warn("weather stations share a WMO code", "codes", len(listing.Duplicates))
	}
	return listing, nil
}

// AirQualityStations lists distinct monitoring sites.
func (s *Service) AirQualityStations(ctx context.Context) (AirQualityStationListing, error) {
	resp, err := s.store.Search(ctx, s.indices.AirQuality, BuildAirQualityStations())
	if err != nil {
		return AirQualityStationListing{}, fmt.Errorf("list air quality stations: %w", err)
	}
	return decodeAirQualityStations(resp)
}

// Freeways lists distinct freeways keyed by route key.
func (s *Service) Freeways(ctx context.Context) (FreewayListing, error) {
	resp, err := s.store.Search(ctx, s.indices.Traffic, BuildFreeways())
	if err != nil {
		return FreewayListing{}, fmt.Errorf("list freeways: %w", err)
	}
	return decodeFreeways(resp)
}

// Vehicles returns the vehicle register keyed by SA2 code.
func (s *Service) Vehicles(ctx context.Context) (VehicleRegister, error) {
	resp, err := s.store.Search(ctx, s.indices.Vehicles, BuildVehicleRegister())
	if err != nil {
		return nil, fmt.Errorf("read vehicle register: %w", err)
	}
	return decodeVehicleRegister(resp)
}

// WeatherAggregate returns temperature and wind metrics for one station.
func (s *Service) WeatherAggregate(ctx context.Context, wmo int, tf *domain.TimeFilter) (Aggregate, error) {
	return s.aggregate(ctx, s.indices.Weather, WeatherProfile, wmo, tf)
}

// AirQualityAggregate returns PM2.5 metrics for one site.
func (s *Service) AirQualityAggregate(ctx context.Context, siteID string, tf *domain.TimeFilter) (Aggregate, error) {
	return s.aggregate(ctx, s.indices.AirQuality, AirQualityProfile, siteID, tf)
}

// FreewayAggregate returns the most congested segment of a freeway. name may
// be either the display name or its route key.
func (s *Service) FreewayAggregate(ctx context.Context, name string, tf *domain.TimeFilter) (FreewayCongestion, error) {
	var win *domain.Window
	if tf != nil {
		if err := tf.ValidateIn(s.loc); err != nil {
			return FreewayCongestion{}, err
		}
		q, _ := TrafficProfile.Window(*tf, s.loc)
		win = &q
	}

	resp, err := s.store.Search(ctx, s.indices.Traffic, BuildFreewayAggregate(domain.FreewayName(name), win))
	if err != nil {
		return FreewayCongestion{}, fmt.Errorf("aggregate freeway %q: %w", name, err)
	}
	return decodeFreewayCongestion(resp)
}

func (s *Service) aggregate(ctx context.Context, index string, p Profile, id any, tf *domain.TimeFilter) (Aggregate, error) {
	var (
		win  *domain.Window
		echo *domain.DateFilter
	)
	if tf != nil {
		if err := tf.ValidateIn(s.loc); err != nil {
			return Aggregate{}, err
		}
		q, e := p.Window(*tf, s.loc)
		df := e.DateFilter()
		win, echo = &q, &df
	}

	resp, err := s.store.Search(ctx, index, BuildAggregate(p, id, win))
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregate %s %v: %w", p.Source, id, err)
	}
	metrics, err := decodeMetrics(resp, p.Metrics)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Metrics: metrics, DateFilter: echo}, nil
}
