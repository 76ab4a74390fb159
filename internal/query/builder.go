// Package query builds the search bodies behind the read API and decodes
// their aggregations into response types.
package query

import (
	"time"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

// CatalogPageSize bounds every catalog listing to one page of groups.
const CatalogPageSize = 100

// VehicleRegisterPageSize bounds the vehicle register read.
const VehicleRegisterPageSize = 1000

// Metric is one single-value aggregation over a numeric field.
type Metric struct {
	Name  string
	Op    string // avg, max or min
	Field string
}

// RangeSpec describes how a window is applied to a source's time field.
type RangeSpec struct {
	Field string
	// Layout formats the bounds.
	Layout string
	// Format, when set, is passed to the store as the bound's date format.
	Format string
	// UTC converts the local window to UTC before formatting.
	UTC bool
}

// Profile is everything the builder needs to aggregate one source.
type Profile struct {
	Source        domain.Source
	IdentityField string
	Range         RangeSpec
	Metrics       []Metric
}

var (
	// WeatherProfile stores observation times on the local clock.
	WeatherProfile = Profile{
		Source:        domain.SourceWeather,
		IdentityField: "wmo",
		Range:         RangeSpec{Field: "local_date_time_full", Layout: "20060102150405", Format: "yyyyMMddHHmmss"},
		Metrics: []Metric{
			{Name: "avg_temperature", Op: "avg", Field: "air_temp"},
			{Name: "max_temperature", Op: "max", Field: "air_temp"},
			{Name: "min_temperature", Op: "min", Field: "air_temp"},
			{Name: "avg_wind_speed_kmh", Op: "avg", Field: "wind_spd_kmh"},
			{Name: "max_wind_speed_kmh", Op: "max", Field: "wind_spd_kmh"},
			{Name: "min_wind_speed_kmh", Op: "min", Field: "wind_spd_kmh"},
		},
	}

	// AirQualityProfile stores reading windows in UTC.
	AirQualityProfile = Profile{
		Source:        domain.SourceAirQuality,
		IdentityField: "site_id.keyword",
		Range:         RangeSpec{Field: "since", Layout: time.RFC3339, UTC: true},
		Metrics: []Metric{
			{Name: "avg_pm25", Op: "avg", Field: "averageValue"},
			{Name: "max_pm25", Op: "max", Field: "averageValue"},
			{Name: "min_pm25", Op: "min", Field: "averageValue"},
		},
	}

	// TrafficProfile stores published times on the local clock.
	TrafficProfile = Profile{
		Source:        domain.SourceTraffic,
		IdentityField: "freewayName.keyword",
		Range:         RangeSpec{Field: "publishedTime", Layout: "2006-01-02T15:04:05", Format: "yyyy-MM-dd'T'HH:mm:ss"},
	}
)

// Window resolves tf against loc the way the profile's storage expects.
// The second window is the one to echo to the caller, in loc.
func (p Profile) Window(tf domain.TimeFilter, loc *time.Location) (query, echo domain.Window) {
	local := tf.Window(loc)
	if p.Range.UTC {
		utc := local.UTC()
		return utc, utc.In(loc)
	}
	return local, local
}

// BuildAggregate returns the search body for the profile's metrics over the
// documents of one station, optionally narrowed to win.
func BuildAggregate(p Profile, id any, win *domain.Window) map[string]any {
	aggs := make(map[string]any, len(p.Metrics))
	for _, m := range p.Metrics {
		aggs[m.Name] = map[string]any{m.Op: map[string]any{"field": m.Field}}
	}
	return map[string]any{
		"size":  0,
		"query": filterQuery(p, id, win),
		"aggs":  aggs,
	}
}

// BuildFreewayAggregate returns the search body for a freeway's maximum
// congestion and the single most congested segment with one representative
// document.
func BuildFreewayAggregate(freeway string, win *domain.Window) map[string]any {
	maxCongestion := map[string]any{"max": map[string]any{"field": "congestionIndex"}}
	return map[string]any{
		"size":  0,
		"query": filterQuery(TrafficProfile, freeway, win),
		"aggs": map[string]any{
			"max_congestion": maxCongestion,
			"top_segments": map[string]any{
				"terms": map[string]any{
					"field": "congestionIndex",
					"size":  1,
					"order": map[string]any{"max_congestion": "desc"},
				},
				"aggs": map[string]any{
					"max_congestion": maxCongestion,
					"top_hit": map[string]any{
						"top_hits": map[string]any{
							"size": 1,
							"_source": map[string]any{
								"includes": []string{"segmentName", "actualTravelTime", "geometry"},
							},
						},
					},
				},
			},
		},
	}
}

// BuildWeatherStations groups weather documents by station identity.
// Precise coordinates are absent on unenriched documents, so those sources
// keep a bucket for missing values.
func BuildWeatherStations() map[string]any {
	return compositeQuery([]map[string]any{
		termsSource("wmo", "wmo", false),
		termsSource("name", "name.keyword", false),
		termsSource("lat", "lat", true),
		termsSource("lon", "lon", true),
		termsSource("precise_lat", "precise_lat", true),
		termsSource("precise_lon", "precise_lon", true),
	})
}

// BuildAirQualityStations groups air-quality documents by site identity.
func BuildAirQualityStations() map[string]any {
	return compositeQuery([]map[string]any{
		termsSource("site_id", "site_id.keyword", false),
		termsSource("site_name", "site_name.keyword", false),
		termsSource("latitude", "latitude", true),
		termsSource("longitude", "longitude", true),
	})
}

// BuildFreeways lists the distinct freeway names with document counts.
func BuildFreeways() map[string]any {
	return map[string]any{
		"size": 0,
		"aggs": map[string]any{
			freewaysAgg: map[string]any{
				"terms": map[string]any{"field": "freewayName.keyword", "size": CatalogPageSize},
			},
		},
	}
}

// BuildVehicleRegister reads the whole vehicle register. The register has
// one row per SA2 region, well under one page.
func BuildVehicleRegister() map[string]any {
	return map[string]any{
		"size":  VehicleRegisterPageSize,
		"query": map[string]any{"match_all": map[string]any{}},
	}
}

const (
	stationsAgg = "stations"
	freewaysAgg = "unique_freewayNames"
)

func compositeQuery(sources []map[string]any) map[string]any {
	return map[string]any{
		"size":    0,
		"_source": false,
		"aggs": map[string]any{
			stationsAgg: map[string]any{
				"composite": map[string]any{
					"size":    CatalogPageSize,
					"sources": sources,
				},
			},
		},
	}
}

func termsSource(name, field string, missingBucket bool) map[string]any {
	terms := map[string]any{"field": field}
	if missingBucket {
		terms["missing_bucket"] = true
	}
	return map[string]any{name: map[string]any{"terms": terms}}
}

func filterQuery(p Profile, id any, win *domain.Window) map[string]any {
	filters := []any{
		map[string]any{"term": map[string]any{p.IdentityField: map[string]any{"value": id}}},
	}
	if win != nil {
		filters = append(filters, rangeFilter(p.Range, *win))
	}
	return map[string]any{"bool": map[string]any{"filter": filters}}
}

func rangeFilter(r RangeSpec, win domain.Window) map[string]any {
	bounds := map[string]any{
		"gte": win.Start.Format(r.Layout),
		"lte": win.End.Format(r.Layout),
	}
	if r.Format != "" {
		bounds["format"] = r.Format
	}
	return map[string]any{"range": map[string]any{r.Field: bounds}}
}
