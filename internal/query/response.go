package query

import (
	"encoding/json"
	"fmt"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

// WeatherStation is one distinct weather station. Lat/Lon are the precise
// coordinates when the station was enriched.
type WeatherStation struct {
	WMO  int      `json:"wmo"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// StationCode is one entry of a duplicate-code listing.
type StationCode struct {
	WMO  int    `json:"wmo"`
	Name string `json:"name"`
}

// WeatherStationListing is either a station list or, when two stations share
// a WMO code, the list of distinct codes. Exactly one field is set.
type WeatherStationListing struct {
	Stations   []WeatherStation
	Duplicates []StationCode
}

// HasDuplicates reports whether the listing is a duplicate-code result.
func (l WeatherStationListing) HasDuplicates() bool {
	return l.Duplicates != nil
}

func (l WeatherStationListing) MarshalJSON() ([]byte, error) {
	if l.HasDuplicates() {
		return json.Marshal(map[string][]StationCode{"station_wmos": l.Duplicates})
	}
	stations := l.Stations
	if stations == nil {
		stations = []WeatherStation{}
	}
	return json.Marshal(map[string][]WeatherStation{"stations": stations})
}

// AirQualityStation is one distinct monitoring site.
type AirQualityStation struct {
	SiteID    string   `json:"site_id"`
	SiteName  string   `json:"site_name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// AirQualityStationListing lists monitoring sites.
type AirQualityStationListing struct {
	Stations []AirQualityStation `json:"stations"`
}

// Freeway is one distinct freeway with its route key.
type Freeway struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// FreewayListing lists freeways.
type FreewayListing struct {
	Freeways []Freeway `json:"freeways"`
}

// SA2Vehicles is one region's row of the vehicle register. Values are passed
// through as stored.
type SA2Vehicles struct {
	TotalDwellings      json.RawMessage `json:"Total_Dwellings"`
	VehiclesPerDwelling json.RawMessage `json:"num_mot_veh_per_dwg_tot_dwgs"`
}

// VehicleRegister maps SA2 code to its register row.
type VehicleRegister map[string]SA2Vehicles

// Aggregate is a set of named metric values, null when no document matched,
// plus the echoed window when one was requested.
type Aggregate struct {
	Metrics    map[string]*float64
	DateFilter *domain.DateFilter
}

func (a Aggregate) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Metrics)+1)
	for k, v := range a.Metrics {
		out[k] = v
	}
	if a.DateFilter != nil {
		out["date_filter"] = a.DateFilter
	}
	return json.Marshal(out)
}

// FreewayCongestion is the most congested segment of a freeway. Every field
// is null when no document matched.
type FreewayCongestion struct {
	MaxCongestionIndex *float64        `json:"max_congestion_index"`
	SegmentName        *string         `json:"segment_name"`
	ActualTravelTime   *float64        `json:"actual_travel_time"`
	GeometryType       *string         `json:"geometry_type"`
	Coordinates        json.RawMessage `json:"coordinates"`
}

// --- decoding ---

type compositeResult struct {
	Buckets []struct {
		Key json.RawMessage `json:"key"`
	} `json:"buckets"`
}

type termsResult struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

type valueResult struct {
	Value *float64 `json:"value"`
}

type weatherKey struct {
	WMO        int      `json:"wmo"`
	Name       string   `json:"name"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	PreciseLat *float64 `json:"precise_lat"`
	PreciseLon *float64 `json:"precise_lon"`
}

func decodeAgg(resp *store.SearchResponse, name string, dst any) error {
	raw, ok := resp.Aggregations[name]
	if !ok {
		return fmt.Errorf("response has no %q aggregation", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %q aggregation: %w", name, err)
	}
	return nil
}

// decodeWeatherStations collapses the composite buckets into stations and
// applies the duplicate-code rule. Buckets that share a code and a name are
// one station whose documents differ only in coordinates; the first complete
// precise location wins. Only a code carried by different names is a
// conflict, and then the listing names every distinct code once, with the
// first name seen for it.
func decodeWeatherStations(resp *store.SearchResponse) (WeatherStationListing, error) {
	var agg compositeResult
	if err := decodeAgg(resp, stationsAgg, &agg); err != nil {
		return WeatherStationListing{}, err
	}

	type station struct {
		name    string
		loc     domain.Location
		precise bool
	}
	byCode := make(map[int]*station, len(agg.Buckets))
	var order []int
	conflict := false

	for _, b := range agg.Buckets {
		var k weatherKey
		if err := json.Unmarshal(b.Key, &k); err != nil {
			return WeatherStationListing{}, fmt.Errorf("decode station key: %w", err)
		}
		precise := domain.Location{Lat: k.PreciseLat, Lon: k.PreciseLon}
		loc := domain.MergeLocation(domain.Location{Lat: k.Lat, Lon: k.Lon}, &precise)

		s, seen := byCode[k.WMO]
		if !seen {
			byCode[k.WMO] = &station{name: k.Name, loc: loc, precise: precise.Complete()}
			order = append(order, k.WMO)
			continue
		}
		if s.name != k.Name {
			conflict = true
			continue
		}
		switch {
		case !s.precise && precise.Complete():
			s.loc, s.precise = loc, true
		case !s.loc.Complete() && loc.Complete():
			s.loc = loc
		}
	}

	if conflict {
		codes := make([]StationCode, len(order))
		for i, wmo := range order {
			codes[i] = StationCode{WMO: wmo, Name: byCode[wmo].name}
		}
		return WeatherStationListing{Duplicates: codes}, nil
	}

	stations := make([]WeatherStation, len(order))
	for i, wmo := range order {
		s := byCode[wmo]
		stations[i] = WeatherStation{WMO: wmo, Name: s.name, Lat: s.loc.Lat, Lon: s.loc.Lon}
	}
	return WeatherStationListing{Stations: stations}, nil
}

// decodeAirQualityStations lists each site once. Buckets split only by a
// missing coordinate collapse into the one with a complete location.
func decodeAirQualityStations(resp *store.SearchResponse) (AirQualityStationListing, error) {
	var agg compositeResult
	if err := decodeAgg(resp, stationsAgg, &agg); err != nil {
		return AirQualityStationListing{}, err
	}
	stations := make([]AirQualityStation, 0, len(agg.Buckets))
	index := make(map[string]int, len(agg.Buckets))
	for _, b := range agg.Buckets {
		var s AirQualityStation
		if err := json.Unmarshal(b.Key, &s); err != nil {
			return AirQualityStationListing{}, fmt.Errorf("decode site key: %w", err)
		}
		i, seen := index[s.SiteID]
		if !seen {
			index[s.SiteID] = len(stations)
			stations = append(stations, s)
			continue
		}
		prev := &stations[i]
		if (prev.Latitude == nil || prev.Longitude == nil) && s.Latitude != nil && s.Longitude != nil {
			prev.Latitude, prev.Longitude = s.Latitude, s.Longitude
		}
	}
	return AirQualityStationListing{Stations: stations}, nil
}

func decodeFreeways(resp *store.SearchResponse) (FreewayListing, error) {
	var agg termsResult
	if err := decodeAgg(resp, freewaysAgg, &agg); err != nil {
		return FreewayListing{}, err
	}
	freeways := make([]Freeway, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		freeways = append(freeways, Freeway{Key: domain.FreewayRouteKey(b.Key), DocCount: b.DocCount})
	}
	return FreewayListing{Freeways: freeways}, nil
}

func decodeMetrics(resp *store.SearchResponse, metrics []Metric) (map[string]*float64, error) {
	out := make(map[string]*float64, len(metrics))
	for _, m := range metrics {
		var v valueResult
		if err := decodeAgg(resp, m.Name, &v); err != nil {
			return nil, err
		}
		out[m.Name] = v.Value
	}
	return out, nil
}

type topSegmentsResult struct {
	Buckets []struct {
		TopHit struct {
			Hits struct {
				Hits []store.Hit `json:"hits"`
			} `json:"hits"`
		} `json:"top_hit"`
	} `json:"buckets"`
}

type segmentSource struct {
	SegmentName      *string  `json:"segmentName"`
	ActualTravelTime *float64 `json:"actualTravelTime"`
	Geometry         *struct {
		Type        *string         `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

func decodeFreewayCongestion(resp *store.SearchResponse) (FreewayCongestion, error) {
	var out FreewayCongestion

	var maxCongestion valueResult
	if err := decodeAgg(resp, "max_congestion", &maxCongestion); err != nil {
		return out, err
	}
	out.MaxCongestionIndex = maxCongestion.Value

	var top topSegmentsResult
	if err := decodeAgg(resp, "top_segments", &top); err != nil {
		return out, err
	}
	if len(top.Buckets) == 0 || len(top.Buckets[0].TopHit.Hits.Hits) == 0 {
		return out, nil
	}

	var src segmentSource
	if err := json.Unmarshal(top.Buckets[0].TopHit.Hits.Hits[0].Source, &src); err != nil {
		return out, fmt.Errorf("decode top segment: %w", err)
	}
	out.SegmentName = src.SegmentName
	out.ActualTravelTime = src.ActualTravelTime
	if src.Geometry != nil {
		out.GeometryType = src.Geometry.Type
		if len(src.Geometry.Coordinates) > 0 {
			out.Coordinates = src.Geometry.Coordinates
		}
	}
	return out, nil
}

// Register rows come from the SUDO export, whose column names keep a
// leading space.
const (
	sa2CodeColumn        = " sa2_code_2021"
	totalDwellingsColumn = " total_dwellings"
	vehiclesColumn       = "num_mot_veh_per_dwg_tot_dwgs"
)

func decodeVehicleRegister(resp *store.SearchResponse) (VehicleRegister, error) {
	out := make(VehicleRegister, len(resp.Hits))
	for _, h := range resp.Hits {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(h.Source, &row); err != nil {
			return nil, fmt.Errorf("decode vehicle register row %s: %w", h.ID, err)
		}
		code, ok := sa2Code(row[sa2CodeColumn])
		if !ok {
			continue
		}
		out[code] = SA2Vehicles{
			TotalDwellings:      nullIfEmpty(row[totalDwellingsColumn]),
			VehiclesPerDwelling: nullIfEmpty(row[vehiclesColumn]),
		}
	}
	return out, nil
}

// sa2Code renders a code stored either as a string or a number.
func sa2Code(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	return string(raw), true
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
