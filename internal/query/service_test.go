package query_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/query"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

var testIndices = query.Indices{
	Weather:    "new_weather_data",
	AirQuality: "air_quality_data",
	Traffic:    "traffic-data",
	Vehicles:   "sudo-vehicle-register",
}

func intPtr(n int) *int { return &n }

func newService(t *testing.T) (*query.Service, *store.Memory) {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Melbourne")
	require.NoError(t, err)
	mem := store.NewMemory()
	return query.NewService(mem, testIndices, loc, slog.New(slog.NewTextHandler(io.Discard, nil))), mem
}

func aggs(t *testing.T, raw string) *store.SearchResponse {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return &store.SearchResponse{Aggregations: out}
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestWeatherStations_MergesPreciseLocation(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Weather, aggs(t, `{"stations": {"buckets": [
		{"key": {"wmo": 95936, "name": "Melbourne (Olympic Park)", "lat": -37.8, "lon": 145.0, "precise_lat": -37.8255, "precise_lon": 144.9816}, "doc_count": 40},
		{"key": {"wmo": 94866, "name": "Melbourne Airport", "lat": -37.7, "lon": 144.8, "precise_lat": null, "precise_lon": null}, "doc_count": 38}
	]}}`))

	listing, err := svc.WeatherStations(context.Background())
	require.NoError(t, err)
	require.False(t, listing.HasDuplicates())

	assert.JSONEq(t, `{"stations": [
		{"wmo": 95936, "name": "Melbourne (Olympic Park)", "lat": -37.8255, "lon": 144.9816},
		{"wmo": 94866, "name": "Melbourne Airport", "lat": -37.7, "lon": 144.8}
	]}`, toJSON(t, listing))

	searches := mem.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, testIndices.Weather, searches[0].Index)
}

func TestWeatherStations_DuplicateCodes(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Weather, aggs(t, `{"stations": {"buckets": [
		{"key": {"wmo": 95678, "name": "Rhyll", "lat": -38.5, "lon": 145.3}, "doc_count": 10},
		{"key": {"wmo": 94866, "name": "Melbourne Airport", "lat": -37.7, "lon": 144.8}, "doc_count": 38},
		{"key": {"wmo": 95678, "name": "Rhyll (new site)", "lat": -38.5, "lon": 145.3}, "doc_count": 2}
	]}}`))

	listing, err := svc.WeatherStations(context.Background())
	require.NoError(t, err)
	require.True(t, listing.HasDuplicates())

	assert.JSONEq(t, `{"station_wmos": [
		{"wmo": 95678, "name": "Rhyll"},
		{"wmo": 94866, "name": "Melbourne Airport"}
	]}`, toJSON(t, listing))
}

func TestWeatherStations_SameStationEnrichedAndCoarse(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Weather, aggs(t, `{"stations": {"buckets": [
		{"key": {"wmo": 95936, "name": "Melbourne (Olympic Park)", "lat": -37.8, "lon": 145.0, "precise_lat": null, "precise_lon": null}, "doc_count": 12},
		{"key": {"wmo": 95936, "name": "Melbourne (Olympic Park)", "lat": -37.8, "lon": 145.0, "precise_lat": -37.8255, "precise_lon": 144.9816}, "doc_count": 40},
		{"key": {"wmo": 94866, "name": "Melbourne Airport", "lat": -37.7, "lon": 144.8, "precise_lat": null, "precise_lon": null}, "doc_count": 38}
	]}}`))

	listing, err := svc.WeatherStations(context.Background())
	require.NoError(t, err)
	require.False(t, listing.HasDuplicates(), "one station split by enrichment is not a code conflict")

	assert.JSONEq(t, `{"stations": [
		{"wmo": 95936, "name": "Melbourne (Olympic Park)", "lat": -37.8255, "lon": 144.9816},
		{"wmo": 94866, "name": "Melbourne Airport", "lat": -37.7, "lon": 144.8}
	]}`, toJSON(t, listing))
}

func TestWeatherStations_Empty(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Weather, aggs(t, `{"stations": {"buckets": []}}`))

	listing, err := svc.WeatherStations(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"stations": []}`, toJSON(t, listing))
}

func TestAirQualityStations(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.AirQuality, aggs(t, `{"stations": {"buckets": [
		{"key": {"site_id": "a1", "site_name": "Footscray", "latitude": -37.8, "longitude": 144.87}, "doc_count": 5}
	]}}`))

	listing, err := svc.AirQualityStations(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"stations": [
		{"site_id": "a1", "site_name": "Footscray", "latitude": -37.8, "longitude": 144.87}
	]}`, toJSON(t, listing))
}

func TestAirQualityStations_CollapsesMissingCoordinates(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.AirQuality, aggs(t, `{"stations": {"buckets": [
		{"key": {"site_id": "a1", "site_name": "Footscray", "latitude": null, "longitude": null}, "doc_count": 2},
		{"key": {"site_id": "a1", "site_name": "Footscray", "latitude": -37.8, "longitude": 144.87}, "doc_count": 5},
		{"key": {"site_id": "b2", "site_name": "Alphington", "latitude": null, "longitude": null}, "doc_count": 1}
	]}}`))

	listing, err := svc.AirQualityStations(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"stations": [
		{"site_id": "a1", "site_name": "Footscray", "latitude": -37.8, "longitude": 144.87},
		{"site_id": "b2", "site_name": "Alphington", "latitude": null, "longitude": null}
	]}`, toJSON(t, listing))
}

func TestVehicles(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, testIndices.Vehicles, "1", map[string]any{
		" sa2_code_2021":               "206041122",
		" total_dwellings":             4120,
		"num_mot_veh_per_dwg_tot_dwgs": 1.4,
	}))
	require.NoError(t, mem.Put(ctx, testIndices.Vehicles, "2", map[string]any{
		" sa2_code_2021":   213011339,
		" total_dwellings": 980,
	}))
	require.NoError(t, mem.Put(ctx, testIndices.Vehicles, "3", map[string]any{
		" total_dwellings": 12,
	}))

	register, err := svc.Vehicles(ctx)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"206041122": {"Total_Dwellings": 4120, "num_mot_veh_per_dwg_tot_dwgs": 1.4},
		"213011339": {"Total_Dwellings": 980, "num_mot_veh_per_dwg_tot_dwgs": null}
	}`, toJSON(t, register))

	searches := mem.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, testIndices.Vehicles, searches[0].Index)
	assert.Equal(t, 1000, searches[0].Body["size"])
}

func TestAggregate_RejectsSkippedLocalHour(t *testing.T) {
	svc, mem := newService(t)
	tf := &domain.TimeFilter{Year: 2024, Month: intPtr(10), Day: intPtr(6), Hour: intPtr(2)}

	_, err := svc.AirQualityAggregate(context.Background(), "a1", tf)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.FreewayAggregate(context.Background(), "Monash_Fwy", tf)
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, mem.Searches())
}

func TestFreeways(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Traffic, aggs(t, `{"unique_freewayNames": {"buckets": [
		{"key": "Monash Fwy", "doc_count": 120},
		{"key": "West Gate Fwy", "doc_count": 80}
	]}}`))

	listing, err := svc.Freeways(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"freeways": [
		{"key": "Monash_Fwy", "doc_count": 120},
		{"key": "West_Gate_Fwy", "doc_count": 80}
	]}`, toJSON(t, listing))
}

func TestAirQualityAggregate_EchoesLocalWindow(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.AirQuality, aggs(t, `{
		"avg_pm25": {"value": 6.5},
		"max_pm25": {"value": 14.2},
		"min_pm25": {"value": 1.1}
	}`))

	tf := &domain.TimeFilter{Year: 2024, Month: intPtr(5)}
	agg, err := svc.AirQualityAggregate(context.Background(), "086338", tf)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"avg_pm25": 6.5,
		"max_pm25": 14.2,
		"min_pm25": 1.1,
		"date_filter": {"start": "2024-05-01 00:00:00", "end": "2024-05-31 23:59:59"}
	}`, toJSON(t, agg))

	body := toJSON(t, mem.Searches()[0].Body)
	assert.Contains(t, body, `"gte":"2024-04-30T14:00:00Z"`)
	assert.Contains(t, body, `"lte":"2024-05-31T13:59:59Z"`)
}

func TestWeatherAggregate_NoYearOmitsDateFilter(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Weather, aggs(t, `{
		"avg_temperature": {"value": null},
		"max_temperature": {"value": null},
		"min_temperature": {"value": null},
		"avg_wind_speed_kmh": {"value": null},
		"max_wind_speed_kmh": {"value": null},
		"min_wind_speed_kmh": {"value": null}
	}`))

	agg, err := svc.WeatherAggregate(context.Background(), 95936, nil)
	require.NoError(t, err)

	out := toJSON(t, agg)
	assert.NotContains(t, out, "date_filter")
	assert.Contains(t, out, `"avg_temperature":null`)
	assert.NotContains(t, toJSON(t, mem.Searches()[0].Body), "range")
}

func TestWeatherAggregate_MissingAggregation(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Weather, aggs(t, `{"avg_temperature": {"value": 1}}`))

	_, err := svc.WeatherAggregate(context.Background(), 95936, nil)
	require.Error(t, err)
}

func TestFreewayAggregate(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Traffic, aggs(t, `{
		"max_congestion": {"value": 3.4},
		"top_segments": {"buckets": [{
			"key": 3.4,
			"doc_count": 2,
			"max_congestion": {"value": 3.4},
			"top_hit": {"hits": {"hits": [{"_id": "9---2024-05-10T14:30:00", "_source": {
				"segmentName": "Warrigal Rd to Huntingdale Rd",
				"actualTravelTime": 410,
				"geometry": {"type": "LineString", "coordinates": [[145.1, -37.9], [145.2, -37.91]]}
			}}]}}
		}]}
	}`))

	res, err := svc.FreewayAggregate(context.Background(), "Monash_Fwy", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"max_congestion_index": 3.4,
		"segment_name": "Warrigal Rd to Huntingdale Rd",
		"actual_travel_time": 410,
		"geometry_type": "LineString",
		"coordinates": [[145.1, -37.9], [145.2, -37.91]]
	}`, toJSON(t, res))

	assert.Contains(t, toJSON(t, mem.Searches()[0].Body), `"value":"Monash Fwy"`)
}

func TestFreewayAggregate_NoMatches(t *testing.T) {
	svc, mem := newService(t)
	mem.SetSearchResponse(testIndices.Traffic, aggs(t, `{
		"max_congestion": {"value": null},
		"top_segments": {"buckets": []}
	}`))

	res, err := svc.FreewayAggregate(context.Background(), "Nowhere_Fwy", &domain.TimeFilter{Year: 2020})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"max_congestion_index": null,
		"segment_name": null,
		"actual_travel_time": null,
		"geometry_type": null,
		"coordinates": null
	}`, toJSON(t, res))
}

func TestService_StoreUnavailable(t *testing.T) {
	svc, mem := newService(t)
	mem.SetError(fmt.Errorf("%w: timeout", domain.ErrStoreUnavailable))

	_, err := svc.Freeways(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.WeatherAggregate(context.Background(), 95936, nil)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
