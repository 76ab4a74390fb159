package epa

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hkarnen/comp90024-assignment-2/internal/adapter/upstream"
	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

const (
	footscrayID = "10239f6c-6a5a-4f0e-8b1d-8c7c3c1b0b8e"
	mobileID    = "a7f6b1f2-3c1d-4e8a-9b0c-1d2e3f4a5b6c"
	emptyID     = "b1c2d3e4-f5a6-4b7c-8d9e-0f1a2b3c4d5e"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/environmentMonitoring/v1/sites", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "air", r.URL.Query().Get("environmentalSegment"))
		_, _ = io.WriteString(w, `{"records": [
			{"siteID": "`+footscrayID+`", "siteName": "Footscray"},
			{"siteID": "`+mobileID+`", "siteName": "Mobile 1"},
			{"siteName": "no id"}
		]}`)
	})
	mux.HandleFunc("/environmentMonitoring/v1/sites/"+footscrayID+"/parameters", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{
			"siteID": "`+footscrayID+`",
			"siteName": "Footscray",
			"siteType": "Standard",
			"geometry": {"type": "Point", "coordinates": [-37.8048, 144.8717]},
			"parameters": [
				{"name": "PM10", "timeSeriesReadings": [{"timeSeriesName": "1HR_AV", "readings": [
					{"since": "2024-05-04T04:00:00Z", "until": "2024-05-04T05:00:00Z", "averageValue": 99, "totalSample": 60}
				]}]},
				{"name": "PM2.5", "timeSeriesReadings": [
					{"timeSeriesName": "24HR_AV", "readings": []},
					{"timeSeriesName": "1HR_AV", "readings": [
						{"since": "2024-05-04T04:00:00Z", "until": "2024-05-04T05:00:00Z", "averageValue": 6.4, "unit": "µg/m³", "confidence": 100, "totalSample": 60, "healthAdvice": "Good"},
						{"since": "2024-05-04T05:00:00Z", "until": "2024-05-04T06:00:00Z", "averageValue": 0, "unit": "µg/m³", "confidence": 0, "totalSample": 0, "healthAdvice": ""}
					]}
				]}
			]
		}`)
	})
	mux.HandleFunc("/environmentMonitoring/v1/sites/"+mobileID+"/parameters", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"siteID": "`+mobileID+`", "siteType": "Sensor", "parameters": []}`)
	})
	mux.HandleFunc("/environmentMonitoring/v1/sites/"+emptyID+"/parameters", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"siteID": "`+emptyID+`", "siteType": "Standard", "parameters": [
			{"name": "PM2.5", "timeSeriesReadings": [{"timeSeriesName": "1HR_AV", "readings": [
				{"since": "2024-05-04T05:00:00Z", "until": "2024-05-04T06:00:00Z", "totalSample": 0}
			]}]}
		]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL+"/environmentMonitoring/v1/", upstream.New(upstream.Options{Name: "epa"}, discardLogger()), discardLogger())
}

func TestClient_Sites(t *testing.T) {
	c := newTestClient(newTestServer(t))

	sites, err := c.Sites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Site{
		{ID: footscrayID, Name: "Footscray"},
		{ID: mobileID, Name: "Mobile 1"},
	}, sites)
}

func TestClient_LatestReading(t *testing.T) {
	c := newTestClient(newTestServer(t))

	rec, err := c.LatestReading(context.Background(), domain.Site{ID: footscrayID, Name: "Footscray"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, footscrayID, rec.SiteID)
	assert.Equal(t, "Footscray", rec.SiteName)
	assert.Equal(t, -37.8048, *rec.Location.Lat)
	assert.Equal(t, 144.8717, *rec.Location.Lon)
	assert.Equal(t, "2024-05-04T04:00:00Z", rec.Reading.Since)
	assert.Equal(t, 6.4, *rec.Reading.AverageValue)
	assert.Equal(t, "Good", rec.Reading.HealthAdvice)
}

func TestClient_LatestReading_NonStandardSite(t *testing.T) {
	c := newTestClient(newTestServer(t))

	rec, err := c.LatestReading(context.Background(), domain.Site{ID: mobileID})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClient_LatestReading_NoCompleteReading(t *testing.T) {
	c := newTestClient(newTestServer(t))

	rec, err := c.LatestReading(context.Background(), domain.Site{ID: emptyID})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClient_LatestReading_UnknownSite(t *testing.T) {
	c := newTestClient(newTestServer(t))

	_, err := c.LatestReading(context.Background(), domain.Site{ID: "missing"})
	var fetchErr *domain.UpstreamFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}
