// Package epa harvests PM2.5 readings from the EPA Victoria Environment
// Monitoring API.
package epa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

const (
	standardSiteType = "Standard"
	pm25Parameter    = "PM2.5"
	hourlyAverage    = "1HR_AV"
)

// Getter fetches a URL body. *upstream.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client implements the air-quality source.
type Client struct {
	baseURL string
	get     Getter
	logger  *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL. Authentication
// headers and throttling live in the Getter.
func NewClient(baseURL string, get Getter, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, get: get, logger: logger}
}

// Sites lists every air monitoring site.
func (c *Client) Sites(ctx context.Context) ([]domain.Site, error) {
	u, err := url.JoinPath(c.baseURL, "sites")
	if err != nil {
		return nil, fmt.Errorf("build sites url: %w", err)
	}
	body, err := c.get.Get(ctx, u+"?"+url.Values{"environmentalSegment": {"air"}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch sites: %w", err)
	}

	var resp sitesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}

	sites := make([]domain.Site, 0, len(resp.Records))
	for _, r := range resp.Records {
		if r.SiteID == "" {
			continue
		}
		sites = append(sites, domain.Site{ID: r.SiteID, Name: r.SiteName})
	}
	return sites, nil
}

// LatestReading returns the site's latest complete hourly PM2.5 reading. It
// returns nil without error when the site is not a standard station or has
// no complete reading.
func (c *Client) LatestReading(ctx context.Context, site domain.Site) (*domain.AirQualityRecord, error) {
	u, err := url.JoinPath(c.baseURL, "sites", site.ID, "parameters")
	if err != nil {
		return nil, fmt.Errorf("build parameters url: %w", err)
	}
	body, err := c.get.Get(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp parametersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode parameters for site %s: %w", site.ID, err)
	}

	if resp.SiteType != standardSiteType {
		c.logger.Debug("skipping non-standard site", "site_id", site.ID, "site_type", resp.SiteType)
		return nil, nil
	}

	reading, ok := domain.LatestComplete(resp.hourlyPM25())
	if !ok {
		return nil, nil
	}

	name := resp.SiteName
	if name == "" {
		name = site.Name
	}
	return &domain.AirQualityRecord{
		SiteID:   site.ID,
		SiteName: name,
		Location: resp.Geometry.location(),
		Reading:  reading,
	}, nil
}

type sitesResponse struct {
	Records []struct {
		SiteID   string `json:"siteID"`
		SiteName string `json:"siteName"`
	} `json:"records"`
}

type parametersResponse struct {
	SiteID     string   `json:"siteID"`
	SiteName   string   `json:"siteName"`
	SiteType   string   `json:"siteType"`
	Geometry   geometry `json:"geometry"`
	Parameters []struct {
		Name               string `json:"name"`
		TimeSeriesReadings []struct {
			TimeSeriesName string               `json:"timeSeriesName"`
			Readings       []domain.PM25Reading `json:"readings"`
		} `json:"timeSeriesReadings"`
	} `json:"parameters"`
}

func (r parametersResponse) hourlyPM25() []domain.PM25Reading {
	for _, p := range r.Parameters {
		if p.Name != pm25Parameter {
			continue
		}
		for _, ts := range p.TimeSeriesReadings {
			if ts.TimeSeriesName == hourlyAverage {
				return ts.Readings
			}
		}
	}
	return nil
}

// geometry holds a point. The API publishes coordinates as [lat, lon].
type geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

func (g geometry) location() domain.Location {
	if len(g.Coordinates) < 2 {
		return domain.Location{}
	}
	lat, lon := g.Coordinates[0], g.Coordinates[1]
	return domain.Location{Lat: &lat, Lon: &lon}
}
