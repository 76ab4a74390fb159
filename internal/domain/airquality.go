package domain

import (
	"errors"
	"fmt"
)

// Site is one entry of the monitoring site directory.
type Site struct {
	ID   string
	Name string
}

// PM25Reading is one entry of a site's PM2.5 "1HR_AV" time series.
type PM25Reading struct {
	Since        string   `json:"since"`
	Until        string   `json:"until"`
	AverageValue *float64 `json:"averageValue"`
	Unit         string   `json:"unit"`
	Confidence   *float64 `json:"confidence"`
	TotalSample  *int     `json:"totalSample"`
	HealthAdvice string   `json:"healthAdvice"`
}

// Complete reports whether the hour has any samples. The upstream publishes
// the running hour with a zero sample count.
func (r PM25Reading) Complete() bool {
	return r.TotalSample != nil && *r.TotalSample > 0
}

// LatestComplete returns the complete reading with the latest window end, or
// false when every reading is incomplete.
func LatestComplete(readings []PM25Reading) (PM25Reading, bool) {
	var (
		best  PM25Reading
		found bool
	)
	for _, r := range readings {
		if !r.Complete() {
			continue
		}
		// Timestamps are RFC 3339 UTC, so lexical order is chronological.
		if !found || r.Until > best.Until {
			best = r
			found = true
		}
	}
	return best, found
}

// AirQualityRecord is the latest complete reading of one monitoring site.
type AirQualityRecord struct {
	SiteID   string
	SiteName string
	Location Location
	Reading  PM25Reading
}

// AirQualityReading is the indexed air-quality document.
type AirQualityReading struct {
	ObsID        string   `json:"obs_id"`
	SiteID       string   `json:"site_id,omitempty"`
	SiteName     string   `json:"site_name,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	AverageValue *float64 `json:"averageValue,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	Since        string   `json:"since"`
	Until        string   `json:"until"`
	Confidence   *float64 `json:"confidence,omitempty"`
	TotalSample  *int     `json:"totalSample,omitempty"`
	HealthAdvice string   `json:"healthAdvice,omitempty"`
}

// IdentityKey returns <site id>--<since>--<until>.
func (r AirQualityReading) IdentityKey() string {
	return r.ObsID
}

func airQualityKey(siteID, since, until string) string {
	return siteID + "--" + since + "--" + until
}

// SiteIDFromKey recovers the site id from an air-quality identity key. Site
// ids are 36-character UUIDs.
func SiteIDFromKey(key string) (string, bool) {
	const siteIDLen = 36
	if len(key) < siteIDLen {
		return "", false
	}
	return key[:siteIDLen], true
}

// NormalizeAirQuality maps a site's reading to its document.
func NormalizeAirQuality(rec AirQualityRecord) (AirQualityReading, error) {
	if rec.SiteID == "" {
		return AirQualityReading{}, errors.New("air quality record has no site id")
	}
	if rec.Reading.Since == "" || rec.Reading.Until == "" {
		return AirQualityReading{}, fmt.Errorf("air quality record %s has no reading window", rec.SiteID)
	}

	r := rec.Reading
	return AirQualityReading{
		ObsID:        airQualityKey(rec.SiteID, r.Since, r.Until),
		SiteID:       rec.SiteID,
		SiteName:     rec.SiteName,
		Latitude:     rec.Location.Lat,
		Longitude:    rec.Location.Lon,
		AverageValue: r.AverageValue,
		Unit:         r.Unit,
		Since:        r.Since,
		Until:        r.Until,
		Confidence:   r.Confidence,
		TotalSample:  r.TotalSample,
		HealthAdvice: r.HealthAdvice,
	}, nil
}
