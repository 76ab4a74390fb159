package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// WeatherMeasurements are the observation fields carried through unchanged
// from a station's JSON product.
type WeatherMeasurements struct {
	HistoryProduct    string   `json:"history_product,omitempty"`
	LocalDateTimeFull string   `json:"local_date_time_full,omitempty"`
	ApparentT         *float64 `json:"apparent_t,omitempty"`
	AirTemp           *float64 `json:"air_temp,omitempty"`
	DewPt             *float64 `json:"dewpt,omitempty"`
	RelHum            *float64 `json:"rel_hum,omitempty"`
	DeltaT            *float64 `json:"delta_t,omitempty"`
	Press             *float64 `json:"press,omitempty"`
	RainTrace         string   `json:"rain_trace,omitempty"`
	WindDir           string   `json:"wind_dir,omitempty"`
	WindSpdKmh        *float64 `json:"wind_spd_kmh,omitempty"`
	GustKmh           *float64 `json:"gust_kmh,omitempty"`
	VisKm             string   `json:"vis_km,omitempty"`
	Weather           string   `json:"weather,omitempty"`
}

// WeatherRecord is one raw entry of a station product's observations.data array.
type WeatherRecord struct {
	WMO         *int     `json:"wmo"`
	Name        string   `json:"name"`
	AifstimeUTC string   `json:"aifstime_utc"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	WeatherMeasurements
}

// WeatherObservation is the indexed weather document.
type WeatherObservation struct {
	WMO         int      `json:"wmo"`
	Name        string   `json:"name,omitempty"`
	AifstimeUTC string   `json:"aifstime_utc"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	PreciseLat  *float64 `json:"precise_lat,omitempty"`
	PreciseLon  *float64 `json:"precise_lon,omitempty"`
	WeatherMeasurements
}

// IdentityKey returns <wmo>--<aifstime_utc>.
func (o WeatherObservation) IdentityKey() string {
	return strconv.Itoa(o.WMO) + "--" + o.AifstimeUTC
}

// StationRef is one row of the station reference table.
type StationRef struct {
	Name     string
	Location Location
}

// StationTable maps a WMO code to its reference row.
type StationTable map[int]StationRef

// NormalizeWeather maps a raw observation to its document, attaching the
// precise coordinates from stations when the station is listed there. A
// station absent from the table is left unenriched.
func NormalizeWeather(rec WeatherRecord, stations StationTable) (WeatherObservation, error) {
	if rec.WMO == nil {
		return WeatherObservation{}, errors.New("weather record has no wmo")
	}
	if rec.AifstimeUTC == "" {
		return WeatherObservation{}, fmt.Errorf("weather record %d has no aifstime_utc", *rec.WMO)
	}

	obs := WeatherObservation{
		WMO:                 *rec.WMO,
		Name:                rec.Name,
		AifstimeUTC:         rec.AifstimeUTC,
		Lat:                 rec.Lat,
		Lon:                 rec.Lon,
		WeatherMeasurements: rec.WeatherMeasurements,
	}

	if ref, ok := stations[*rec.WMO]; ok && ref.Location.Complete() {
		obs.PreciseLat = ref.Location.Lat
		obs.PreciseLon = ref.Location.Lon
	}
	return obs, nil
}
