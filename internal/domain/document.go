package domain

// Source names one upstream provider.
type Source string

const (
	SourceWeather    Source = "weather"
	SourceAirQuality Source = "air-quality"
	SourceTraffic    Source = "traffic"
)

// Sources lists every harvested source in run order.
var Sources = []Source{SourceWeather, SourceAirQuality, SourceTraffic}

// ParseSource resolves a source name.
func ParseSource(s string) (Source, bool) {
	for _, src := range Sources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// Document is a canonical record ready to be indexed under its identity key.
type Document interface {
	IdentityKey() string
}

var (
	_ Document = WeatherObservation{}
	_ Document = AirQualityReading{}
	_ Document = TrafficSegment{}
)
