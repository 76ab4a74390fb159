package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	// Embedded zone database so LOCAL_TIMEZONE resolves in scratch images.
	_ "time/tzdata"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Document store.
	ESAddresses          []string
	ESUsername           string
	ESPassword           string
	ESInsecureSkipVerify bool
	WeatherIndex         string
	AirQualityIndex      string
	TrafficIndex         string
	VehicleIndex         string

	// Weather source.
	BOMIndexURL           string
	BOMObservationBaseURL string
	BOMStationsURL        string
	BOMUserAgent          string

	// Air-quality source.
	EPABaseURL           string
	EPAAPIKey            string
	EPAUserAgent         string
	EPARequestsPerSecond float64
	EPAMaxAttempts       int
	EPARetryDelay        time.Duration

	// Traffic source.
	TrafficURL    string
	TrafficAPIKey string

	UpstreamTimeout time.Duration
	HarvestWorkers  int

	WeatherInterval    time.Duration
	AirQualityInterval time.Duration
	TrafficInterval    time.Duration

	LocalTimezone *time.Location

	HTTPAddr          string
	APIAddr           string
	APIRequestTimeout time.Duration

	// Observation feed; disabled when no brokers are configured.
	FeedBrokers []string
	FeedTopic   string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// FeedEnabled reports whether newly written documents are published to Kafka.
func (c *Config) FeedEnabled() bool {
	return len(c.FeedBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ESAddresses:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("ES_ADDRESSES", "https://localhost:9200")),
		ESUsername:      os.Getenv("ES_USERNAME"),
		ESPassword:      os.Getenv("ES_PASSWORD"),
		WeatherIndex:    sharedcfg.EnvOrDefault("ES_WEATHER_INDEX", "new_weather_data"),
		AirQualityIndex: sharedcfg.EnvOrDefault("ES_AIR_QUALITY_INDEX", "air_quality_data"),
		TrafficIndex:    sharedcfg.EnvOrDefault("ES_TRAFFIC_INDEX", "traffic-data"),
		VehicleIndex:    sharedcfg.EnvOrDefault("ES_VEHICLE_INDEX", "sudo-vehicle-register"),

		BOMIndexURL:           sharedcfg.EnvOrDefault("BOM_INDEX_URL", "https://reg.bom.gov.au/vic/observations/vicall.shtml"),
		BOMObservationBaseURL: sharedcfg.EnvOrDefault("BOM_OBSERVATION_BASE_URL", "https://reg.bom.gov.au/fwo/"),
		BOMStationsURL:        sharedcfg.EnvOrDefault("BOM_STATIONS_URL", "https://reg.bom.gov.au/climate/data/lists_by_element/stations.txt"),
		BOMUserAgent:          sharedcfg.EnvOrDefault("BOM_USER_AGENT", "Mozilla/5.0 (compatible; telemetry-harvester)"),

		EPABaseURL:   sharedcfg.EnvOrDefault("EPA_BASE_URL", "https://gateway.api.epa.vic.gov.au/environmentMonitoring/v1/"),
		EPAAPIKey:    os.Getenv("EPA_API_KEY"),
		EPAUserAgent: sharedcfg.EnvOrDefault("EPA_USER_AGENT", "curl/8.4.0"),

		TrafficURL:    sharedcfg.EnvOrDefault("TRAFFIC_URL", "https://data-exchange-api.vicroads.vic.gov.au/opendata/variable/freewaytraveltime/v1/traffic"),
		TrafficAPIKey: os.Getenv("TRAFFIC_API_KEY"),

		HTTPAddr: sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		APIAddr:  sharedcfg.EnvOrDefault("API_ADDR", ":8000"),

		FeedTopic: sharedcfg.EnvOrDefault("FEED_KAFKA_TOPIC", "harvested-observations"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"EPA_RETRY_DELAY", "1s", &cfg.EPARetryDelay},
		{"UPSTREAM_TIMEOUT", "30s", &cfg.UpstreamTimeout},
		{"WEATHER_INTERVAL", "30m", &cfg.WeatherInterval},
		{"AIR_QUALITY_INTERVAL", "1h", &cfg.AirQualityInterval},
		{"TRAFFIC_INTERVAL", "5m", &cfg.TrafficInterval},
		{"API_REQUEST_TIMEOUT", "10s", &cfg.APIRequestTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.ESInsecureSkipVerify, err = parseBool("ES_INSECURE_SKIP_VERIFY", false); err != nil {
		return nil, err
	}
	if cfg.HarvestWorkers, err = parsePositiveInt("HARVEST_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.EPAMaxAttempts, err = parsePositiveInt("EPA_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.EPARequestsPerSecond, err = parseRate("EPA_REQUESTS_PER_SECOND", 3); err != nil {
		return nil, err
	}

	tz := sharedcfg.EnvOrDefault("LOCAL_TIMEZONE", "Australia/Melbourne")
	if cfg.LocalTimezone, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE %q: %w", tz, err)
	}

	if v := os.Getenv("FEED_KAFKA_BROKERS"); v != "" {
		cfg.FeedBrokers = sharedcfg.ParseBrokers(v)
	}

	if len(cfg.ESAddresses) == 0 {
		return nil, errors.New("ES_ADDRESSES is required")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseRate(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
