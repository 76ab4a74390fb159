package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "telemetry"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// harvesters and the read API.
type Metrics struct {
	// Harvest metrics, labelled by source.
	HarvestRuns             *prometheus.CounterVec   // labels: source, outcome={success,failed}
	HarvestDuration         *prometheus.HistogramVec // labels: source
	HarvestInProgress       *prometheus.GaugeVec     // labels: source
	DocumentsWritten        *prometheus.CounterVec   // labels: source
	DocumentsAlreadyPresent *prometheus.CounterVec   // labels: source
	HarvestFailures         *prometheus.CounterVec   // labels: source, stage={fetch,normalize,write}

	// Upstream metrics, labelled by upstream name.
	UpstreamRequests *prometheus.CounterVec   // labels: upstream, outcome={success,error,rate_limited,circuit_open}
	UpstreamRetries  *prometheus.CounterVec   // labels: upstream
	UpstreamDuration *prometheus.HistogramVec // labels: upstream

	FeedPublished *prometheus.CounterVec // labels: source

	// Read API metrics.
	APIRequests        *prometheus.CounterVec   // labels: route, status
	APIRequestDuration *prometheus.HistogramVec // labels: route
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		HarvestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvest_runs_total",
			Help:      "Harvest passes by source and outcome.",
		}, []string{"source", "outcome"}),
		HarvestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "harvest_duration_seconds",
			Help:      "Duration of a complete harvest pass.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		HarvestInProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "harvest_in_progress",
			Help:      "1 while a harvest pass for the source is running.",
		}, []string{"source"}),
		DocumentsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Documents newly written to the store.",
		}, []string{"source"}),
		DocumentsAlreadyPresent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_already_present_total",
			Help:      "Documents skipped because their identity key was already indexed.",
		}, []string{"source"}),
		HarvestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvest_failures_total",
			Help:      "Units or records dropped by stage.",
		}, []string{"source", "stage"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by outcome.",
		}, []string{"upstream", "outcome"}),
		UpstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Requests repeated after a 429 response.",
		}, []string{"upstream"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"upstream"}),
		FeedPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_published_total",
			Help:      "Newly written documents published to the observation feed.",
		}, []string{"source"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Read API requests by route and status code.",
		}, []string{"route", "status"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Read API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HarvestRuns,
		m.HarvestDuration,
		m.HarvestInProgress,
		m.DocumentsWritten,
		m.DocumentsAlreadyPresent,
		m.HarvestFailures,
		m.UpstreamRequests,
		m.UpstreamRetries,
		m.UpstreamDuration,
		m.FeedPublished,
		m.APIRequests,
		m.APIRequestDuration,
	}
}
