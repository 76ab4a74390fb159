package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.DocumentsWritten.WithLabelValues("weather").Add(3)
	m.HarvestRuns.WithLabelValues("traffic", "failed").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocumentsWritten.WithLabelValues("weather")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HarvestRuns.WithLabelValues("traffic", "failed")))
	assert.Len(t, m.collectors(), 12)
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.UpstreamRetries.WithLabelValues("epa").Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.UpstreamRetries.WithLabelValues("epa")))
}
