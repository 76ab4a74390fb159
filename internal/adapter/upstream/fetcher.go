// Package upstream performs HTTP GETs against source providers with a bounded
// 429 retry, an optional shared rate limit and a circuit breaker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/observability"
)

// maxBodySize caps how much of a response is read into memory.
const maxBodySize = 32 << 20

// RetryPolicy bounds how often a rate-limited request is repeated.
type RetryPolicy struct {
	// MaxAttempts includes the first request. Values below 1 mean 1.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Clock drives the wait; nil means the real clock.
	Clock clockwork.Clock
}

// Options configures a Fetcher.
type Options struct {
	// Name labels metrics, logs and the circuit breaker.
	Name    string
	Client  *http.Client
	Headers http.Header
	Retry   RetryPolicy
	// Limiter, when set, is waited on before every attempt. Share one limiter
	// across all workers of a source to give it a single request budget.
	Limiter *rate.Limiter
	Metrics *observability.Metrics
}

// Fetcher issues GET requests for one upstream.
type Fetcher struct {
	name    string
	client  *http.Client
	headers http.Header
	retry   RetryPolicy
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Fetcher. The breaker opens after more than ten consecutive
// transport or 5xx failures and half-opens after a minute.
func New(opts Options, logger *slog.Logger) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	retry := opts.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if retry.Clock == nil {
		retry.Clock = clockwork.NewRealClock()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures > 10
		},
		IsSuccessful: func(err error) bool {
			var fetchErr *domain.UpstreamFetchError
			if errors.As(err, &fetchErr) {
				return fetchErr.StatusCode != 0 && fetchErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "upstream", name, "from", from.String(), "to", to.String())
		},
	})

	return &Fetcher{
		name:    opts.Name,
		client:  client,
		headers: opts.Headers,
		retry:   retry,
		limiter: opts.Limiter,
		breaker: cb,
		metrics: metrics,
		logger:  logger.With("upstream", opts.Name),
	}
}

// Get fetches url and returns the response body. Non-2xx responses become a
// *domain.UpstreamFetchError; a 429 is retried per the policy and, once
// attempts run out, wraps domain.ErrRateLimited. Waiting between attempts
// blocks only the calling goroutine.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.retry.MaxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, &domain.UpstreamFetchError{URL: url, Err: err}
			}
		}

		body, err := f.do(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrRateLimited) || attempt == f.retry.MaxAttempts {
			break
		}

		f.metrics.UpstreamRetries.WithLabelValues(f.name).Inc()
		f.logger.Debug("rate limited, retrying", "url", url, "attempt", attempt, "delay", f.retry.Delay)
		if err := sleep(ctx, f.retry.Clock, f.retry.Delay); err != nil {
			return nil, &domain.UpstreamFetchError{URL: url, Err: err}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		f.metrics.UpstreamDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	}()

	result, err := f.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &domain.UpstreamFetchError{URL: url, Err: err}
		}
		for k, vs := range f.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &domain.UpstreamFetchError{URL: url, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &domain.UpstreamFetchError{URL: url, StatusCode: resp.StatusCode, Err: domain.ErrRateLimited}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &domain.UpstreamFetchError{URL: url, StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, &domain.UpstreamFetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
		}
		return body, nil
	})

	switch {
	case err == nil:
		f.metrics.UpstreamRequests.WithLabelValues(f.name, "success").Inc()
		return result.([]byte), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		f.metrics.UpstreamRequests.WithLabelValues(f.name, "circuit_open").Inc()
		return nil, &domain.UpstreamFetchError{URL: url, Err: err}
	case errors.Is(err, domain.ErrRateLimited):
		f.metrics.UpstreamRequests.WithLabelValues(f.name, "rate_limited").Inc()
		return nil, err
	default:
		f.metrics.UpstreamRequests.WithLabelValues(f.name, "error").Inc()
		return nil, err
	}
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
