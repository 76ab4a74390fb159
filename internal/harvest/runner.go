package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

// maxRecordedFailures caps Summary.Failures; the counters stay exact.
const maxRecordedFailures = 100

// Failure stages.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageWrite     = "write"
)

// Unit is one independently fetchable piece of a source: a weather station
// product, an air-quality site or a traffic feature.
type Unit[R any] struct {
	ID    string
	Fetch func(ctx context.Context) ([]R, error)
}

// Job describes one harvest pass over a source.
type Job[R any] struct {
	Source domain.Source
	Index  string
	// Enumerate lists the units to fetch. An error, or no units at all,
	// fails the pass.
	Enumerate func(ctx context.Context) ([]Unit[R], error)
	Normalize func(R) (domain.Document, error)
}

// Failure is one contained unit or record error.
type Failure struct {
	Unit  string `json:"unit"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Summary is the outcome of one harvest pass.
type Summary struct {
	Source          domain.Source `json:"source"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Units           int           `json:"units"`
	Records         int           `json:"records"`
	Written         int           `json:"written"`
	AlreadyPresent  int           `json:"already_present"`
	SkippedFetch    int           `json:"skipped_fetch"`
	FailedNormalize int           `json:"failed_normalize"`
	FailedWrite     int           `json:"failed_write"`
	Failures        []Failure     `json:"failures,omitempty"`
	Error           string        `json:"error,omitempty"`

	// NewDocuments holds what this pass wrote, for the observation feed.
	NewDocuments []domain.Document `json:"-"`
}

// Succeeded is the number of units whose fetch succeeded.
func (s *Summary) Succeeded() int {
	return s.Units - s.SkippedFetch
}

// tally serializes Summary updates from concurrent workers.
type tally struct {
	mu  sync.Mutex
	sum *Summary
}

func (t *tally) fail(unit, stage string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch stage {
	case StageFetch:
		t.sum.SkippedFetch++
	case StageNormalize:
		t.sum.FailedNormalize++
	case StageWrite:
		t.sum.FailedWrite++
	}
	if len(t.sum.Failures) < maxRecordedFailures {
		t.sum.Failures = append(t.sum.Failures, Failure{Unit: unit, Stage: stage, Error: err.Error()})
	}
}

func (t *tally) fetched(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sum.Records += n
}

func (t *tally) wrote(res WriteResult, doc domain.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if res == Written {
		t.sum.Written++
		t.sum.NewDocuments = append(t.sum.NewDocuments, doc)
		return
	}
	t.sum.AlreadyPresent++
}

// run drives fetch, normalize and write for every unit of job on a bounded
// pool. Unit and record errors are contained in the summary; only a failed
// enumeration, an unreachable store or cancellation of ctx fail the pass.
func run[R any](ctx context.Context, h *Harvester, job Job[R]) (*Summary, error) {
	logger := h.logger.With("source", job.Source)
	sum := &Summary{Source: job.Source, StartedAt: domain.Now()}

	units, err := job.Enumerate(ctx)
	if err == nil && len(units) == 0 {
		err = domain.ErrNoUnits
	}
	if err != nil {
		return sum, fmt.Errorf("enumerate %s: %w", job.Source, err)
	}
	sum.Units = len(units)
	logger.Info("harvest started", "units", len(units), "workers", h.workers)

	t := &tally{sum: sum}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for _, u := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return processUnit(gctx, h, job, u, t, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func processUnit[R any](ctx context.Context, h *Harvester, job Job[R], u Unit[R], t *tally, logger *slog.Logger) error {
	src := string(job.Source)

	records, err := u.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("unit fetch failed, skipping", "unit", u.ID, "error", err)
		h.metrics.HarvestFailures.WithLabelValues(src, StageFetch).Inc()
		t.fail(u.ID, StageFetch, err)
		return nil
	}
	t.fetched(len(records))

	for _, rec := range records {
		doc, err := job.Normalize(rec)
		if err != nil {
			logger.Warn("normalize failed, skipping record", "unit", u.ID, "error", err)
			h.metrics.HarvestFailures.WithLabelValues(src, StageNormalize).Inc()
			t.fail(u.ID, StageNormalize, err)
			continue
		}

		res, err := h.writer.WriteIfAbsent(ctx, job.Index, doc)
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				logger.Error("document store unavailable, aborting harvest", "unit", u.ID, "error", err)
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("write failed, skipping record", "unit", u.ID, "key", doc.IdentityKey(), "error", err)
			h.metrics.HarvestFailures.WithLabelValues(src, StageWrite).Inc()
			t.fail(u.ID, StageWrite, err)
			continue
		}

		switch res {
		case Written:
			h.metrics.DocumentsWritten.WithLabelValues(src).Inc()
		case AlreadyPresent:
			h.metrics.DocumentsAlreadyPresent.WithLabelValues(src).Inc()
		}
		t.wrote(res, doc)
	}
	return nil
}
