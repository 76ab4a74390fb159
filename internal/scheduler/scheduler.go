// Package scheduler triggers harvest passes on a fixed interval per source.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/harvest"
)

// Runner performs one harvest pass over a source.
type Runner interface {
	Run(ctx context.Context, src domain.Source) (*harvest.Summary, error)
}

// Scheduler runs each configured source every interval. A source's next pass
// never starts while its previous one is still running.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	intervals map[domain.Source]time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
}

// New creates a Scheduler. Sources with a non-positive interval are not
// scheduled.
func New(runner Runner, intervals map[domain.Source]time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		intervals: intervals,
		logger:    logger,
	}
}

// Start schedules every source and starts the underlying scheduler. The first
// pass of each source runs immediately. Passes run under ctx until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, src := range domain.Sources {
		interval := s.intervals[src]
		if interval <= 0 {
			s.logger.Info("source not scheduled", "source", src)
			continue
		}
		if _, err := s.scheduler.Every(interval).Tag(string(src)).Do(s.pass, ctx, src); err != nil {
			s.cancel()
			return fmt.Errorf("schedule %s: %w", src, err)
		}
		s.logger.Info("source scheduled", "source", src, "interval", interval)
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels in-flight passes and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
}

func (s *Scheduler) pass(ctx context.Context, src domain.Source) {
	if ctx.Err() != nil {
		return
	}
	// Run logs its own outcome.
	if _, err := s.runner.Run(ctx, src); err != nil {
		s.logger.Debug("scheduled pass failed", "source", src, "error", err)
	}
}
