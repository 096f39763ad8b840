package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PruneSchedule is how often idle limiter state is dropped
const PruneSchedule = "@every 10m"

// Sweeper defaults overdue loans
type Sweeper interface {
	SweepDefaults(ctx context.Context, graceDays int) (int, error)
}

// PruneFunc drops idle state and reports how many keys it removed
type PruneFunc func() int

// Scheduler runs the background maintenance jobs
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	graceDays int
	log       *logrus.Logger

	mu      sync.Mutex
	pruners []PruneFunc
	running bool
	timeout time.Duration
}

// New creates a scheduler. Jobs are registered by Start.
// A nil sweeper is allowed until SetSweeper is called.
func New(sweeper Sweeper, graceDays int, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper:   sweeper,
		graceDays: graceDays,
		log:       log,
		timeout:   5 * time.Minute,
	}
}

// SetSweeper replaces the sweep target. It must be called before Start.
func (s *Scheduler) SetSweeper(sw Sweeper) {
	s.mu.Lock()
	s.sweeper = sw
	s.mu.Unlock()
}

// AddPruner registers a limiter cleanup run on PruneSchedule
func (s *Scheduler) AddPruner(fn PruneFunc) {
	s.mu.Lock()
	s.pruners = append(s.pruners, fn)
	s.mu.Unlock()
}

// Start registers the jobs and starts the cron loop.
// An empty sweepSpec disables the default sweep.
func (s *Scheduler) Start(sweepSpec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if sweepSpec != "" {
		if s.sweeper == nil {
			return fmt.Errorf("default sweep scheduled without a sweeper")
		}
		if _, err := s.cron.AddFunc(sweepSpec, s.sweepJob); err != nil {
			return fmt.Errorf("invalid DEFAULT_SWEEP_SCHEDULE %q: %w", sweepSpec, err)
		}
	}
	if len(s.pruners) > 0 {
		if _, err := s.cron.AddFunc(PruneSchedule, func() { s.RunPrune() }); err != nil {
			return fmt.Errorf("failed to schedule limiter prune: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.log.WithFields(logrus.Fields{
		"sweep_schedule": sweepSpec,
		"grace_days":     s.graceDays,
		"pruners":        len(s.pruners),
	}).Info("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.RunSweep(ctx)
}

// RunSweep defaults every loan past its grace period
func (s *Scheduler) RunSweep(ctx context.Context) (int, error) {
	n, err := s.sweeper.SweepDefaults(ctx, s.graceDays)
	if err != nil {
		s.log.WithError(err).WithField("defaulted", n).Error("Default sweep failed")
		return n, err
	}
	if n > 0 {
		s.log.WithField("defaulted", n).Info("Default sweep completed")
	} else {
		s.log.Debug("Default sweep found no overdue loans")
	}
	return n, nil
}

// RunPrune runs every registered pruner and returns the keys removed
func (s *Scheduler) RunPrune() int {
	s.mu.Lock()
	pruners := append([]PruneFunc(nil), s.pruners...)
	s.mu.Unlock()

	total := 0
	for _, fn := range pruners {
		total += fn()
	}
	if total > 0 {
		s.log.WithField("removed", total).Debug("Pruned idle limiter keys")
	}
	return total
}
