// Package scheduler drives the processor's periodic work: batch cycles
// and reclaiming of stuck claims.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reservepay/retryd/internal/core"
)

// Options configure the background loops.
type Options struct {
	// CycleInterval is the fixed interval between batch cycles. Ignored
	// when CycleCron is set.
	CycleInterval time.Duration
	// CycleCron optionally schedules batch cycles by cron expression
	// (with seconds field), for operators who want off-peak processing.
	CycleCron string
	// ReclaimInterval is the interval between stuck-item sweeps.
	ReclaimInterval time.Duration
	// TickTimeout bounds a single loop invocation.
	TickTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.CycleInterval <= 0 {
		o.CycleInterval = 15 * time.Second
	}
	if o.ReclaimInterval <= 0 {
		o.ReclaimInterval = time.Minute
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = 2 * time.Minute
	}
	return o
}

// Scheduler runs background loops for the retry processor.
type Scheduler struct {
	runner   core.CycleRunner
	opts     Options
	cron     *cron.Cron
	stop     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// New creates a new Scheduler.
func New(runner core.CycleRunner, logger *slog.Logger, opts Options) *Scheduler {
	return &Scheduler{
		runner: runner,
		opts:   opts.withDefaults(),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// Start begins all background scheduling goroutines.
func (s *Scheduler) Start() error {
	if s.opts.CycleCron != "" {
		c := cron.New(cron.WithSeconds())
		if _, err := c.AddFunc(s.opts.CycleCron, func() {
			s.tick("batch-cycle", s.runCycle)
		}); err != nil {
			return core.NewConfigError("invalid cycle cron expression: "+s.opts.CycleCron, map[string]any{
				"expression": s.opts.CycleCron,
			})
		}
		s.cron = c
		c.Start()
		s.logger.Info("batch cycles scheduled by cron", "expression", s.opts.CycleCron)
	} else {
		go s.runLoop("batch-cycle", s.opts.CycleInterval, s.runCycle)
	}

	// Reclaim items stuck in processing past their claim deadline.
	go s.runLoop("reclaimer", s.opts.ReclaimInterval, s.runReclaim)

	return nil
}

// Stop signals all background goroutines to stop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.cron != nil {
			s.cron.Stop()
		}
	})
}

func (s *Scheduler) runLoop(name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(name, fn)
		}
	}
}

func (s *Scheduler) tick(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.TickTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduler loop error", "loop", name, "error", err)
	}
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	_, err := s.runner.RunBatchCycle(ctx)
	return err
}

func (s *Scheduler) runReclaim(ctx context.Context) error {
	_, err := s.runner.Reclaim(ctx)
	return err
}
