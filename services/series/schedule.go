package series

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is the part of the aggregator the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context, maturities ...int64) error
}

// Scheduler runs periodic full refreshes on a cron schedule. A pass that is
// still running when the next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	target  Refresher
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler builds a scheduler bound to ctx. Each pass is limited to timeout.
func NewScheduler(ctx context.Context, target Refresher, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		target:  target,
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds the refresh task under a standard cron expression or a
// descriptor such as "@every 30s".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("refresh scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the loop and waits for a running pass to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("refresh scheduler stopped")
}

// RunNow performs one full refresh immediately.
func (s *Scheduler) RunNow() {
	if s.ctx.Err() != nil {
		return
	}
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := s.target.Refresh(ctx); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err, "elapsed", time.Since(start))
		return
	}
	s.logger.Debug("scheduled refresh complete", "elapsed", time.Since(start))
}
