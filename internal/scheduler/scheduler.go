// Package scheduler wires the recurring due-reminder run onto a cron
// trigger. An invalid cron expression is a startup-time configuration error,
// never a silent no-op.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

// Dispatcher is the slice of the dispatch engine the scheduler needs.
type Dispatcher interface {
	RunDue(ctx context.Context) (*models.DispatchSummary, error)
}

// Scheduler triggers the batch run on the configured cadence.
type Scheduler struct {
	engine     *cron.Cron
	dispatch   Dispatcher
	runTimeout time.Duration
	logger     *zap.Logger
}

// New validates the cron spec and registers the job. A bad spec returns an
// error so the caller can fail startup.
func New(spec string, dispatch Dispatcher, runTimeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}

	s := &Scheduler{
		engine:     cron.New(cron.WithLocation(time.Local)),
		dispatch:   dispatch,
		runTimeout: runTimeout,
		logger:     logger,
	}

	if _, err := s.engine.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid scheduler cron spec %q: %w", spec, err)
	}

	return s, nil
}

// Start begins triggering jobs.
func (s *Scheduler) Start() {
	s.engine.Start()
	s.logger.Info("reminder scheduler started")
}

// Stop waits for a running job to finish before returning.
func (s *Scheduler) Stop() {
	ctx := s.engine.Stop()
	<-ctx.Done()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	summary, err := s.dispatch.RunDue(ctx)
	if err != nil {
		s.logger.Error("scheduled reminder run failed", zap.Error(err))
		return
	}

	s.logger.Info("scheduled reminder run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)
}
