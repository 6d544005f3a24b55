package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts expired sessions, independent of the
// read-triggered expiry checks in the verification service.
type Sweeper struct {
	store    SessionStore
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewSweeper constructs a sweeper over the given store.
func NewSweeper(store SessionStore, ttl, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, ttl: ttl, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.SweepExpired(ctx, s.ttl, time.Now().UTC())
				if err != nil {
					s.logger.Warn("session sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					s.logger.Info("session sweep", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (s *Sweeper) Wait() {
	<-s.done
}
