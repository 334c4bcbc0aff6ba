package store

import (
	"context"
	"time"

	"postqueue/internal/observability"
)

// Sweeper periodically transitions scheduled records whose time has
// passed to their terminal status, as reported by the remote service.
type Sweeper struct {
	store    *Store
	logger   *observability.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewSweeper(store *Store, logger *observability.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context ends.
// The first sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info(ctx, "starting publish sweeper")
	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.run(ctx)
		case <-s.stopChan:
			s.logger.Info(ctx, "publish sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info(ctx, "publish sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweep loop to exit.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) run(ctx context.Context) {
	changed, err := s.store.sweepDue(ctx, time.Now())
	if err != nil {
		s.logger.Error(ctx, "publish sweep failed", err)
		return
	}
	if changed > 0 {
		s.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "transitioned", Value: changed},
		), "publish sweep transitioned due records")
	}
}
