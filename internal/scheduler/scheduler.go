// Package scheduler provides the background loop that polls destination
// readiness and triggers settlement. Readiness checks are cheap and
// side-effect-free, so the loop can run at a short interval; a settlement
// that fails is simply retried on a later tick once the cause (usually fee
// balance) is resolved.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"poolgate.io/pgw/internal/types"
)

// Settler is the dispatcher surface the scheduler drives.
type Settler interface {
	Destinations() []types.Destination
	IsReady(ctx context.Context, dest types.Destination) (bool, error)
	Settle(ctx context.Context, dest types.Destination) (*types.SettlementRecord, error)
}

// Scheduler polls every configured destination on a fixed interval.
type Scheduler struct {
	interval time.Duration
	settler  Settler
	log      *zap.Logger
}

// New constructs a Scheduler.
func New(interval time.Duration, settler Settler, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{interval: interval, settler: settler, log: log}
}

// Run blocks until ctx is cancelled, polling immediately and then on every
// tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// initial pass immediately
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every destination once and settles the ready ones.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, dest := range s.settler.Destinations() {
		ready, err := s.settler.IsReady(ctx, dest)
		if err != nil {
			s.log.Warn("readiness check failed",
				zap.String("destination", string(dest)),
				zap.Error(err))
			continue
		}
		if !ready {
			continue
		}

		rec, err := s.settler.Settle(ctx, dest)
		if err != nil {
			// left for the next tick; the window stays open
			s.log.Warn("settlement attempt failed",
				zap.String("destination", string(dest)),
				zap.Error(err))
			continue
		}
		if rec != nil {
			s.log.Info("settlement completed",
				zap.String("destination", string(dest)),
				zap.String("message_id", rec.MessageID))
		}
	}
}
