package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler releases seats that are booked in the inventory but held by
// no live ticket. Such seats are left behind when a compensating release
// fails or the process dies between claim and ledger write.
type Reconciler struct {
	sweeper  OrphanSweeper
	grace    time.Duration
	interval time.Duration
	batch    int
	log      *zap.Logger
	now      func() time.Time
}

// NewReconciler builds a reconciler. Seats claimed less than grace ago are
// never touched, which leaves in-flight reservations alone.
func NewReconciler(sweeper OrphanSweeper, interval, grace time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		sweeper:  sweeper,
		grace:    grace,
		interval: interval,
		batch:    200,
		log:      log.Named("reconciler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs one sweep and returns how many seats it released.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.grace)
	refs, err := r.sweeper.OrphanedClaims(ctx, cutoff, r.batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, ref := range refs {
		ok, err := r.sweeper.ReleaseOrphan(ctx, ref, cutoff)
		if err != nil {
			r.log.Warn("release orphaned seat", zap.Uint64("event_id", ref.EventID), zap.Int("seat", ref.SeatNumber), zap.Error(err))
			continue
		}
		if ok {
			released++
			r.log.Info("released orphaned seat", zap.Uint64("event_id", ref.EventID), zap.Int("seat", ref.SeatNumber))
		}
	}
	return released, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", zap.Duration("interval", r.interval), zap.Duration("grace", r.grace))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconcile sweep failed", zap.Error(err))
			}
		}
	}
}
