package ledger

import (
	"context"
	"log/slog"
	"time"
)

const reapBatchSize = 100

// Reaper periodically refunds reservations orphaned by crashed or timed-out requests.
type Reaper struct {
	ledger     *Ledger
	interval   time.Duration
	staleAfter time.Duration
	log        *slog.Logger
}

func NewReaper(l *Ledger, interval, staleAfter time.Duration, log *slog.Logger) *Reaper {
	return &Reaper{ledger: l, interval: interval, staleAfter: staleAfter, log: log}
}

// Run blocks until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reservation reaper started", "interval", r.interval.String(), "stale_after", r.staleAfter.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce reaps one batch and returns how many reservations were refunded.
func (r *Reaper) RunOnce(ctx context.Context) int {
	n, err := r.ledger.ReapStale(ctx, r.staleAfter, reapBatchSize)
	if err != nil {
		r.log.Error("reap stale reservations", "err", err)
		return 0
	}
	if n > 0 {
		r.log.Warn("reaped stale reservations", "count", n)
	}
	return n
}
