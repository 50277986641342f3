package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

const DefaultHorizonDays = 10

// ExpiryReaper deactivates batches whose expiry falls inside the safety horizon.
// Deactivation is permanent; nothing in this package reactivates a batch.
type ExpiryReaper struct {
	now     func() time.Time
	metrics port.Metrics
	log     *slog.Logger
}

func NewExpiryReaper(now func() time.Time, metrics port.Metrics, log *slog.Logger) *ExpiryReaper {
	if now == nil {
		now = time.Now
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExpiryReaper{now: now, metrics: metrics, log: log}
}

// Reap deactivates every active batch expiring before today+horizonDays and
// returns how many rows the update changed. With nothing to reap it issues no write.
func (r *ExpiryReaper) Reap(ctx context.Context, tx port.Tx, horizonDays int) (int, error) {
	limit := domain.AddDays(r.now(), horizonDays)

	batches, err := tx.Batches().ListExpiring(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	n, err := tx.Batches().Deactivate(ctx, ids)
	if err != nil {
		return 0, err
	}

	r.metrics.BatchesReaped(n)
	r.log.InfoContext(ctx, "deactivated batches near expiry",
		slog.Int("count", n),
		slog.String("limit", limit.Format(domain.DateLayout)))
	return n, nil
}
