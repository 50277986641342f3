package service

import (
	"context"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

// AvailabilityView reports sellable stock per medicine. It reaps first so a
// batch inside the horizon is never counted.
type AvailabilityView struct {
	reaper      *ExpiryReaper
	horizonDays int
}

func NewAvailabilityView(reaper *ExpiryReaper, horizonDays int) *AvailabilityView {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &AvailabilityView{reaper: reaper, horizonDays: horizonDays}
}

func (v *AvailabilityView) ListAvailable(ctx context.Context, tx port.Tx) ([]domain.MedicineStock, error) {
	if _, err := v.reaper.Reap(ctx, tx, v.horizonDays); err != nil {
		return nil, err
	}
	return tx.Batches().SumAvailable(ctx)
}
