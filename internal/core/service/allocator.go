package service

import (
	"context"
	"time"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

// StockAllocator deducts stock from the batches expiring soonest.
//
// It never commits. When the returned allocation is not satisfied the batches
// it touched stay partially decremented inside the caller's transaction, and
// the caller has to roll that transaction back.
type StockAllocator struct {
	now     func() time.Time
	metrics port.Metrics
}

func NewStockAllocator(now func() time.Time, metrics port.Metrics) *StockAllocator {
	if now == nil {
		now = time.Now
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &StockAllocator{now: now, metrics: metrics}
}

func (a *StockAllocator) Allocate(ctx context.Context, batches port.BatchRepository, medicineID int64, quantity int) (domain.Allocation, error) {
	alloc := domain.Allocation{MedicineID: medicineID, Requested: quantity, Outstanding: quantity}
	if quantity <= 0 {
		return alloc, domain.ErrInvalidQuantity
	}

	candidates, err := batches.ListAllocatable(ctx, medicineID, domain.DateOf(a.now()))
	if err != nil {
		return alloc, err
	}

	var touched []domain.MedicineBatch
	for i := range candidates {
		if alloc.Outstanding == 0 {
			break
		}
		b := &candidates[i]
		took := b.Deduct(alloc.Outstanding)
		if took == 0 {
			continue
		}
		alloc.Outstanding -= took
		alloc.Deductions = append(alloc.Deductions, domain.Deduction{
			BatchID:    b.ID,
			ExpiryDate: b.ExpiryDate,
			Quantity:   took,
			Remaining:  b.Remaining,
		})
		touched = append(touched, *b)
	}

	if len(touched) > 0 {
		if err := batches.SaveRemaining(ctx, touched); err != nil {
			return alloc, err
		}
	}

	a.metrics.AllocationFinished(alloc.Satisfied())
	return alloc, nil
}
