package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

const (
	InvoiceKindDraft   = "draft"
	InvoiceKindPayment = "payment"
)

// BillingEngine owns the invoice of each treatment record.
type BillingEngine struct {
	now     func() time.Time
	metrics port.Metrics
}

func NewBillingEngine(now func() time.Time, metrics port.Metrics) *BillingEngine {
	if now == nil {
		now = time.Now
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &BillingEngine{now: now, metrics: metrics}
}

// ComputeTotal prices a treatment record. Medication amounts are taken as
// recorded at dispensing time, not recomputed.
func (e *BillingEngine) ComputeTotal(ctx context.Context, tx port.Tx, recordID int64) (*domain.Bill, error) {
	rec, err := tx.Treatments().Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	bill := &domain.Bill{
		TreatmentRecordID: rec.ID,
		CustomerName:      rec.CustomerName,
		CreatedAt:         rec.CreatedAt,
		Services:          make([]domain.ChargeLine, 0, len(rec.Services)),
		Medications:       []domain.ChargeLine{},
		ServiceSubtotal:   decimal.Zero,
		MedicineSubtotal:  decimal.Zero,
	}

	for _, line := range rec.Services {
		amount := line.Amount()
		bill.ServiceSubtotal = bill.ServiceSubtotal.Add(amount)
		bill.Services = append(bill.Services, domain.ChargeLine{
			ItemID:    line.ServiceID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Amount:    amount,
		})
	}

	if rec.Prescription != nil {
		for _, line := range rec.Prescription.Lines {
			bill.MedicineSubtotal = bill.MedicineSubtotal.Add(line.Amount)
			bill.Medications = append(bill.Medications, domain.ChargeLine{
				ItemID:    line.MedicineID,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: unitPriceOf(line),
				Amount:    line.Amount,
			})
		}
	}
	bill.Total = bill.ServiceSubtotal.Add(bill.MedicineSubtotal)

	inv, err := tx.Invoices().FindByRecord(ctx, rec.ID)
	switch {
	case err == nil:
		id := inv.ID
		bill.InvoiceID = &id
		bill.Paid = inv.Paid
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	return bill, nil
}

// UpsertDraftInvoice recomputes the total and writes it to the record's
// invoice, creating an unpaid one when none exists. It reports false, with no
// error, when the record does not exist. Paid status is never changed here.
func (e *BillingEngine) UpsertDraftInvoice(ctx context.Context, tx port.Tx, recordID int64) (*domain.Invoice, bool, error) {
	bill, err := e.ComputeTotal(ctx, tx, recordID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	now := e.now()
	inv, err := tx.Invoices().FindByRecord(ctx, recordID)
	switch {
	case err == nil:
		if err := tx.Invoices().UpdateTotal(ctx, inv.ID, bill.Total, now); err != nil {
			return nil, false, err
		}
		inv.Total = bill.Total
		inv.UpdatedAt = now
	case errors.Is(err, domain.ErrNotFound):
		inv = &domain.Invoice{
			TreatmentRecordID: recordID,
			Total:             bill.Total,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Invoices().Create(ctx, inv); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, err
	}

	e.metrics.InvoiceWritten(InvoiceKindDraft)
	return inv, true, nil
}

// RecordPayment marks the record's invoice paid with the given amount and
// accountant, creating it already paid when missing. The amount is trusted:
// callers compute the total first and pass a consistent value. A missing
// treatment record yields domain.ErrNotFound.
func (e *BillingEngine) RecordPayment(ctx context.Context, tx port.Tx, recordID int64, amount decimal.Decimal, accountantID int64) (*domain.Invoice, error) {
	now := e.now()
	inv, err := tx.Invoices().FindByRecord(ctx, recordID)
	switch {
	case err == nil:
		if err := tx.Invoices().MarkPaid(ctx, inv.ID, amount, accountantID, now); err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrNotFound):
		if _, err := tx.Treatments().Get(ctx, recordID); err != nil {
			return nil, err
		}
		inv = withPayment(&domain.Invoice{TreatmentRecordID: recordID, CreatedAt: now}, amount, accountantID, now)
		if err := tx.Invoices().Create(ctx, inv); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	withPayment(inv, amount, accountantID, now)
	e.metrics.InvoiceWritten(InvoiceKindPayment)
	return inv, nil
}

func (e *BillingEngine) ListUnpaid(ctx context.Context, tx port.Tx) ([]domain.UnpaidRecord, error) {
	return tx.Invoices().ListUnpaidRecords(ctx)
}

func withPayment(inv *domain.Invoice, amount decimal.Decimal, accountantID int64, at time.Time) *domain.Invoice {
	paidAt := at
	acc := accountantID
	inv.Paid = true
	inv.Total = amount
	inv.AccountantID = &acc
	inv.PaidAt = &paidAt
	inv.UpdatedAt = at
	return inv
}

func unitPriceOf(line domain.MedicationLine) decimal.Decimal {
	if line.Quantity == 0 {
		return decimal.Zero
	}
	return line.Amount.Div(decimal.NewFromInt(int64(line.Quantity)))
}
