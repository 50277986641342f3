package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

type DispenseItem struct {
	MedicineID int64 `json:"medicine_id"`
	Quantity   int   `json:"quantity"`
}

type DispenseRequest struct {
	RequestID         string         `json:"request_id"`
	TreatmentRecordID int64          `json:"treatment_record_id"`
	Items             []DispenseItem `json:"items"`
}

type DispenseResult struct {
	Allocations []domain.Allocation `json:"allocations"`
	Invoice     *domain.Invoice     `json:"invoice"`
}

type Options struct {
	HorizonDays int
	Now         func() time.Time
	Cache       port.CacheRepository
	Archive     port.StatementArchive
	Metrics     port.Metrics
	Logger      *slog.Logger
}

// ClinicService runs each business action in one transaction of the store.
type ClinicService struct {
	store        port.Store
	cache        port.CacheRepository
	archive      port.StatementArchive
	log          *slog.Logger
	horizonDays  int
	reaper       *ExpiryReaper
	allocator    *StockAllocator
	availability *AvailabilityView
	billing      *BillingEngine
}

func NewClinicService(store port.Store, opts Options) *ClinicService {
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	reaper := NewExpiryReaper(opts.Now, opts.Metrics, opts.Logger)
	return &ClinicService{
		store:        store,
		cache:        opts.Cache,
		archive:      opts.Archive,
		log:          opts.Logger,
		horizonDays:  opts.HorizonDays,
		reaper:       reaper,
		allocator:    NewStockAllocator(opts.Now, opts.Metrics),
		availability: NewAvailabilityView(reaper, opts.HorizonDays),
		billing:      NewBillingEngine(opts.Now, opts.Metrics),
	}
}

// Dispense takes the requested medicines out of stock, records them on the
// treatment's prescription and refreshes the draft invoice. A shortage on any
// item rolls the whole action back.
func (s *ClinicService) Dispense(ctx context.Context, req DispenseRequest) (*DispenseResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("dispense: no items: %w", domain.ErrInvalidQuantity)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("dispense medicine %d: %w", item.MedicineID, domain.ErrInvalidQuantity)
		}
	}

	idempotencyKey := ""
	if req.RequestID != "" && s.cache != nil {
		idempotencyKey = "dispense:" + req.RequestID
		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
	}

	var result DispenseResult
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := s.reaper.Reap(ctx, tx, s.horizonDays); err != nil {
			return err
		}

		rec, err := tx.Treatments().Get(ctx, req.TreatmentRecordID)
		if err != nil {
			return err
		}
		prescriptionID, err := tx.Treatments().EnsurePrescription(ctx, rec.ID)
		if err != nil {
			return err
		}

		for _, item := range req.Items {
			med, err := tx.References().Medicine(ctx, item.MedicineID)
			if err != nil {
				return fmt.Errorf("medicine %d: %w", item.MedicineID, err)
			}
			alloc, err := s.allocator.Allocate(ctx, tx.Batches(), item.MedicineID, item.Quantity)
			if err != nil {
				return err
			}
			if !alloc.Satisfied() {
				return &domain.ShortageError{
					MedicineID: item.MedicineID,
					Requested:  alloc.Requested,
					Allocated:  alloc.Deducted(),
				}
			}
			result.Allocations = append(result.Allocations, alloc)

			line := domain.MedicationLine{
				MedicineID: med.ID,
				Name:       med.Name,
				Quantity:   item.Quantity,
				Amount:     med.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			}
			if err := tx.Treatments().AddMedicationLine(ctx, prescriptionID, line); err != nil {
				return err
			}
		}

		inv, ok, err := s.billing.UpsertDraftInvoice(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("treatment record %d: %w", rec.ID, domain.ErrNotFound)
		}
		result.Invoice = inv
		return nil
	})
	if err != nil {
		if idempotencyKey != "" {
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); releaseErr != nil {
				s.log.ErrorContext(ctx, "release idempotency key failed",
					slog.String("key", idempotencyKey), slog.Any("error", releaseErr))
			}
		}
		return nil, err
	}

	return &result, nil
}

func (s *ClinicService) Available(ctx context.Context) ([]domain.MedicineStock, error) {
	var stock []domain.MedicineStock
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		stock, err = s.availability.ListAvailable(ctx, tx)
		return err
	})
	return stock, err
}

func (s *ClinicService) ReapExpired(ctx context.Context, horizonDays int) (int, error) {
	if horizonDays <= 0 {
		horizonDays = s.horizonDays
	}
	var n int
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		n, err = s.reaper.Reap(ctx, tx, horizonDays)
		return err
	})
	return n, err
}

func (s *ClinicService) Bill(ctx context.Context, recordID int64) (*domain.Bill, error) {
	var bill *domain.Bill
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		bill, err = s.billing.ComputeTotal(ctx, tx, recordID)
		return err
	})
	return bill, err
}

// SaveDraftInvoice returns false when the treatment record does not exist.
func (s *ClinicService) SaveDraftInvoice(ctx context.Context, recordID int64) (*domain.Invoice, bool, error) {
	var (
		inv *domain.Invoice
		ok  bool
	)
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		inv, ok, err = s.billing.UpsertDraftInvoice(ctx, tx, recordID)
		return err
	})
	return inv, ok, err
}

// RecordPayment commits the payment, then archives the paid statement when an
// archive is configured. Archive failures do not undo the payment.
func (s *ClinicService) RecordPayment(ctx context.Context, recordID int64, amount decimal.Decimal, accountantID int64) (*domain.Invoice, error) {
	var (
		inv  *domain.Invoice
		bill *domain.Bill
	)
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		inv, err = s.billing.RecordPayment(ctx, tx, recordID, amount, accountantID)
		if err != nil {
			return err
		}
		if s.archive == nil {
			return nil
		}
		bill, err = s.billing.ComputeTotal(ctx, tx, recordID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if bill != nil {
		s.archiveStatement(ctx, inv, bill)
	}
	return inv, nil
}

func (s *ClinicService) Unpaid(ctx context.Context) ([]domain.UnpaidRecord, error) {
	var records []domain.UnpaidRecord
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		records, err = s.billing.ListUnpaid(ctx, tx)
		return err
	})
	return records, err
}

type statement struct {
	Invoice *domain.Invoice `json:"invoice"`
	Bill    *domain.Bill    `json:"bill"`
}

func StatementKey(recordID int64) string {
	return fmt.Sprintf("statements/%d.json", recordID)
}

func (s *ClinicService) archiveStatement(ctx context.Context, inv *domain.Invoice, bill *domain.Bill) {
	body, err := json.Marshal(statement{Invoice: inv, Bill: bill})
	if err != nil {
		s.log.ErrorContext(ctx, "encode statement failed", slog.Int64("record", inv.TreatmentRecordID), slog.Any("error", err))
		return
	}
	key := StatementKey(inv.TreatmentRecordID)
	if err := s.archive.PutStatement(ctx, key, body); err != nil {
		s.log.ErrorContext(ctx, "archive statement failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	s.log.InfoContext(ctx, "archived statement", slog.String("key", key))
}
