package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

// Store hands out transaction scopes. Business actions run inside exactly one.
type Store interface {
	// WithinTx runs fn in a transaction, committing when fn returns nil and rolling back otherwise
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// References reads reference data outside any transaction
	References() ReferenceRepository
}

// Tx exposes repositories bound to one open transaction.
type Tx interface {
	Batches() BatchRepository
	Treatments() TreatmentRepository
	Invoices() InvoiceRepository
	References() ReferenceRepository
}

type BatchRepository interface {
	// ListExpiring returns active batches whose expiry date is before the given date
	ListExpiring(ctx context.Context, before time.Time) ([]domain.MedicineBatch, error)

	// Deactivate sets active=false on the given batches still active, in a single
	// statement, and returns how many rows it changed
	Deactivate(ctx context.Context, ids []int64) (int, error)

	// ListAllocatable locks and returns active batches of a medicine with stock left,
	// not expired on the given date, earliest expiry first
	ListAllocatable(ctx context.Context, medicineID int64, today time.Time) ([]domain.MedicineBatch, error)

	// SaveRemaining writes back the remaining quantity of each batch
	SaveRemaining(ctx context.Context, batches []domain.MedicineBatch) error

	// SumAvailable aggregates remaining stock over active batches per medicine, omitting zero totals
	SumAvailable(ctx context.Context) ([]domain.MedicineStock, error)
}

type TreatmentRepository interface {
	// Get loads a record with its service lines and prescription, or domain.ErrNotFound
	Get(ctx context.Context, id int64) (*domain.TreatmentRecord, error)

	// EnsurePrescription returns the prescription id of a record, creating an empty one if needed
	EnsurePrescription(ctx context.Context, recordID int64) (int64, error)

	// AddMedicationLine appends a dispensed line to a prescription
	AddMedicationLine(ctx context.Context, prescriptionID int64, line domain.MedicationLine) error
}

type InvoiceRepository interface {
	// FindByRecord returns the invoice of a treatment record, or domain.ErrNotFound
	FindByRecord(ctx context.Context, recordID int64) (*domain.Invoice, error)

	Create(ctx context.Context, inv *domain.Invoice) error

	// UpdateTotal overwrites the total only
	UpdateTotal(ctx context.Context, id int64, total decimal.Decimal, at time.Time) error

	// MarkPaid sets paid, amount, accountant and paid time
	MarkPaid(ctx context.Context, id int64, amount decimal.Decimal, accountantID int64, at time.Time) error

	// ListUnpaidRecords returns records with no invoice plus records whose invoice is unpaid
	ListUnpaidRecords(ctx context.Context) ([]domain.UnpaidRecord, error)
}

type ReferenceRepository interface {
	Medicine(ctx context.Context, id int64) (*domain.Medicine, error)
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	ListDentists(ctx context.Context) ([]domain.Dentist, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListServices(ctx context.Context) ([]domain.Service, error)

	// ListCustomersByDentist returns customers having at least one treatment record with the dentist
	ListCustomersByDentist(ctx context.Context, dentistID int64) ([]domain.Customer, error)
}
