package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

// Registry writes the reference rows, stock intake and treatment records that
// the ledger reads. Each call commits on its own.
type Registry struct {
	store *SQLStore
}

func (s *SQLStore) Registry() *Registry {
	return &Registry{store: s}
}

func (r *Registry) AddMedicine(ctx context.Context, name, unit string, unitPrice decimal.Decimal) (int64, error) {
	id, err := insertID(ctx, r.store.db, r.store.dialect,
		`INSERT INTO medicines (name, unit, unit_price) VALUES (?, ?, ?)`, name, unit, unitPrice)
	if err != nil {
		return 0, storeErr("insert medicine", err)
	}
	return id, nil
}

// ReceiveBatch records a delivered batch as active with its full quantity.
func (r *Registry) ReceiveBatch(ctx context.Context, medicineID int64, code string, expiry time.Time, quantity int) (int64, error) {
	if quantity < 0 {
		return 0, domain.ErrInvalidQuantity
	}
	id, err := insertID(ctx, r.store.db, r.store.dialect, `
		INSERT INTO medicine_batches (medicine_id, code, expiry_date, remaining, active, created_at)
		VALUES (?, ?, ?, ?, TRUE, ?)`,
		medicineID, code, dateArg(expiry), quantity, time.Now().UTC())
	if err != nil {
		return 0, storeErr("insert batch", err)
	}
	return id, nil
}

func (r *Registry) AddDentist(ctx context.Context, name, email string) (int64, error) {
	id, err := insertID(ctx, r.store.db, r.store.dialect,
		`INSERT INTO dentists (name, email) VALUES (?, ?)`, name, email)
	if err != nil {
		return 0, storeErr("insert dentist", err)
	}
	return id, nil
}

func (r *Registry) AddCustomer(ctx context.Context, name, phone string) (int64, error) {
	id, err := insertID(ctx, r.store.db, r.store.dialect,
		`INSERT INTO customers (name, phone) VALUES (?, ?)`, name, phone)
	if err != nil {
		return 0, storeErr("insert customer", err)
	}
	return id, nil
}

func (r *Registry) AddService(ctx context.Context, name string, unitPrice decimal.Decimal) (int64, error) {
	id, err := insertID(ctx, r.store.db, r.store.dialect,
		`INSERT INTO services (name, unit_price) VALUES (?, ?)`, name, unitPrice)
	if err != nil {
		return 0, storeErr("insert service", err)
	}
	return id, nil
}

// OpenTreatment records a visit with its service lines, priced as given.
func (r *Registry) OpenTreatment(ctx context.Context, customerID, dentistID int64, services []domain.ServiceLine) (int64, error) {
	tx, err := r.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	id, err := insertID(ctx, tx, r.store.dialect,
		`INSERT INTO treatment_records (customer_id, dentist_id, created_at) VALUES (?, ?, ?)`,
		customerID, dentistID, time.Now().UTC())
	if err != nil {
		return 0, storeErr("insert treatment record", err)
	}

	for i, line := range services {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO treatment_services (treatment_record_id, service_id, quantity, unit_price, line_no)
			VALUES (?, ?, ?, ?, ?)`),
			id, line.ServiceID, line.Quantity, line.UnitPrice, i)
		if err != nil {
			return 0, storeErr("insert treatment service", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit", err)
	}
	return id, nil
}
