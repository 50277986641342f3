package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

type medicineRow struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Unit      string          `db:"unit"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

func (r medicineRow) toDomain() domain.Medicine {
	return domain.Medicine{ID: r.ID, Name: r.Name, Unit: r.Unit, UnitPrice: r.UnitPrice}
}

type referenceRepository struct {
	ext sqlx.ExtContext
}

func (r *referenceRepository) Medicine(ctx context.Context, id int64) (*domain.Medicine, error) {
	var row medicineRow
	err := sqlx.GetContext(ctx, r.ext, &row, r.ext.Rebind(
		`SELECT id, name, unit, unit_price FROM medicines WHERE id = ?`), id)
	if err != nil {
		return nil, notFoundOr("select medicine", err)
	}
	m := row.toDomain()
	return &m, nil
}

func (r *referenceRepository) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	var rows []medicineRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows,
		`SELECT id, name, unit, unit_price FROM medicines ORDER BY name, id`); err != nil {
		return nil, storeErr("select medicines", err)
	}
	out := make([]domain.Medicine, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *referenceRepository) ListDentists(ctx context.Context) ([]domain.Dentist, error) {
	dentists := []domain.Dentist{}
	if err := sqlx.SelectContext(ctx, r.ext, &dentists,
		`SELECT id, name, email FROM dentists ORDER BY name, id`); err != nil {
		return nil, storeErr("select dentists", err)
	}
	return dentists, nil
}

func (r *referenceRepository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	if err := sqlx.SelectContext(ctx, r.ext, &customers,
		`SELECT id, name, phone FROM customers ORDER BY name, id`); err != nil {
		return nil, storeErr("select customers", err)
	}
	return customers, nil
}

func (r *referenceRepository) ListServices(ctx context.Context) ([]domain.Service, error) {
	services := []domain.Service{}
	if err := sqlx.SelectContext(ctx, r.ext, &services,
		`SELECT id, name, unit_price FROM services ORDER BY name, id`); err != nil {
		return nil, storeErr("select services", err)
	}
	return services, nil
}

func (r *referenceRepository) ListCustomersByDentist(ctx context.Context, dentistID int64) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	err := sqlx.SelectContext(ctx, r.ext, &customers, r.ext.Rebind(`
		SELECT DISTINCT c.id, c.name, c.phone
		FROM customers c
		JOIN treatment_records r ON r.customer_id = c.id
		WHERE r.dentist_id = ?
		ORDER BY c.name, c.id`), dentistID)
	if err != nil {
		return nil, storeErr("select customers of dentist", err)
	}
	return customers, nil
}
