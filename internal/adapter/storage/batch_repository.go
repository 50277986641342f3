package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

const batchColumns = `id, medicine_id, code, expiry_date, remaining, active, created_at`

type batchRow struct {
	ID         int64  `db:"id"`
	MedicineID int64  `db:"medicine_id"`
	Code       string `db:"code"`
	ExpiryDate dbDate `db:"expiry_date"`
	Remaining  int    `db:"remaining"`
	Active     bool   `db:"active"`
	CreatedAt  dbTime `db:"created_at"`
}

func (r batchRow) toDomain() domain.MedicineBatch {
	return domain.MedicineBatch{
		ID:         r.ID,
		MedicineID: r.MedicineID,
		Code:       r.Code,
		ExpiryDate: r.ExpiryDate.Time,
		Remaining:  r.Remaining,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt.Time,
	}
}

type batchRepository struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

func (r *batchRepository) ListExpiring(ctx context.Context, before time.Time) ([]domain.MedicineBatch, error) {
	var rows []batchRow
	err := sqlx.SelectContext(ctx, r.ext, &rows, r.ext.Rebind(`
		SELECT `+batchColumns+`
		FROM medicine_batches
		WHERE active = TRUE AND expiry_date < ?
		ORDER BY expiry_date, id`), dateArg(before))
	if err != nil {
		return nil, storeErr("select expiring batches", err)
	}
	return toBatches(rows), nil
}

func (r *batchRepository) Deactivate(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE medicine_batches SET active = FALSE WHERE active = TRUE AND id IN (?)`, ids)
	if err != nil {
		return 0, storeErr("deactivate batches", err)
	}
	res, err := r.ext.ExecContext(ctx, r.ext.Rebind(query), args...)
	if err != nil {
		return 0, storeErr("deactivate batches", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("deactivate batches", err)
	}
	return int(n), nil
}

func (r *batchRepository) ListAllocatable(ctx context.Context, medicineID int64, today time.Time) ([]domain.MedicineBatch, error) {
	var rows []batchRow
	err := sqlx.SelectContext(ctx, r.ext, &rows, r.ext.Rebind(`
		SELECT `+batchColumns+`
		FROM medicine_batches
		WHERE medicine_id = ? AND active = TRUE AND remaining > 0 AND expiry_date >= ?
		ORDER BY expiry_date ASC, id ASC`+r.dialect.LockRows), medicineID, dateArg(today))
	if err != nil {
		return nil, storeErr("select allocatable batches", err)
	}
	return toBatches(rows), nil
}

func (r *batchRepository) SaveRemaining(ctx context.Context, batches []domain.MedicineBatch) error {
	query := r.ext.Rebind(`UPDATE medicine_batches SET remaining = ? WHERE id = ?`)
	for _, b := range batches {
		if _, err := r.ext.ExecContext(ctx, query, b.Remaining, b.ID); err != nil {
			return storeErr("update batch remaining", err)
		}
	}
	return nil
}

type stockRow struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Unit      string          `db:"unit"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Available int64           `db:"available"`
}

func (r *batchRepository) SumAvailable(ctx context.Context) ([]domain.MedicineStock, error) {
	var rows []stockRow
	err := sqlx.SelectContext(ctx, r.ext, &rows, `
		SELECT m.id, m.name, m.unit, m.unit_price, SUM(b.remaining) AS available
		FROM medicines m
		JOIN medicine_batches b ON b.medicine_id = m.id
		WHERE b.active = TRUE
		GROUP BY m.id, m.name, m.unit, m.unit_price
		HAVING SUM(b.remaining) > 0`)
	if err != nil {
		return nil, storeErr("sum available stock", err)
	}

	stock := make([]domain.MedicineStock, 0, len(rows))
	for _, row := range rows {
		stock = append(stock, domain.MedicineStock{
			Medicine: domain.Medicine{
				ID:        row.ID,
				Name:      row.Name,
				Unit:      row.Unit,
				UnitPrice: row.UnitPrice,
			},
			Available: int(row.Available),
		})
	}
	return stock, nil
}

func toBatches(rows []batchRow) []domain.MedicineBatch {
	out := make([]domain.MedicineBatch, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
