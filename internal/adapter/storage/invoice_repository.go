package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

type invoiceRow struct {
	ID                int64           `db:"id"`
	TreatmentRecordID int64           `db:"treatment_record_id"`
	Total             decimal.Decimal `db:"total"`
	Paid              bool            `db:"paid"`
	AccountantID      sql.NullInt64   `db:"accountant_id"`
	PaidAt            dbTime          `db:"paid_at"`
	CreatedAt         dbTime          `db:"created_at"`
	UpdatedAt         dbTime          `db:"updated_at"`
}

func (r invoiceRow) toDomain() *domain.Invoice {
	inv := &domain.Invoice{
		ID:                r.ID,
		TreatmentRecordID: r.TreatmentRecordID,
		Total:             r.Total,
		Paid:              r.Paid,
		PaidAt:            r.PaidAt.Ptr(),
		CreatedAt:         r.CreatedAt.Time,
		UpdatedAt:         r.UpdatedAt.Time,
	}
	if r.AccountantID.Valid {
		id := r.AccountantID.Int64
		inv.AccountantID = &id
	}
	return inv
}

type unpaidRow struct {
	TreatmentRecordID int64               `db:"treatment_record_id"`
	CustomerName      string              `db:"customer_name"`
	CreatedAt         dbTime              `db:"created_at"`
	InvoiceID         sql.NullInt64       `db:"invoice_id"`
	Total             decimal.NullDecimal `db:"total"`
}

type invoiceRepository struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

func (r *invoiceRepository) FindByRecord(ctx context.Context, recordID int64) (*domain.Invoice, error) {
	var row invoiceRow
	err := sqlx.GetContext(ctx, r.ext, &row, r.ext.Rebind(`
		SELECT id, treatment_record_id, total, paid, accountant_id, paid_at, created_at, updated_at
		FROM invoices
		WHERE treatment_record_id = ?`), recordID)
	if err != nil {
		return nil, notFoundOr("select invoice", err)
	}
	return row.toDomain(), nil
}

func (r *invoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	var accountant sql.NullInt64
	if inv.AccountantID != nil {
		accountant = sql.NullInt64{Int64: *inv.AccountantID, Valid: true}
	}
	var paidAt sql.NullTime
	if inv.PaidAt != nil {
		paidAt = sql.NullTime{Time: inv.PaidAt.UTC(), Valid: true}
	}

	id, err := insertID(ctx, r.ext, r.dialect, `
		INSERT INTO invoices (treatment_record_id, total, paid, accountant_id, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.TreatmentRecordID, inv.Total, inv.Paid, accountant, paidAt,
		inv.CreatedAt.UTC(), inv.UpdatedAt.UTC())
	if err != nil {
		return storeErr("insert invoice", err)
	}
	inv.ID = id
	return nil
}

func (r *invoiceRepository) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal, at time.Time) error {
	_, err := r.ext.ExecContext(ctx, r.ext.Rebind(
		`UPDATE invoices SET total = ?, updated_at = ? WHERE id = ?`),
		total, at.UTC(), id)
	if err != nil {
		return storeErr("update invoice total", err)
	}
	return nil
}

func (r *invoiceRepository) MarkPaid(ctx context.Context, id int64, amount decimal.Decimal, accountantID int64, at time.Time) error {
	_, err := r.ext.ExecContext(ctx, r.ext.Rebind(`
		UPDATE invoices
		SET paid = TRUE, total = ?, accountant_id = ?, paid_at = ?, updated_at = ?
		WHERE id = ?`),
		amount, accountantID, at.UTC(), at.UTC(), id)
	if err != nil {
		return storeErr("mark invoice paid", err)
	}
	return nil
}

func (r *invoiceRepository) ListUnpaidRecords(ctx context.Context) ([]domain.UnpaidRecord, error) {
	var rows []unpaidRow
	err := sqlx.SelectContext(ctx, r.ext, &rows, `
		SELECT r.id AS treatment_record_id, c.name AS customer_name, r.created_at,
		       i.id AS invoice_id, i.total
		FROM treatment_records r
		JOIN customers c ON c.id = r.customer_id
		LEFT JOIN invoices i ON i.treatment_record_id = r.id
		WHERE i.id IS NULL OR i.paid = FALSE
		ORDER BY r.id`)
	if err != nil {
		return nil, storeErr("select unpaid records", err)
	}

	out := make([]domain.UnpaidRecord, 0, len(rows))
	for _, row := range rows {
		rec := domain.UnpaidRecord{
			TreatmentRecordID: row.TreatmentRecordID,
			CustomerName:      row.CustomerName,
			CreatedAt:         row.CreatedAt.Time,
		}
		if row.InvoiceID.Valid {
			id := row.InvoiceID.Int64
			rec.InvoiceID = &id
		}
		if row.Total.Valid {
			total := row.Total.Decimal
			rec.Total = &total
		}
		out = append(out, rec)
	}
	return out, nil
}
