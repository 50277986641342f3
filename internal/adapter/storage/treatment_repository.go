package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

type treatmentRow struct {
	ID           int64  `db:"id"`
	CustomerID   int64  `db:"customer_id"`
	CustomerName string `db:"customer_name"`
	DentistID    int64  `db:"dentist_id"`
	CreatedAt    dbTime `db:"created_at"`
}

type serviceLineRow struct {
	ServiceID int64           `db:"service_id"`
	Name      string          `db:"name"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

type medicationLineRow struct {
	MedicineID int64           `db:"medicine_id"`
	Name       string          `db:"name"`
	Quantity   int             `db:"quantity"`
	Amount     decimal.Decimal `db:"amount"`
}

type treatmentRepository struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

func (r *treatmentRepository) Get(ctx context.Context, id int64) (*domain.TreatmentRecord, error) {
	var row treatmentRow
	err := sqlx.GetContext(ctx, r.ext, &row, r.ext.Rebind(`
		SELECT r.id, r.customer_id, c.name AS customer_name, r.dentist_id, r.created_at
		FROM treatment_records r
		JOIN customers c ON c.id = r.customer_id
		WHERE r.id = ?`), id)
	if err != nil {
		return nil, notFoundOr("select treatment record", err)
	}

	rec := &domain.TreatmentRecord{
		ID:           row.ID,
		CustomerID:   row.CustomerID,
		CustomerName: row.CustomerName,
		DentistID:    row.DentistID,
		CreatedAt:    row.CreatedAt.Time,
	}

	var services []serviceLineRow
	err = sqlx.SelectContext(ctx, r.ext, &services, r.ext.Rebind(`
		SELECT ts.service_id, s.name, ts.quantity, ts.unit_price
		FROM treatment_services ts
		JOIN services s ON s.id = ts.service_id
		WHERE ts.treatment_record_id = ?
		ORDER BY ts.line_no, ts.id`), id)
	if err != nil {
		return nil, storeErr("select service lines", err)
	}
	for _, s := range services {
		rec.Services = append(rec.Services, domain.ServiceLine{
			ServiceID: s.ServiceID,
			Name:      s.Name,
			Quantity:  s.Quantity,
			UnitPrice: s.UnitPrice,
		})
	}

	prescriptionID, err := r.prescriptionOf(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	var meds []medicationLineRow
	err = sqlx.SelectContext(ctx, r.ext, &meds, r.ext.Rebind(`
		SELECT pi.medicine_id, m.name, pi.quantity, pi.amount
		FROM prescription_items pi
		JOIN medicines m ON m.id = pi.medicine_id
		WHERE pi.prescription_id = ?
		ORDER BY pi.id`), prescriptionID)
	if err != nil {
		return nil, storeErr("select medication lines", err)
	}

	rec.Prescription = &domain.Prescription{ID: prescriptionID}
	for _, m := range meds {
		rec.Prescription.Lines = append(rec.Prescription.Lines, domain.MedicationLine{
			MedicineID: m.MedicineID,
			Name:       m.Name,
			Quantity:   m.Quantity,
			Amount:     m.Amount,
		})
	}
	return rec, nil
}

func (r *treatmentRepository) EnsurePrescription(ctx context.Context, recordID int64) (int64, error) {
	id, err := r.prescriptionOf(ctx, recordID)
	if !errors.Is(err, domain.ErrNotFound) {
		return id, err
	}

	id, err = insertID(ctx, r.ext, r.dialect,
		`INSERT INTO prescriptions (treatment_record_id, created_at) VALUES (?, ?)`,
		recordID, time.Now().UTC())
	if err != nil {
		return 0, storeErr("insert prescription", err)
	}
	return id, nil
}

func (r *treatmentRepository) AddMedicationLine(ctx context.Context, prescriptionID int64, line domain.MedicationLine) error {
	_, err := r.ext.ExecContext(ctx, r.ext.Rebind(`
		INSERT INTO prescription_items (prescription_id, medicine_id, quantity, amount)
		VALUES (?, ?, ?, ?)`),
		prescriptionID, line.MedicineID, line.Quantity, line.Amount)
	if err != nil {
		return storeErr("insert prescription item", err)
	}
	return nil
}

func (r *treatmentRepository) prescriptionOf(ctx context.Context, recordID int64) (int64, error) {
	var id int64
	err := r.ext.QueryRowxContext(ctx, r.ext.Rebind(
		`SELECT id FROM prescriptions WHERE treatment_record_id = ?`), recordID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, storeErr("select prescription", err)
	}
	return id, nil
}
