package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	ID                int64           `json:"id"`
	TreatmentRecordID int64           `json:"treatment_record_id"`
	Total             decimal.Decimal `json:"total"`
	Paid              bool            `json:"paid"`
	AccountantID      *int64          `json:"accountant_id,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ChargeLine struct {
	ItemID    int64           `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// Bill is a presentation snapshot of what a treatment record costs.
type Bill struct {
	TreatmentRecordID int64           `json:"treatment_record_id"`
	CustomerName      string          `json:"customer_name"`
	CreatedAt         time.Time       `json:"created_at"`
	Services          []ChargeLine    `json:"services"`
	Medications       []ChargeLine    `json:"medications"`
	ServiceSubtotal   decimal.Decimal `json:"service_subtotal"`
	MedicineSubtotal  decimal.Decimal `json:"medicine_subtotal"`
	Total             decimal.Decimal `json:"total"`
	InvoiceID         *int64          `json:"invoice_id,omitempty"`
	Paid              bool            `json:"paid"`
}

// UnpaidRecord is a treatment record with no invoice or with an unpaid one.
type UnpaidRecord struct {
	TreatmentRecordID int64            `json:"treatment_record_id"`
	CustomerName      string           `json:"customer_name"`
	CreatedAt         time.Time        `json:"created_at"`
	InvoiceID         *int64           `json:"invoice_id,omitempty"`
	Total             *decimal.Decimal `json:"total,omitempty"`
}
