package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ServiceLine struct {
	ServiceID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l ServiceLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MedicationLine carries an amount fixed at dispensing time. Billing trusts it.
type MedicationLine struct {
	MedicineID int64
	Name       string
	Quantity   int
	Amount     decimal.Decimal
}

type Prescription struct {
	ID    int64
	Lines []MedicationLine
}

type TreatmentRecord struct {
	ID           int64
	CustomerID   int64
	CustomerName string
	DentistID    int64
	CreatedAt    time.Time
	Services     []ServiceLine
	Prescription *Prescription
}
