package domain

import "github.com/shopspring/decimal"

type Medicine struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// MedicineStock pairs a medicine with the stock summed over its active batches.
type MedicineStock struct {
	Medicine  Medicine `json:"medicine"`
	Available int      `json:"available"`
}
