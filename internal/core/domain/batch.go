package domain

import "time"

type MedicineBatch struct {
	ID         int64
	MedicineID int64
	Code       string
	ExpiryDate time.Time // calendar date, midnight UTC
	Remaining  int
	Active     bool
	CreatedAt  time.Time
}

// Deduct takes up to want units from the batch and returns how many it took.
// Remaining never drops below zero.
func (b *MedicineBatch) Deduct(want int) int {
	if want <= 0 || b.Remaining <= 0 {
		return 0
	}
	take := min(b.Remaining, want)
	b.Remaining -= take
	return take
}

type Deduction struct {
	BatchID    int64     `json:"batch_id"`
	ExpiryDate time.Time `json:"expiry_date"`
	Quantity   int       `json:"quantity"`
	Remaining  int       `json:"remaining"`
}

// Allocation is the outcome of a FIFO deduction for one medicine.
type Allocation struct {
	MedicineID  int64       `json:"medicine_id"`
	Requested   int         `json:"requested"`
	Outstanding int         `json:"outstanding"`
	Deductions  []Deduction `json:"deductions"`
}

func (a Allocation) Satisfied() bool {
	return a.Outstanding == 0
}

func (a Allocation) Deducted() int {
	return a.Requested - a.Outstanding
}
