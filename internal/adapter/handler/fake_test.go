package handler

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/core/service"
)

type paymentCall struct {
	recordID     int64
	amount       decimal.Decimal
	accountantID int64
}

type fakeLedger struct {
	mu sync.Mutex

	dispenseErr error
	dispensed   []service.DispenseRequest
	stock       []domain.MedicineStock
	reapHorizon int
	bills       map[int64]*domain.Bill
	payments    []paymentCall
	unpaid      []domain.UnpaidRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bills: make(map[int64]*domain.Bill)}
}

func (f *fakeLedger) Dispense(_ context.Context, req service.DispenseRequest) (*service.DispenseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispenseErr != nil {
		return nil, f.dispenseErr
	}
	f.dispensed = append(f.dispensed, req)
	result := &service.DispenseResult{Invoice: &domain.Invoice{ID: 1, TreatmentRecordID: req.TreatmentRecordID}}
	for _, item := range req.Items {
		result.Allocations = append(result.Allocations, domain.Allocation{MedicineID: item.MedicineID, Requested: item.Quantity})
	}
	return result, nil
}

func (f *fakeLedger) dispenseCalls() []service.DispenseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.DispenseRequest(nil), f.dispensed...)
}

func (f *fakeLedger) paymentCalls() []paymentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]paymentCall(nil), f.payments...)
}

func (f *fakeLedger) lastHorizon() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reapHorizon
}

func (f *fakeLedger) Available(context.Context) ([]domain.MedicineStock, error) {
	return f.stock, nil
}

func (f *fakeLedger) ReapExpired(_ context.Context, horizonDays int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reapHorizon = horizonDays
	return 2, nil
}

func (f *fakeLedger) Bill(_ context.Context, recordID int64) (*domain.Bill, error) {
	bill, ok := f.bills[recordID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return bill, nil
}

func (f *fakeLedger) SaveDraftInvoice(_ context.Context, recordID int64) (*domain.Invoice, bool, error) {
	bill, ok := f.bills[recordID]
	if !ok {
		return nil, false, nil
	}
	return &domain.Invoice{ID: 1, TreatmentRecordID: recordID, Total: bill.Total}, true, nil
}

func (f *fakeLedger) RecordPayment(_ context.Context, recordID int64, amount decimal.Decimal, accountantID int64) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, paymentCall{recordID: recordID, amount: amount, accountantID: accountantID})
	acc := accountantID
	return &domain.Invoice{ID: 1, TreatmentRecordID: recordID, Total: amount, Paid: true, AccountantID: &acc}, nil
}

func (f *fakeLedger) Unpaid(context.Context) ([]domain.UnpaidRecord, error) {
	return f.unpaid, nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	dentistID int64
}

func (f *fakeCatalog) lastDentist() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dentistID
}

func (f *fakeCatalog) Dentists(context.Context) ([]domain.Dentist, error) {
	return []domain.Dentist{{ID: 1, Name: "Dr. Lan"}}, nil
}

func (f *fakeCatalog) Customers(context.Context) ([]domain.Customer, error) {
	return nil, nil
}

func (f *fakeCatalog) Services(context.Context) ([]domain.Service, error) {
	return []domain.Service{{ID: 1, Name: "Scaling", UnitPrice: decimal.NewFromInt(100)}}, nil
}

func (f *fakeCatalog) Medicines(context.Context) ([]domain.Medicine, error) {
	return []domain.Medicine{{ID: 1, Name: "Amoxicillin"}}, nil
}

func (f *fakeCatalog) CustomersOfDentist(_ context.Context, dentistID int64) ([]domain.Customer, error) {
	f.mu.Lock()
	f.dentistID = dentistID
	f.mu.Unlock()
	return []domain.Customer{{ID: 3, Name: "Minh"}}, nil
}
