package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

// memStore is an in-memory port.Store. A transaction holds the store lock for
// its whole duration and restores a snapshot when fn fails.
type memStore struct {
	mu sync.Mutex

	batches       map[int64]domain.MedicineBatch
	medicines     map[int64]domain.Medicine
	dentists      []domain.Dentist
	customers     []domain.Customer
	services      []domain.Service
	records       map[int64]domain.TreatmentRecord
	prescriptions map[int64]*memPrescription
	invoices      map[int64]domain.Invoice
	nextID        int64

	deactivateCalls int
	refLoads        int
	failOn          map[string]error
}

type memPrescription struct {
	id       int64
	recordID int64
	lines    []domain.MedicationLine
}

func newMemStore() *memStore {
	return &memStore{
		batches:       make(map[int64]domain.MedicineBatch),
		medicines:     make(map[int64]domain.Medicine),
		records:       make(map[int64]domain.TreatmentRecord),
		prescriptions: make(map[int64]*memPrescription),
		invoices:      make(map[int64]domain.Invoice),
		failOn:        make(map[string]error),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) fail(op string) error {
	if err, ok := s.failOn[op]; ok {
		return &domain.StoreError{Op: op, Err: err}
	}
	return nil
}

func (s *memStore) addMedicine(name string, price decimal.Decimal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.medicines[id] = domain.Medicine{ID: id, Name: name, Unit: "tablet", UnitPrice: price}
	return id
}

func (s *memStore) addBatch(medicineID int64, expiry time.Time, remaining int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.batches[id] = domain.MedicineBatch{
		ID:         id,
		MedicineID: medicineID,
		Code:       fmt.Sprintf("B%d", id),
		ExpiryDate: domain.DateOf(expiry),
		Remaining:  remaining,
		Active:     true,
	}
	return id
}

func (s *memStore) addRecord(customer string, services ...domain.ServiceLine) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.records[id] = domain.TreatmentRecord{
		ID:           id,
		CustomerID:   1,
		CustomerName: customer,
		DentistID:    1,
		CreatedAt:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Services:     services,
	}
	return id
}

func (s *memStore) addPrescriptionLine(recordID int64, line domain.MedicationLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prescriptions {
		if p.recordID == recordID {
			p.lines = append(p.lines, line)
			return
		}
	}
	id := s.id()
	s.prescriptions[id] = &memPrescription{id: id, recordID: recordID, lines: []domain.MedicationLine{line}}
}

func (s *memStore) deactivate(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	b.Active = false
	s.batches[id] = b
}

func (s *memStore) batch(id int64) domain.MedicineBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[id]
}

func (s *memStore) totalRemaining(medicineID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, b := range s.batches {
		if b.MedicineID == medicineID {
			total += b.Remaining
		}
	}
	return total
}

func (s *memStore) invoiceRows(recordID int64) []domain.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []domain.Invoice
	for _, inv := range s.invoices {
		if inv.TreatmentRecordID == recordID {
			rows = append(rows, inv)
		}
	}
	return rows
}

func (s *memStore) medicationLines(recordID int64) []domain.MedicationLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prescriptions {
		if p.recordID == recordID {
			return append([]domain.MedicationLine(nil), p.lines...)
		}
	}
	return nil
}

type memSnapshot struct {
	batches       map[int64]domain.MedicineBatch
	prescriptions map[int64]memPrescription
	invoices      map[int64]domain.Invoice
	nextID        int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		batches:       make(map[int64]domain.MedicineBatch, len(s.batches)),
		prescriptions: make(map[int64]memPrescription, len(s.prescriptions)),
		invoices:      make(map[int64]domain.Invoice, len(s.invoices)),
		nextID:        s.nextID,
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	for k, v := range s.prescriptions {
		p := *v
		p.lines = append([]domain.MedicationLine(nil), v.lines...)
		snap.prescriptions[k] = p
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.batches = snap.batches
	s.invoices = snap.invoices
	s.nextID = snap.nextID
	s.prescriptions = make(map[int64]*memPrescription, len(snap.prescriptions))
	for k, v := range snap.prescriptions {
		p := v
		s.prescriptions[k] = &p
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	if err := s.fail("commit"); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) References() port.ReferenceRepository {
	return memRefs{s: s, lock: true}
}

type memTx struct {
	s *memStore
}

func (t memTx) Batches() port.BatchRepository { return memBatches{s: t.s} }

func (t memTx) Treatments() port.TreatmentRepository { return memTreatments{s: t.s} }

func (t memTx) Invoices() port.InvoiceRepository { return memInvoices{s: t.s} }

func (t memTx) References() port.ReferenceRepository { return memRefs{s: t.s} }

type memBatches struct {
	s *memStore
}

func (r memBatches) sorted(keep func(domain.MedicineBatch) bool) []domain.MedicineBatch {
	var out []domain.MedicineBatch
	for _, b := range r.s.batches {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memBatches) ListExpiring(_ context.Context, before time.Time) ([]domain.MedicineBatch, error) {
	if err := r.s.fail("ListExpiring"); err != nil {
		return nil, err
	}
	return r.sorted(func(b domain.MedicineBatch) bool {
		return b.Active && b.ExpiryDate.Before(before)
	}), nil
}

func (r memBatches) Deactivate(_ context.Context, ids []int64) (int, error) {
	if err := r.s.fail("Deactivate"); err != nil {
		return 0, err
	}
	r.s.deactivateCalls++
	n := 0
	for _, id := range ids {
		b, ok := r.s.batches[id]
		if !ok || !b.Active {
			continue
		}
		b.Active = false
		r.s.batches[id] = b
		n++
	}
	return n, nil
}

func (r memBatches) ListAllocatable(_ context.Context, medicineID int64, today time.Time) ([]domain.MedicineBatch, error) {
	return r.sorted(func(b domain.MedicineBatch) bool {
		return b.MedicineID == medicineID && b.Active && b.Remaining > 0 && !b.ExpiryDate.Before(today)
	}), nil
}

func (r memBatches) SaveRemaining(_ context.Context, batches []domain.MedicineBatch) error {
	if err := r.s.fail("SaveRemaining"); err != nil {
		return err
	}
	for _, b := range batches {
		if b.Remaining < 0 {
			return &domain.StoreError{Op: "update batch", Err: fmt.Errorf("check remaining >= 0 violated")}
		}
		stored := r.s.batches[b.ID]
		stored.Remaining = b.Remaining
		r.s.batches[b.ID] = stored
	}
	return nil
}

func (r memBatches) SumAvailable(_ context.Context) ([]domain.MedicineStock, error) {
	sums := make(map[int64]int)
	for _, b := range r.s.batches {
		if b.Active {
			sums[b.MedicineID] += b.Remaining
		}
	}
	var out []domain.MedicineStock
	for id, total := range sums {
		if total > 0 {
			out = append(out, domain.MedicineStock{Medicine: r.s.medicines[id], Available: total})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Medicine.ID < out[j].Medicine.ID })
	return out, nil
}

type memTreatments struct {
	s *memStore
}

func (r memTreatments) Get(_ context.Context, id int64) (*domain.TreatmentRecord, error) {
	rec, ok := r.s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.Services = append([]domain.ServiceLine(nil), rec.Services...)
	for _, p := range r.s.prescriptions {
		if p.recordID == id {
			rec.Prescription = &domain.Prescription{ID: p.id, Lines: append([]domain.MedicationLine(nil), p.lines...)}
		}
	}
	return &rec, nil
}

func (r memTreatments) EnsurePrescription(_ context.Context, recordID int64) (int64, error) {
	for _, p := range r.s.prescriptions {
		if p.recordID == recordID {
			return p.id, nil
		}
	}
	id := r.s.id()
	r.s.prescriptions[id] = &memPrescription{id: id, recordID: recordID}
	return id, nil
}

func (r memTreatments) AddMedicationLine(_ context.Context, prescriptionID int64, line domain.MedicationLine) error {
	p, ok := r.s.prescriptions[prescriptionID]
	if !ok {
		return &domain.StoreError{Op: "insert prescription item", Err: domain.ErrNotFound}
	}
	p.lines = append(p.lines, line)
	return nil
}

type memInvoices struct {
	s *memStore
}

func (r memInvoices) FindByRecord(_ context.Context, recordID int64) (*domain.Invoice, error) {
	for _, inv := range r.s.invoices {
		if inv.TreatmentRecordID == recordID {
			return &inv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memInvoices) Create(_ context.Context, inv *domain.Invoice) error {
	for _, existing := range r.s.invoices {
		if existing.TreatmentRecordID == inv.TreatmentRecordID {
			return &domain.StoreError{Op: "insert invoice", Err: fmt.Errorf("unique treatment_record_id violated")}
		}
	}
	inv.ID = r.s.id()
	r.s.invoices[inv.ID] = *inv
	return nil
}

func (r memInvoices) UpdateTotal(_ context.Context, id int64, total decimal.Decimal, at time.Time) error {
	inv := r.s.invoices[id]
	inv.Total = total
	inv.UpdatedAt = at
	r.s.invoices[id] = inv
	return nil
}

func (r memInvoices) MarkPaid(_ context.Context, id int64, amount decimal.Decimal, accountantID int64, at time.Time) error {
	inv := r.s.invoices[id]
	inv.Paid = true
	inv.Total = amount
	inv.AccountantID = &accountantID
	inv.PaidAt = &at
	inv.UpdatedAt = at
	r.s.invoices[id] = inv
	return nil
}

func (r memInvoices) ListUnpaidRecords(_ context.Context) ([]domain.UnpaidRecord, error) {
	var out []domain.UnpaidRecord
	for id, rec := range r.s.records {
		row := domain.UnpaidRecord{TreatmentRecordID: id, CustomerName: rec.CustomerName, CreatedAt: rec.CreatedAt}
		inv, err := r.FindByRecord(context.Background(), id)
		if err == nil {
			if inv.Paid {
				continue
			}
			invID, total := inv.ID, inv.Total
			row.InvoiceID, row.Total = &invID, &total
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TreatmentRecordID < out[j].TreatmentRecordID })
	return out, nil
}

type memRefs struct {
	s    *memStore
	lock bool
}

func (r memRefs) guard() func() {
	if !r.lock {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r memRefs) Medicine(_ context.Context, id int64) (*domain.Medicine, error) {
	defer r.guard()()
	m, ok := r.s.medicines[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (r memRefs) ListMedicines(_ context.Context) ([]domain.Medicine, error) {
	defer r.guard()()
	r.s.refLoads++
	var out []domain.Medicine
	for _, m := range r.s.medicines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memRefs) ListDentists(_ context.Context) ([]domain.Dentist, error) {
	defer r.guard()()
	r.s.refLoads++
	if err := r.s.fail("ListDentists"); err != nil {
		return nil, err
	}
	return append([]domain.Dentist(nil), r.s.dentists...), nil
}

func (r memRefs) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	defer r.guard()()
	r.s.refLoads++
	return append([]domain.Customer(nil), r.s.customers...), nil
}

func (r memRefs) ListServices(_ context.Context) ([]domain.Service, error) {
	defer r.guard()()
	r.s.refLoads++
	return append([]domain.Service(nil), r.s.services...), nil
}

func (r memRefs) ListCustomersByDentist(_ context.Context, dentistID int64) ([]domain.Customer, error) {
	defer r.guard()()
	r.s.refLoads++
	seen := make(map[int64]bool)
	var out []domain.Customer
	for _, rec := range r.s.records {
		if rec.DentistID != dentistID || seen[rec.CustomerID] {
			continue
		}
		seen[rec.CustomerID] = true
		for _, c := range r.s.customers {
			if c.ID == rec.CustomerID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *memStore) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refLoads
}

// memCache implements port.CacheRepository and port.ReferenceCache.
type memCache struct {
	mu       sync.Mutex
	keys     map[string]bool
	values   map[string][]byte
	ttls     map[string]time.Duration
	failSet  error
	failRead error
}

func newMemCache() *memCache {
	return &memCache{
		keys:   make(map[string]bool),
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
	}
}

func (c *memCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet != nil {
		return false, c.failSet
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *memCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRead != nil {
		return false, c.failRead
	}
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) ttl(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.ttls[key]
	return d, ok
}

func (c *memCache) hasKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key]
}

// memArchive records archived statements.
type memArchive struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (a *memArchive) PutStatement(_ context.Context, key string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.puts == nil {
		a.puts = make(map[string][]byte)
	}
	a.puts[key] = body
	return nil
}

// countingMetrics implements port.Metrics.
type countingMetrics struct {
	mu        sync.Mutex
	reaped    int
	satisfied int
	short     int
	writes    map[string]int
}

func (m *countingMetrics) BatchesReaped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reaped += n
}

func (m *countingMetrics) AllocationFinished(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.satisfied++
	} else {
		m.short++
	}
}

func (m *countingMetrics) InvoiceWritten(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = make(map[string]int)
	}
	m.writes[kind]++
}
