package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/clinic-ledger/internal/adapter/auth"
	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/core/service"
)

// Ledger is the set of clinic actions exposed over HTTP and gRPC.
type Ledger interface {
	Dispense(ctx context.Context, req service.DispenseRequest) (*service.DispenseResult, error)
	Available(ctx context.Context) ([]domain.MedicineStock, error)
	ReapExpired(ctx context.Context, horizonDays int) (int, error)
	Bill(ctx context.Context, recordID int64) (*domain.Bill, error)
	SaveDraftInvoice(ctx context.Context, recordID int64) (*domain.Invoice, bool, error)
	RecordPayment(ctx context.Context, recordID int64, amount decimal.Decimal, accountantID int64) (*domain.Invoice, error)
	Unpaid(ctx context.Context) ([]domain.UnpaidRecord, error)
}

type Catalog interface {
	Dentists(ctx context.Context) ([]domain.Dentist, error)
	Customers(ctx context.Context) ([]domain.Customer, error)
	Services(ctx context.Context) ([]domain.Service, error)
	Medicines(ctx context.Context) ([]domain.Medicine, error)
	CustomersOfDentist(ctx context.Context, dentistID int64) ([]domain.Customer, error)
}

type HTTPHandler struct {
	ledger   Ledger
	catalog  Catalog
	verifier *auth.Verifier
}

type DispenseHTTPRequest struct {
	RequestID         string                 `json:"request_id"`
	TreatmentRecordID int64                  `json:"treatment_record_id"`
	Items             []service.DispenseItem `json:"items"`
}

type PaymentHTTPRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(ledger Ledger, catalog Catalog, verifier *auth.Verifier) *HTTPHandler {
	return &HTTPHandler{ledger: ledger, catalog: catalog, verifier: verifier}
}

// Router builds the HTTP routes. metrics is mounted at /metrics when not nil.
func (h *HTTPHandler) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/medicines/available", h.Available)
		r.Post("/batches/reap", h.Reap)
		r.Post("/dispense", h.Dispense)
		r.Get("/invoices/unpaid", h.Unpaid)

		r.Route("/treatments/{id}", func(r chi.Router) {
			r.Get("/bill", h.Bill)
			r.Put("/invoice", h.SaveInvoice)
			r.With(h.authMiddleware).Post("/payment", h.RecordPayment)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/dentists", h.Dentists)
			r.Get("/dentists/{id}/customers", h.CustomersOfDentist)
			r.Get("/customers", h.Customers)
			r.Get("/services", h.Services)
			r.Get("/medicines", h.Medicines)
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Available(w http.ResponseWriter, r *http.Request) {
	stock, err := h.ledger.Available(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (h *HTTPHandler) Reap(w http.ResponseWriter, r *http.Request) {
	horizon := 0
	if v := r.URL.Query().Get("horizon_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid horizon_days"})
			return
		}
		horizon = n
	}

	n, err := h.ledger.ReapExpired(r.Context(), horizon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deactivated": n})
}

func (h *HTTPHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req DispenseHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.TreatmentRecordID <= 0 || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing required fields"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	result, err := h.ledger.Dispense(r.Context(), service.DispenseRequest{
		RequestID:         req.RequestID,
		TreatmentRecordID: req.TreatmentRecordID,
		Items:             req.Items,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) Bill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bill, err := h.ledger.Bill(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (h *HTTPHandler) SaveInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, found, err := h.ledger.SaveDraftInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "treatment record not found"})
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// RecordPayment pays the record's invoice. Without an amount in the body the
// current bill total is charged.
func (h *HTTPHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	accountantID, ok := auth.AccountantFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing accountant"})
		return
	}

	var req PaymentHTTPRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	amount, err := h.paymentAmount(r.Context(), id, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "amount must not be negative"})
		return
	}

	inv, err := h.ledger.RecordPayment(r.Context(), id, amount, accountantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *HTTPHandler) paymentAmount(ctx context.Context, recordID int64, given *decimal.Decimal) (decimal.Decimal, error) {
	if given != nil {
		return *given, nil
	}
	bill, err := h.ledger.Bill(ctx, recordID)
	if err != nil {
		return decimal.Zero, err
	}
	return bill.Total, nil
}

func (h *HTTPHandler) Unpaid(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.Unpaid(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) Dentists(w http.ResponseWriter, r *http.Request) {
	list(w, r, h.catalog.Dentists)
}

func (h *HTTPHandler) Customers(w http.ResponseWriter, r *http.Request) {
	list(w, r, h.catalog.Customers)
}

func (h *HTTPHandler) Services(w http.ResponseWriter, r *http.Request) {
	list(w, r, h.catalog.Services)
}

func (h *HTTPHandler) Medicines(w http.ResponseWriter, r *http.Request) {
	list(w, r, h.catalog.Medicines)
}

func (h *HTTPHandler) CustomersOfDentist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list(w, r, func(ctx context.Context) ([]domain.Customer, error) {
		return h.catalog.CustomersOfDentist(ctx, id)
	})
}

func (h *HTTPHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountantID, err := h.verifier.VerifyHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithAccountant(r.Context(), accountantID)))
	})
}

func list[T any](w http.ResponseWriter, r *http.Request, load func(context.Context) ([]T, error)) {
	items, err := load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func statusOf(err error) (int, string) {
	var shortage *domain.ShortageError
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.As(err, &shortage):
		return http.StatusConflict, shortage.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "quantity must be positive"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, message := statusOf(err)
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
