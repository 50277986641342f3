package handler

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/clinic-ledger/internal/adapter/auth"
	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/core/service"
)

const ledgerServiceName = "clinic.v1.Ledger"

type DispenseMessage struct {
	RequestID         string                 `json:"request_id"`
	TreatmentRecordID int64                  `json:"treatment_record_id"`
	Items             []service.DispenseItem `json:"items"`
}

type RecordMessage struct {
	TreatmentRecordID int64 `json:"treatment_record_id"`
}

type PaymentMessage struct {
	TreatmentRecordID int64           `json:"treatment_record_id"`
	Amount            decimal.Decimal `json:"amount"`
}

type Empty struct{}

type AvailableMessage struct {
	Stock []domain.MedicineStock `json:"stock"`
}

type UnpaidMessage struct {
	Records []domain.UnpaidRecord `json:"records"`
}

// LedgerServer is the server API of clinic.v1.Ledger.
type LedgerServer interface {
	Dispense(ctx context.Context, req *DispenseMessage) (*service.DispenseResult, error)
	Bill(ctx context.Context, req *RecordMessage) (*domain.Bill, error)
	RecordPayment(ctx context.Context, req *PaymentMessage) (*domain.Invoice, error)
	ListAvailable(ctx context.Context, req *Empty) (*AvailableMessage, error)
	ListUnpaid(ctx context.Context, req *Empty) (*UnpaidMessage, error)
}

type GRPCHandler struct {
	ledger   Ledger
	verifier *auth.Verifier
}

func NewGRPCHandler(ledger Ledger, verifier *auth.Verifier) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, verifier: verifier}
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

func (h *GRPCHandler) Dispense(ctx context.Context, req *DispenseMessage) (*service.DispenseResult, error) {
	if req.TreatmentRecordID <= 0 || len(req.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	result, err := h.ledger.Dispense(ctx, service.DispenseRequest{
		RequestID:         requestID,
		TreatmentRecordID: req.TreatmentRecordID,
		Items:             req.Items,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return result, nil
}

func (h *GRPCHandler) Bill(ctx context.Context, req *RecordMessage) (*domain.Bill, error) {
	bill, err := h.ledger.Bill(ctx, req.TreatmentRecordID)
	if err != nil {
		return nil, grpcError(err)
	}
	return bill, nil
}

// RecordPayment takes the accountant from the "authorization" metadata entry.
func (h *GRPCHandler) RecordPayment(ctx context.Context, req *PaymentMessage) (*domain.Invoice, error) {
	accountantID, err := h.accountant(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, status.Error(codes.InvalidArgument, "amount must not be negative")
	}
	inv, err := h.ledger.RecordPayment(ctx, req.TreatmentRecordID, req.Amount, accountantID)
	if err != nil {
		return nil, grpcError(err)
	}
	return inv, nil
}

func (h *GRPCHandler) ListAvailable(ctx context.Context, _ *Empty) (*AvailableMessage, error) {
	stock, err := h.ledger.Available(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &AvailableMessage{Stock: stock}, nil
}

func (h *GRPCHandler) ListUnpaid(ctx context.Context, _ *Empty) (*UnpaidMessage, error) {
	records, err := h.ledger.Unpaid(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &UnpaidMessage{Records: records}, nil
}

func (h *GRPCHandler) accountant(ctx context.Context) (int64, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return 0, status.Error(codes.Unauthenticated, auth.ErrMissingToken.Error())
	}
	id, err := h.verifier.VerifyHeader(values[0])
	if err != nil {
		return 0, status.Error(codes.Unauthenticated, err.Error())
	}
	return id, nil
}

func grpcError(err error) error {
	var shortage *domain.ShortageError
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	case errors.As(err, &shortage):
		return status.Error(codes.FailedPrecondition, shortage.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, "insufficient stock")
	case errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, "quantity must be positive")
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispense", Handler: ledgerDispenseHandler},
		{MethodName: "Bill", Handler: ledgerBillHandler},
		{MethodName: "RecordPayment", Handler: ledgerRecordPaymentHandler},
		{MethodName: "ListAvailable", Handler: ledgerListAvailableHandler},
		{MethodName: "ListUnpaid", Handler: ledgerListUnpaidHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req any, Resp any](method string, call func(LedgerServer, context.Context, *Req) (Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ledgerServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	ledgerDispenseHandler      = unary("Dispense", LedgerServer.Dispense)
	ledgerBillHandler          = unary("Bill", LedgerServer.Bill)
	ledgerRecordPaymentHandler = unary("RecordPayment", LedgerServer.RecordPayment)
	ledgerListAvailableHandler = unary("ListAvailable", LedgerServer.ListAvailable)
	ledgerListUnpaidHandler    = unary("ListUnpaid", LedgerServer.ListUnpaid)
)

// LedgerClient calls clinic.v1.Ledger with the JSON codec.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	return c.cc.Invoke(ctx, "/"+ledgerServiceName+"/"+method, in, out, opts...)
}

func (c *LedgerClient) Dispense(ctx context.Context, in *DispenseMessage, opts ...grpc.CallOption) (*service.DispenseResult, error) {
	out := new(service.DispenseResult)
	if err := c.invoke(ctx, "Dispense", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) Bill(ctx context.Context, in *RecordMessage, opts ...grpc.CallOption) (*domain.Bill, error) {
	out := new(domain.Bill)
	if err := c.invoke(ctx, "Bill", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) RecordPayment(ctx context.Context, in *PaymentMessage, opts ...grpc.CallOption) (*domain.Invoice, error) {
	out := new(domain.Invoice)
	if err := c.invoke(ctx, "RecordPayment", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) ListAvailable(ctx context.Context, opts ...grpc.CallOption) (*AvailableMessage, error) {
	out := new(AvailableMessage)
	if err := c.invoke(ctx, "ListAvailable", &Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) ListUnpaid(ctx context.Context, opts ...grpc.CallOption) (*UnpaidMessage, error) {
	out := new(UnpaidMessage)
	if err := c.invoke(ctx, "ListUnpaid", &Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
