package handler

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/core/service"
)

const AdminServiceName = "mall.fulfillment.AdminService"

type ListPendingPaymentsRequest struct{}

type ListPendingPaymentsResponse struct {
	Payments []domain.PaymentSummary `json:"payments"`
}

type GetPaymentRequest struct {
	PaymentID string `json:"paymentId"`
}

type ReviewPaymentRequest struct {
	PaymentID string `json:"paymentId"`
	AdminNote string `json:"adminNote,omitempty"`
}

type PaymentResponse struct {
	Payment *domain.Payment `json:"payment"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type OrderResponse struct {
	Order *domain.Order `json:"order"`
}

// AdminServer is the back-office surface used by review tooling.
type AdminServer interface {
	ListPendingPayments(context.Context, *ListPendingPaymentsRequest) (*ListPendingPaymentsResponse, error)
	GetPayment(context.Context, *GetPaymentRequest) (*PaymentResponse, error)
	ApprovePayment(context.Context, *ReviewPaymentRequest) (*PaymentResponse, error)
	RejectPayment(context.Context, *ReviewPaymentRequest) (*PaymentResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*OrderResponse, error)
}

type GRPCHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	logger   *slog.Logger
}

func NewGRPCHandler(orders *service.OrderService, payments *service.PaymentService, logger *slog.Logger) *GRPCHandler {
	return &GRPCHandler{orders: orders, payments: payments, logger: logger}
}

func (h *GRPCHandler) ListPendingPayments(ctx context.Context, req *ListPendingPaymentsRequest) (*ListPendingPaymentsResponse, error) {
	payments, err := h.payments.ListPending(ctx, grpcPrincipal(ctx))
	if err != nil {
		return nil, h.grpcError(ctx, err)
	}
	return &ListPendingPaymentsResponse{Payments: payments}, nil
}

func (h *GRPCHandler) GetPayment(ctx context.Context, req *GetPaymentRequest) (*PaymentResponse, error) {
	payment, err := h.payments.Get(ctx, grpcPrincipal(ctx), req.PaymentID)
	if err != nil {
		return nil, h.grpcError(ctx, err)
	}
	return &PaymentResponse{Payment: payment}, nil
}

func (h *GRPCHandler) ApprovePayment(ctx context.Context, req *ReviewPaymentRequest) (*PaymentResponse, error) {
	payment, err := h.payments.Approve(ctx, grpcPrincipal(ctx), req.PaymentID, req.AdminNote)
	if err != nil {
		return nil, h.grpcError(ctx, err)
	}
	return &PaymentResponse{Payment: payment}, nil
}

func (h *GRPCHandler) RejectPayment(ctx context.Context, req *ReviewPaymentRequest) (*PaymentResponse, error) {
	payment, err := h.payments.Reject(ctx, grpcPrincipal(ctx), req.PaymentID, req.AdminNote)
	if err != nil {
		return nil, h.grpcError(ctx, err)
	}
	return &PaymentResponse{Payment: payment}, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error) {
	order, err := h.orders.UpdateStatus(ctx, grpcPrincipal(ctx), req.OrderID, req.Status)
	if err != nil {
		return nil, h.grpcError(ctx, err)
	}
	return &OrderResponse{Order: order}, nil
}

func grpcPrincipal(ctx context.Context) domain.Principal {
	p, _ := PrincipalFrom(ctx)
	return p
}

func (h *GRPCHandler) grpcError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrUnsupportedMethod):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrAccessDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyReviewed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	}

	method, _ := grpc.Method(ctx)
	h.logger.Error("rpc failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}

func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPendingPayments", Handler: unaryHandler("ListPendingPayments", AdminServer.ListPendingPayments)},
		{MethodName: "GetPayment", Handler: unaryHandler("GetPayment", AdminServer.GetPayment)},
		{MethodName: "ApprovePayment", Handler: unaryHandler("ApprovePayment", AdminServer.ApprovePayment)},
		{MethodName: "RejectPayment", Handler: unaryHandler("RejectPayment", AdminServer.RejectPayment)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler("UpdateOrderStatus", AdminServer.UpdateOrderStatus)},
	},
	Streams: []grpc.StreamDesc{},
}

// unaryHandler plays the role of protoc-generated method handlers.
func unaryHandler[Req, Resp any](method string, call func(AdminServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + AdminServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AdminClient calls AdminService using the JSON codec.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) ListPendingPayments(ctx context.Context, in *ListPendingPaymentsRequest, opts ...grpc.CallOption) (*ListPendingPaymentsResponse, error) {
	return invoke[ListPendingPaymentsResponse](ctx, c.cc, "ListPendingPayments", in, opts)
}

func (c *AdminClient) GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error) {
	return invoke[PaymentResponse](ctx, c.cc, "GetPayment", in, opts)
}

func (c *AdminClient) ApprovePayment(ctx context.Context, in *ReviewPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error) {
	return invoke[PaymentResponse](ctx, c.cc, "ApprovePayment", in, opts)
}

func (c *AdminClient) RejectPayment(ctx context.Context, in *ReviewPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error) {
	return invoke[PaymentResponse](ctx, c.cc, "RejectPayment", in, opts)
}

func (c *AdminClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, "UpdateOrderStatus", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+AdminServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
