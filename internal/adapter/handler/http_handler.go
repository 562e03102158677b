package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/core/service"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxBodyBytes      = 1 << 20
)

type HTTPHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	logger   *slog.Logger
}

type CheckoutHTTPRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

type UpdateStatusHTTPRequest struct {
	Status string `json:"status"`
}

type ReviewHTTPRequest struct {
	AdminNote string `json:"adminNote"`
}

type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func NewHTTPHandler(orders *service.OrderService, payments *service.PaymentService, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{orders: orders, payments: payments, logger: logger}
}

// Routes mounts the API. Everything except /health requires a bearer token.
// A nil limiter disables per-caller rate limiting.
func (h *HTTPHandler) Routes(gate *AccessGate, limiter *CallerLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Get("/", h.ListOrdersByStatus)
			r.Get("/me", h.ListMyOrders)
			r.Get("/{id}", h.GetOrder)
			r.Patch("/{id}/status", h.UpdateOrderStatus)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.UploadPayment)
			r.Get("/mine", h.ListMyPayments)
			r.Get("/pending", h.ListPendingPayments)
			r.Get("/history", h.PaymentHistory)
			r.Get("/{id}", h.GetPayment)
			r.Patch("/{id}/approve", h.ApprovePayment)
			r.Patch("/{id}/reject", h.RejectPayment)
		})
	})

	return r
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	order, err := h.orders.Checkout(r.Context(), principal(r), service.CheckoutRequest{
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListMine(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(orders))
}

func (h *HTTPHandler) ListOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByStatus(r.Context(), principal(r), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusHTTPRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), principal(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) UploadPayment(w http.ResponseWriter, r *http.Request) {
	var sub domain.PaymentSubmission
	if err := decodeJSON(w, r, &sub, false); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	payment, err := h.payments.Upload(r.Context(), principal(r), sub, r.Header.Get(idempotencyHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *HTTPHandler) ListMyPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListMine(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *HTTPHandler) ListPendingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListPending(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *HTTPHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payments, err := h.payments.History(r.Context(), principal(r), service.HistoryFilter{
		Status:    q.Get("status"),
		UserEmail: q.Get("userEmail"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *HTTPHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *HTTPHandler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.payments.Approve)
}

func (h *HTTPHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.payments.Reject)
}

func (h *HTTPHandler) review(w http.ResponseWriter, r *http.Request, action func(context.Context, domain.Principal, string, string) (*domain.Payment, error)) {
	var req ReviewHTTPRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	payment, err := action(r.Context(), principal(r), chi.URLParam(r, "id"), req.AdminNote)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func principal(r *http.Request) domain.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, status, ErrorResponse{Message: "internal error"})
		return
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, status, ErrorResponse{Message: domain.ErrValidation.Error(), Errors: ve.Problems})
		return
	}
	writeJSON(w, status, ErrorResponse{Message: err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrUnsupportedMethod):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyReviewed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body. With optional set, an empty body leaves
// dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
