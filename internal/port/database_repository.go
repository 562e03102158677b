package port

import (
	"context"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
)

// OrderFilter narrows an order listing. Zero fields match everything.
type OrderFilter struct {
	OwnerEmail string
	Status     domain.OrderStatus
}

// PaymentFilter narrows a payment listing. Zero fields match everything.
type PaymentFilter struct {
	OwnerEmail    string
	Status        domain.PaymentStatus
	EmailContains string
}

type DatabaseRepository interface {
	// WithinTx runs fn in one transaction; an error from fn rolls back every write
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetOrder returns the order with its lines, or nil if it does not exist
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns matching orders with their lines, newest first
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	// GetPayment returns the payment, or nil if it does not exist
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)

	// ListPayments returns matching payments, newest first
	ListPayments(ctx context.Context, filter PaymentFilter) ([]domain.Payment, error)
}

// Tx is the set of reads and writes available inside WithinTx.
type Tx interface {
	// CartLines returns the owner's cart in insertion order
	CartLines(ctx context.Context, ownerEmail string) ([]domain.CartLine, error)

	// ClearCart removes every line from the owner's cart
	ClearCart(ctx context.Context, ownerEmail string) error

	// InsertOrder persists the order and its lines
	InsertOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns the order with its lines, or nil if it does not exist
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// UpdateOrderStatus writes order.Status if the stored version still equals
	// order.Version; a stale version fails with an error wrapping domain.ErrConflict
	UpdateOrderStatus(ctx context.Context, order domain.Order) error

	// ReferenceExists reports whether a payment already uses the normalized reference
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	// InsertPayment persists a payment; a duplicate reference fails with an
	// error wrapping domain.ErrConflict
	InsertPayment(ctx context.Context, payment domain.Payment) error

	// GetPayment returns the payment, or nil if it does not exist
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)

	// UpdatePaymentReview writes status and admin note with the same version
	// check as UpdateOrderStatus
	UpdatePaymentReview(ctx context.Context, payment domain.Payment) error
}
