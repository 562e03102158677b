package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(OrderStatuses, status) {
		return "", NewValidationError(fmt.Sprintf("unknown order status %q", s))
	}
	return status, nil
}

// AllowedOrderTransitions returns the statuses reachable from s in one step.
func AllowedOrderTransitions(s OrderStatus) []OrderStatus {
	switch s {
	case OrderStatusPending:
		return []OrderStatus{OrderStatusConfirmed, OrderStatusCancelled}
	case OrderStatusConfirmed:
		return []OrderStatus{OrderStatusProcessing, OrderStatusCancelled}
	case OrderStatusProcessing:
		return []OrderStatus{OrderStatusShipped}
	case OrderStatusShipped:
		return []OrderStatus{OrderStatusDelivered}
	case OrderStatusDelivered, OrderStatusCancelled:
		return nil
	}
	return nil
}

// ValidateOrderTransition accepts self-transitions and the edges of
// AllowedOrderTransitions; anything else is a *TransitionError.
func ValidateOrderTransition(from, to OrderStatus) error {
	if from == to {
		return nil
	}
	if slices.Contains(AllowedOrderTransitions(from), to) {
		return nil
	}
	return &TransitionError{Entity: "order", From: string(from), To: string(to)}
}

func (s OrderStatus) IsTerminal() bool {
	return len(AllowedOrderTransitions(s)) == 0
}

type OrderLine struct {
	ProductID int64           `json:"productId"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Order struct {
	ID              string          `json:"id"`
	OwnerEmail      string          `json:"ownerEmail"`
	Status          OrderStatus     `json:"status"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress string          `json:"shippingAddress,omitempty"`
	Lines           []OrderLine     `json:"lines"`
	Version         int             `json:"-"` // optimistic locking
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// MaxShippingAddressLen matches the orders.shipping_address column.
const MaxShippingAddressLen = 500

// NewOrder snapshots the cart into a PENDING order. The total is derived
// from the lines and cannot be supplied by the caller.
func NewOrder(id, ownerEmail, shippingAddress string, cart []CartLine, now time.Time) (Order, error) {
	if len(cart) == 0 {
		return Order{}, ErrEmptyCart
	}

	var problems []string
	shippingAddress = strings.TrimSpace(shippingAddress)
	if utf8.RuneCountInString(shippingAddress) > MaxShippingAddressLen {
		problems = append(problems, fmt.Sprintf("shipping address must be at most %d characters", MaxShippingAddressLen))
	}
	lines := make([]OrderLine, 0, len(cart))
	for i, cl := range cart {
		if cl.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("line %d: quantity must be at least 1", i+1))
			continue
		}
		if !cl.LineTotal.Equal(cl.UnitPrice.Mul(decimal.NewFromInt(int64(cl.Quantity)))) {
			problems = append(problems, fmt.Sprintf("line %d: line total does not match unit price times quantity", i+1))
			continue
		}
		lines = append(lines, OrderLine{
			ProductID: cl.ProductID,
			SKU:       cl.SKU,
			Name:      cl.Name,
			UnitPrice: cl.UnitPrice,
			Quantity:  cl.Quantity,
			LineTotal: cl.LineTotal,
		})
	}
	if len(problems) > 0 {
		return Order{}, NewValidationError(problems...)
	}

	return Order{
		ID:              id,
		OwnerEmail:      ownerEmail,
		Status:          OrderStatusPending,
		Total:           SumLines(lines),
		ShippingAddress: shippingAddress,
		Lines:           lines,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return total
}

// TransitionTo applies a status change. It reports false when the order
// already has the target status.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) (bool, error) {
	if err := ValidateOrderTransition(o.Status, to); err != nil {
		return false, err
	}
	if o.Status == to {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	return true, nil
}

func (o Order) AcceptsPayments() bool {
	return !o.Status.IsTerminal()
}
