package service

import (
	"context"
	"time"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

// syncOrderOnApproval is the only coupling from payments to orders: a
// verified payment moves a PENDING order to CONFIRMED. Orders in any other
// status are left alone. It reports whether the order changed.
func syncOrderOnApproval(ctx context.Context, tx port.Tx, orderID string, now time.Time) (bool, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil || order.Status != domain.OrderStatusPending {
		return false, nil
	}

	if _, err := order.TransitionTo(domain.OrderStatusConfirmed, now); err != nil {
		return false, err
	}
	if err := tx.UpdateOrderStatus(ctx, *order); err != nil {
		return false, err
	}
	return true, nil
}
