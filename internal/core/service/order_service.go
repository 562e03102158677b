package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

type OrderService struct {
	db     port.DatabaseRepository
	idem   idempotencyGuard
	logger *slog.Logger
	now    func() time.Time
}

// NewOrderService wires checkout and order queries. cache may be nil, in
// which case idempotency keys are ignored.
func NewOrderService(db port.DatabaseRepository, cache port.CacheRepository, logger *slog.Logger) *OrderService {
	return &OrderService{
		db:     db,
		idem:   idempotencyGuard{cache: cache, logger: logger},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutRequest struct {
	ShippingAddress string
	IdempotencyKey  string
}

// Checkout converts the caller's cart into a PENDING order and clears the
// cart in the same transaction.
func (s *OrderService) Checkout(ctx context.Context, p domain.Principal, req CheckoutRequest) (*domain.Order, error) {
	done, err := s.idem.claim(ctx, "checkout", p.Email, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	order, err := s.checkout(ctx, p, req.ShippingAddress)
	done(err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order checked out",
		"order_id", order.ID,
		"owner", order.OwnerEmail,
		"lines", len(order.Lines),
		"total", order.Total.StringFixed(2),
	)
	return order, nil
}

func (s *OrderService) checkout(ctx context.Context, p domain.Principal, shippingAddress string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithinTx(ctx, func(tx port.Tx) error {
		lines, err := tx.CartLines(ctx, p.Email)
		if err != nil {
			return err
		}

		order, err = domain.NewOrder(uuid.NewString(), p.Email, shippingAddress, lines, s.now())
		if err != nil {
			return err
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, p.Email)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) ListMine(ctx context.Context, p domain.Principal) ([]domain.Order, error) {
	return s.db.ListOrders(ctx, port.OrderFilter{OwnerEmail: p.Email})
}

func (s *OrderService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Order, error) {
	order, err := s.db.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	if !p.CanView(order.OwnerEmail) {
		return nil, fmt.Errorf("%w: order %s belongs to another user", domain.ErrAccessDenied, id)
	}
	return order, nil
}

// ListByStatus lists orders with the given status, or all orders when
// status is empty. Callers without the view-any capability only ever see
// their own orders.
func (s *OrderService) ListByStatus(ctx context.Context, p domain.Principal, status string) ([]domain.Order, error) {
	var filter port.OrderFilter
	if status != "" {
		parsed, err := domain.ParseOrderStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = parsed
	}
	if !p.Role.CanViewAny() {
		filter.OwnerEmail = p.Email
	}
	return s.db.ListOrders(ctx, filter)
}

func (s *OrderService) UpdateStatus(ctx context.Context, p domain.Principal, id, target string) (*domain.Order, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	to, err := domain.ParseOrderStatus(target)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	var from domain.OrderStatus
	var changed bool
	err = s.db.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
		}

		from = order.Status
		changed, err = order.TransitionTo(to, s.now())
		if err != nil || !changed {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, *order); err != nil {
			return err
		}
		order.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("order status updated", "order_id", id, "from", from, "to", to, "by", p.Email)
	}
	return order, nil
}
