package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
	"github.com/tharu616/shopping-mall-platform/internal/core/validation"
	"github.com/tharu616/shopping-mall-platform/internal/port"
)

var (
	maxPaymentAmount = decimal.NewFromInt(1_000_000)
	amountTolerance  = decimal.New(1, -2) // 0.01
)

type PaymentService struct {
	db     port.DatabaseRepository
	idem   idempotencyGuard
	logger *slog.Logger
	now    func() time.Time
}

func NewPaymentService(db port.DatabaseRepository, cache port.CacheRepository, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		db:     db,
		idem:   idempotencyGuard{cache: cache, logger: logger},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upload validates a payment submission and records it against the
// caller's order. Cash on delivery is recorded as already verified.
func (s *PaymentService) Upload(ctx context.Context, p domain.Principal, sub domain.PaymentSubmission, idempotencyKey string) (*domain.Payment, error) {
	done, err := s.idem.claim(ctx, "payment", p.Email, idempotencyKey)
	if err != nil {
		return nil, err
	}

	payment, err := s.upload(ctx, p, sub)
	done(err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment uploaded",
		"payment_id", payment.ID,
		"order_id", payment.OrderID,
		"method", payment.PaymentMethod,
		"status", payment.Status,
		"reference", payment.Reference,
	)
	return payment, nil
}

func (s *PaymentService) upload(ctx context.Context, p domain.Principal, sub domain.PaymentSubmission) (*domain.Payment, error) {
	if err := validateBasicFields(sub); err != nil {
		return nil, err
	}

	method, err := domain.ParsePaymentMethod(sub.PaymentMethod)
	if err != nil {
		return nil, err
	}
	now := s.now()
	problems, err := validation.Validate(method, sub, now)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationError(problems...)
	}

	var payment domain.Payment
	err = s.db.WithinTx(ctx, func(tx port.Tx) error {
		reference := domain.NormalizeReference(sub.Reference)
		if reference != "" {
			exists, err := tx.ReferenceExists(ctx, reference)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: payment reference %s already used", domain.ErrConflict, reference)
			}
		} else {
			reference = generateReference()
		}

		orderID := strings.TrimSpace(sub.OrderID)
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		if order.OwnerEmail != p.Email {
			return fmt.Errorf("%w: cannot upload payment for another user's order", domain.ErrAccessDenied)
		}
		if !order.AcceptsPayments() {
			return domain.NewValidationError(fmt.Sprintf("order cannot accept payments in %s status", order.Status))
		}
		if sub.Amount.Sub(order.Total).Abs().GreaterThan(amountTolerance) {
			return domain.NewValidationError("payment amount must match order total")
		}

		payment = domain.NewPayment(uuid.NewString(), p.Email, order.ID, reference, method, sub, now)
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Text limits follow the payments table column widths.
func validateBasicFields(sub domain.PaymentSubmission) error {
	var problems []string
	if strings.TrimSpace(sub.OrderID) == "" {
		problems = append(problems, "order ID is required")
	}
	if !sub.Amount.IsPositive() {
		problems = append(problems, "amount must be greater than zero")
	} else if sub.Amount.GreaterThan(maxPaymentAmount) {
		problems = append(problems, "amount exceeds maximum limit")
	} else if !sub.Amount.Equal(sub.Amount.Truncate(2)) {
		problems = append(problems, "amount must have at most 2 decimal places")
	}
	if strings.TrimSpace(sub.PaymentMethod) == "" {
		problems = append(problems, "payment method is required")
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"reference", sub.Reference, 255},
		{"receipt URL", sub.ReceiptURL, 1024},
		{"card holder name", sub.CardHolderName, 255},
		{"bank name", sub.BankName, 255},
		{"account holder name", sub.AccountHolderName, 255},
		{"PayPal email", sub.PaypalEmail, 255},
		{"PayPal transaction ID", sub.PaypalTransactionID, 64},
	} {
		if utf8.RuneCountInString(strings.TrimSpace(f.value)) > f.max {
			problems = append(problems, fmt.Sprintf("%s must be at most %d characters", f.name, f.max))
		}
	}
	if len(problems) > 0 {
		return domain.NewValidationError(problems...)
	}
	return nil
}

func generateReference() string {
	return "REF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (s *PaymentService) ListMine(ctx context.Context, p domain.Principal) ([]domain.PaymentSummary, error) {
	payments, err := s.db.ListPayments(ctx, port.PaymentFilter{OwnerEmail: p.Email})
	if err != nil {
		return nil, err
	}
	return domain.Summaries(payments), nil
}

func (s *PaymentService) ListPending(ctx context.Context, p domain.Principal) ([]domain.PaymentSummary, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	payments, err := s.db.ListPayments(ctx, port.PaymentFilter{Status: domain.PaymentStatusPending})
	if err != nil {
		return nil, err
	}
	return domain.Summaries(payments), nil
}

type HistoryFilter struct {
	Status    string
	UserEmail string
}

// History lists every payment for admins and the caller's own payments
// for vendors. Customers use ListMine instead.
func (s *PaymentService) History(ctx context.Context, p domain.Principal, f HistoryFilter) ([]domain.PaymentSummary, error) {
	var filter port.PaymentFilter
	switch p.Role {
	case domain.RoleAdmin:
		filter.EmailContains = strings.TrimSpace(f.UserEmail)
	case domain.RoleVendor:
		filter.OwnerEmail = p.Email
	default:
		return nil, fmt.Errorf("%w: payment history requires admin or vendor role", domain.ErrAccessDenied)
	}
	if f.Status != "" {
		status, err := domain.ParsePaymentStatus(f.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	payments, err := s.db.ListPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return domain.Summaries(payments), nil
}

func (s *PaymentService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Payment, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	payment, err := s.db.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	return payment, nil
}

// Approve verifies a pending payment and, in the same transaction,
// confirms its order if the order is still pending.
func (s *PaymentService) Approve(ctx context.Context, p domain.Principal, id, adminNote string) (*domain.Payment, error) {
	var confirmed bool
	payment, err := s.review(ctx, p, id, domain.PaymentStatusVerified, adminNote, func(tx port.Tx, payment *domain.Payment) error {
		var err error
		confirmed, err = syncOrderOnApproval(ctx, tx, payment.OrderID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment approved",
		"payment_id", payment.ID,
		"order_id", payment.OrderID,
		"order_confirmed", confirmed,
		"by", p.Email,
	)
	return payment, nil
}

// Reject never touches the order.
func (s *PaymentService) Reject(ctx context.Context, p domain.Principal, id, adminNote string) (*domain.Payment, error) {
	payment, err := s.review(ctx, p, id, domain.PaymentStatusRejected, adminNote, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment rejected", "payment_id", payment.ID, "order_id", payment.OrderID, "by", p.Email)
	return payment, nil
}

func (s *PaymentService) review(ctx context.Context, p domain.Principal, id string, to domain.PaymentStatus, note string, after func(port.Tx, *domain.Payment) error) (*domain.Payment, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}

	var payment *domain.Payment
	err := s.db.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		payment, err = tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
		}

		if err := payment.Review(to, note, s.now()); err != nil {
			return err
		}
		if err := tx.UpdatePaymentReview(ctx, *payment); err != nil {
			return err
		}
		payment.Version++

		if after != nil {
			return after(tx, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}
