package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentMethodPayPal         PaymentMethod = "PAYPAL"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
)

// ParsePaymentMethod normalizes case and whitespace before matching.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodPayPal, PaymentMethodCashOnDelivery:
		return m, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, s)
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusVerified PaymentStatus = "VERIFIED"
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusVerified,
	PaymentStatusRejected,
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(PaymentStatuses, status) {
		return "", NewValidationError(fmt.Sprintf("unknown payment status %q", s))
	}
	return status, nil
}

// AllowedPaymentTransitions returns the statuses reachable from s.
// REJECTED -> PENDING is the resubmission edge.
func AllowedPaymentTransitions(s PaymentStatus) []PaymentStatus {
	switch s {
	case PaymentStatusPending:
		return []PaymentStatus{PaymentStatusVerified, PaymentStatusRejected}
	case PaymentStatusVerified:
		return nil
	case PaymentStatusRejected:
		return []PaymentStatus{PaymentStatusPending}
	}
	return nil
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(AllowedPaymentTransitions(from), to)
}

// NormalizeReference is the canonical form used for uniqueness.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// PaymentSubmission is the raw customer input for a payment upload. Card
// and account numbers are only held here; they never reach storage.
type PaymentSubmission struct {
	OrderID       string          `json:"orderId"`
	PaymentMethod string          `json:"paymentMethod"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference,omitempty"`
	ReceiptURL    string          `json:"receiptUrl,omitempty"`

	CardNumber     string `json:"cardNumber,omitempty"`
	CardHolderName string `json:"cardHolderName,omitempty"`
	CardExpiryDate string `json:"cardExpiryDate,omitempty"`
	CardCVV        string `json:"cardCvv,omitempty"`

	BankName          string `json:"bankName,omitempty"`
	AccountNumber     string `json:"accountNumber,omitempty"`
	AccountHolderName string `json:"accountHolderName,omitempty"`
	BranchCode        string `json:"branchCode,omitempty"`
	TransferDate      string `json:"transferDate,omitempty"`

	PaypalEmail         string `json:"paypalEmail,omitempty"`
	PaypalTransactionID string `json:"paypalTransactionId,omitempty"`
}

type Payment struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	OwnerEmail    string          `json:"ownerEmail"`
	Status        PaymentStatus   `json:"status"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptURL    string          `json:"receiptUrl,omitempty"`

	CardLast4      string `json:"cardLast4,omitempty"`
	CardHolderName string `json:"cardHolderName,omitempty"`

	BankName          string `json:"bankName,omitempty"`
	AccountLast4      string `json:"accountLast4,omitempty"`
	AccountHolderName string `json:"accountHolderName,omitempty"`
	BranchCode        string `json:"branchCode,omitempty"`
	TransferDate      string `json:"transferDate,omitempty"`

	PaypalEmail         string `json:"paypalEmail,omitempty"`
	PaypalTransactionID string `json:"paypalTransactionId,omitempty"`

	AdminNote string    `json:"adminNote,omitempty"`
	Version   int       `json:"-"` // optimistic locking
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewPayment builds a payment from a validated submission, keeping only
// the masked or derived form of sensitive fields.
func NewPayment(id, ownerEmail, orderID, reference string, method PaymentMethod, sub PaymentSubmission, now time.Time) Payment {
	p := Payment{
		ID:            id,
		OrderID:       orderID,
		OwnerEmail:    ownerEmail,
		Status:        PaymentStatusPending,
		PaymentMethod: method,
		Reference:     reference,
		Amount:        sub.Amount,
		ReceiptURL:    strings.TrimSpace(sub.ReceiptURL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch method {
	case PaymentMethodCard:
		p.CardLast4 = LastFour(sub.CardNumber)
		p.CardHolderName = strings.TrimSpace(sub.CardHolderName)
	case PaymentMethodBankTransfer:
		p.BankName = strings.TrimSpace(sub.BankName)
		p.AccountLast4 = LastFour(sub.AccountNumber)
		p.AccountHolderName = strings.TrimSpace(sub.AccountHolderName)
		p.BranchCode = strings.TrimSpace(sub.BranchCode)
		p.TransferDate = strings.TrimSpace(sub.TransferDate)
	case PaymentMethodPayPal:
		p.PaypalEmail = strings.TrimSpace(sub.PaypalEmail)
		p.PaypalTransactionID = strings.TrimSpace(sub.PaypalTransactionID)
	case PaymentMethodCashOnDelivery:
		// collected by the courier, nothing to review
		p.Status = PaymentStatusVerified
	}
	return p
}

// LastFour strips whitespace and keeps the trailing four characters.
func LastFour(number string) string {
	cleaned := strings.Join(strings.Fields(number), "")
	if len(cleaned) < 4 {
		return "****"
	}
	return cleaned[len(cleaned)-4:]
}

const MaxAdminNoteLen = 2000

// Review moves a PENDING payment to VERIFIED or REJECTED.
func (p *Payment) Review(to PaymentStatus, note string, now time.Time) error {
	if p.Status != PaymentStatusPending || !CanTransitionPayment(p.Status, to) {
		return fmt.Errorf("%w: payment %s is %s", ErrAlreadyReviewed, p.ID, p.Status)
	}
	note = strings.TrimSpace(note)
	if to == PaymentStatusRejected && note == "" {
		return NewValidationError("admin note is required for rejection")
	}
	if utf8.RuneCountInString(note) > MaxAdminNoteLen {
		return NewValidationError(fmt.Sprintf("admin note must be at most %d characters", MaxAdminNoteLen))
	}
	p.Status = to
	p.AdminNote = note
	p.UpdatedAt = now
	return nil
}

type PaymentSummary struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	OwnerEmail    string          `json:"ownerEmail"`
	Status        PaymentStatus   `json:"status"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (p Payment) Summary() PaymentSummary {
	return PaymentSummary{
		ID:            p.ID,
		OrderID:       p.OrderID,
		OwnerEmail:    p.OwnerEmail,
		Status:        p.Status,
		PaymentMethod: p.PaymentMethod,
		Reference:     p.Reference,
		Amount:        p.Amount,
		CreatedAt:     p.CreatedAt,
	}
}

func Summaries(payments []Payment) []PaymentSummary {
	out := make([]PaymentSummary, 0, len(payments))
	for _, p := range payments {
		out = append(out, p.Summary())
	}
	return out
}
