// Package validation holds the method-specific checks applied to payment
// submissions. Every check is a pure function of the submission and the
// reference time, and reports one message per failing rule.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
)

const (
	transferDateLayout = "2006-01-02"
	maxTransferAgeDays = 90
)

var (
	holderNameRe    = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	cardExpiryRe    = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)
	cvvRe           = regexp.MustCompile(`^[0-9]{3,4}$`)
	digitsRe        = regexp.MustCompile(`^[0-9]+$`)
	branchCodeRe    = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)
	paypalEmailRe   = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)
	transactionIDRe = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// Validate dispatches on the payment method. An empty result means the
// submission is acceptable for that method.
func Validate(method domain.PaymentMethod, sub domain.PaymentSubmission, now time.Time) ([]string, error) {
	switch method {
	case domain.PaymentMethodCard:
		return validateCard(sub, now), nil
	case domain.PaymentMethodBankTransfer:
		return validateBankTransfer(sub, now), nil
	case domain.PaymentMethodPayPal:
		return validatePayPal(sub), nil
	case domain.PaymentMethodCashOnDelivery:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMethod, method)
}

func validateCard(sub domain.PaymentSubmission, now time.Time) []string {
	var errs []string

	number := stripSpaces(sub.CardNumber)
	if len(number) < 13 || len(number) > 19 {
		errs = append(errs, "card number must be between 13-19 digits")
	}
	if number != "" && !Luhn(number) {
		errs = append(errs, "invalid card number (failed Luhn check)")
	}

	holder := strings.TrimSpace(sub.CardHolderName)
	switch {
	case holder == "":
		errs = append(errs, "card holder name is required")
	case len(holder) < 3:
		errs = append(errs, "card holder name must be at least 3 characters")
	case !holderNameRe.MatchString(holder):
		errs = append(errs, "card holder name can only contain letters and spaces")
	}

	expiry := strings.TrimSpace(sub.CardExpiryDate)
	if expiry == "" {
		errs = append(errs, "card expiry date is required")
	} else if m := cardExpiryRe.FindStringSubmatch(expiry); m == nil {
		errs = append(errs, "card expiry date must be in MM/YY format")
	} else {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		year += 2000
		if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
			errs = append(errs, "card has expired")
		}
	}

	if !cvvRe.MatchString(strings.TrimSpace(sub.CardCVV)) {
		errs = append(errs, "CVV must be 3 or 4 digits")
	}

	return errs
}

func validateBankTransfer(sub domain.PaymentSubmission, now time.Time) []string {
	var errs []string

	bank := strings.TrimSpace(sub.BankName)
	if bank == "" {
		errs = append(errs, "bank name is required")
	} else if len(bank) < 3 {
		errs = append(errs, "bank name must be at least 3 characters")
	}

	account := stripSpaces(sub.AccountNumber)
	switch {
	case account == "":
		errs = append(errs, "account number is required")
	case len(account) < 8:
		errs = append(errs, "account number must be at least 8 digits")
	case !digitsRe.MatchString(account):
		errs = append(errs, "account number must contain only digits")
	}

	holder := strings.TrimSpace(sub.AccountHolderName)
	if holder == "" {
		errs = append(errs, "account holder name is required")
	} else if len(holder) < 3 {
		errs = append(errs, "account holder name must be at least 3 characters")
	}

	if branch := strings.TrimSpace(sub.BranchCode); branch != "" && !branchCodeRe.MatchString(branch) {
		errs = append(errs, "branch code must be 4-10 alphanumeric characters")
	}

	date := strings.TrimSpace(sub.TransferDate)
	if date == "" {
		errs = append(errs, "transfer date is required")
	} else if transferred, err := time.Parse(transferDateLayout, date); err != nil {
		errs = append(errs, "invalid transfer date format (use YYYY-MM-DD)")
	} else {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if transferred.After(today) {
			errs = append(errs, "transfer date cannot be in the future")
		}
		if transferred.Before(today.AddDate(0, 0, -maxTransferAgeDays)) {
			errs = append(errs, "transfer date cannot be older than 90 days")
		}
	}

	return errs
}

func validatePayPal(sub domain.PaymentSubmission) []string {
	var errs []string

	email := strings.TrimSpace(sub.PaypalEmail)
	if email == "" {
		errs = append(errs, "PayPal email is required")
	} else if !paypalEmailRe.MatchString(email) {
		errs = append(errs, "invalid PayPal email format")
	}

	txID := strings.TrimSpace(sub.PaypalTransactionID)
	switch {
	case txID == "":
		errs = append(errs, "PayPal transaction ID is required")
	case len(txID) < 10:
		errs = append(errs, "PayPal transaction ID must be at least 10 characters")
	case !transactionIDRe.MatchString(txID):
		errs = append(errs, "PayPal transaction ID must be alphanumeric")
	}

	return errs
}

// Luhn reports whether number passes the mod-10 checksum. Any non-digit
// character fails the check.
func Luhn(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
