package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyReviewed   = errors.New("payment already reviewed")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrEmptyCart         = errors.New("cart is empty")
)

// ValidationError carries every field-level problem found in a request.
type ValidationError struct {
	Problems []string
}

func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError names the rejected source and target states.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
