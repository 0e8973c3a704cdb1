package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core unwraps to exactly one of these.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExternalProvider    = errors.New("external provider error")
	ErrTransientStore      = errors.New("transient store error")
	ErrInvariantViolation  = errors.New("invariant violation")
)

var (
	ErrPoolNotFound            = fmt.Errorf("pool %w", ErrNotFound)
	ErrUserNotFound            = fmt.Errorf("user %w", ErrNotFound)
	ErrAdminNotFound           = fmt.Errorf("admin %w", ErrNotFound)
	ErrWithdrawRequestNotFound = fmt.Errorf("withdraw request %w", ErrNotFound)
	ErrPaymentNotFound         = fmt.Errorf("payment %w", ErrNotFound)

	ErrPoolExists       = fmt.Errorf("%w: pool title already exists", ErrConflict)
	ErrPoolClosed       = fmt.Errorf("%w: pool is not open for tickets", ErrConflict)
	ErrAlreadyProcessed = fmt.Errorf("%w: withdraw request already processed", ErrConflict)
	ErrInvalidState     = fmt.Errorf("%w: withdraw request is not in a valid state for this operation", ErrConflict)
	ErrRateLimited      = fmt.Errorf("%w: too many requests", ErrConflict)

	ErrInsufficientCandidates = fmt.Errorf("%w: fewer than 3 candidates", ErrInvariantViolation)
	ErrRoleUnavailable        = fmt.Errorf("%w: no candidate available for required role", ErrInvariantViolation)
)

// ValidationError is bad caller input. It unwraps to ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// RateLimitError is a rejected request that may be retried after RetryAfterSeconds.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ProviderError is an explicit rejection returned by the payout provider.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("payout provider rejected request (status %d)", e.StatusCode)
	}
	return e.Description
}

func (e *ProviderError) Unwrap() error { return ErrExternalProvider }

// Kind returns the taxonomy sentinel err belongs to, or nil when it is unclassified.
func Kind(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrConflict,
		ErrInsufficientBalance,
		ErrExternalProvider,
		ErrTransientStore,
		ErrInvariantViolation,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
