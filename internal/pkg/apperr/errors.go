// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
)

// ErrConflict means a concurrent writer won the race for the same row.
// The whole operation can be retried.
var ErrConflict = errors.New("concurrent update conflict, please retry")

// ErrForbidden is returned when a customer attempts a back-office action
var ErrForbidden = errors.New("action requires administrator privileges")

// ErrInvalidCredentials is returned for an unknown email or a wrong password
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrUnauthorized is returned when a token is missing, expired or of the wrong kind
var ErrUnauthorized = errors.New("authentication required")

// ErrAlreadyExists is returned when a unique value is taken
var ErrAlreadyExists = errors.New("resource already exists")

// InsufficientStockError is returned when a product cannot cover the requested quantity
type InsufficientStockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// InvalidTransitionError is returned when an order cannot move to the requested state
type InvalidTransitionError struct {
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.Current, e.Requested)
}

// NotFoundError is returned when a cart line, order, product or user does not exist
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// RateLimitedError is returned while a login identity is locked out
type RateLimitedError struct {
	RetryAfter   int
	LockoutCount int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many login attempts, retry in %d seconds", e.RetryAfter)
}

// ValidationError is returned for malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFound is a shorthand constructor
func NotFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Invalid is a shorthand constructor
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRetryable reports whether the caller may re-run the whole operation unchanged
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
