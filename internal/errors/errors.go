// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientMargin   = errors.New("insufficient margin")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrPositionNotFound     = errors.New("position not found")
	ErrContractNotFound     = errors.New("contract not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrSymbolNotFound       = errors.New("symbol not found")
	ErrPricingFailed        = errors.New("pricing failed")
	ErrOrderNotPending      = errors.New("order is not pending")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDatabaseError        = errors.New("database error")
	ErrInputValidation      = errors.New("input validation failed")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets errors.Is match ErrInputValidation.
func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// InsufficientError reports a shortfall of funds, margin or quantity.
type InsufficientError struct {
	Resource  string
	Required  float64
	Available float64
	Err       error
}

func (e *InsufficientError) Error() string {
	if e.Resource == "quantity" {
		return fmt.Sprintf("insufficient %s: required %.0f, available %.0f", e.Resource, e.Required, e.Available)
	}
	return fmt.Sprintf("insufficient %s: required ₹%.2f, available ₹%.2f", e.Resource, e.Required, e.Available)
}

func (e *InsufficientError) Unwrap() error {
	return e.Err
}

// NewInsufficientFunds creates an InsufficientError for cash balance.
func NewInsufficientFunds(required, available float64) *InsufficientError {
	return &InsufficientError{Resource: "funds", Required: required, Available: available, Err: ErrInsufficientFunds}
}

// NewInsufficientMargin creates an InsufficientError for blocked margin.
func NewInsufficientMargin(required, available float64) *InsufficientError {
	return &InsufficientError{Resource: "margin", Required: required, Available: available, Err: ErrInsufficientMargin}
}

// NewInsufficientQuantity creates an InsufficientError for held quantity.
func NewInsufficientQuantity(required, available int) *InsufficientError {
	return &InsufficientError{
		Resource:  "quantity",
		Required:  float64(required),
		Available: float64(available),
		Err:       ErrInsufficientQuantity,
	}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Kind string
	Key  string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewPositionNotFound creates a NotFoundError for a position key.
func NewPositionNotFound(key string) *NotFoundError {
	return &NotFoundError{Kind: "position", Key: key, Err: ErrPositionNotFound}
}

// NewContractNotFound creates a NotFoundError for an option contract.
func NewContractNotFound(key string) *NotFoundError {
	return &NotFoundError{Kind: "contract", Key: key, Err: ErrContractNotFound}
}

// NewOrderNotFound creates a NotFoundError for an order ID.
func NewOrderNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "order", Key: id, Err: ErrOrderNotFound}
}

// PricingError represents a Black-Scholes evaluation failure.
type PricingError struct {
	Spot       float64
	Strike     float64
	Expiry     float64
	Volatility float64
	Reason     string
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("pricing error (S=%.2f K=%.2f T=%.4f σ=%.4f): %s", e.Spot, e.Strike, e.Expiry, e.Volatility, e.Reason)
}

func (e *PricingError) Unwrap() error {
	return ErrPricingFailed
}

// NewPricingError creates a new PricingError.
func NewPricingError(spot, strike, expiry, vol float64, reason string) *PricingError {
	return &PricingError{
		Spot:       spot,
		Strike:     strike,
		Expiry:     expiry,
		Volatility: vol,
		Reason:     reason,
	}
}

// OrderError reports an operation refused for a specific order.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
