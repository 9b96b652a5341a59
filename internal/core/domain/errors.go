package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrConflict                = errors.New("already exists")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrPaymentDeclined         = errors.New("payment declined")
	ErrPaymentStatusUnknown    = errors.New("payment status unknown")
	ErrOrphanedPayment         = errors.New("payment captured without order")
	ErrStockCommitFailed       = errors.New("stock commit failed after order was recorded")
	ErrCategoryInUse           = errors.New("category has products")
	ErrProductInUse            = errors.New("product is referenced by open orders")
	ErrProductNotFound         = errors.New("product not found")
	ErrCategoryNotFound        = errors.New("category not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrCheckoutInProgress      = errors.New("checkout already in progress")
	ErrSlugExhausted           = errors.New("slug candidates exhausted")
)

// ValidationError reports bad caller input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PaymentDeclinedError carries the gateway's refusal message. The message is
// safe to show to the customer; internal identifiers are never put in it.
type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	if e.Reason == "" {
		return ErrPaymentDeclined.Error()
	}
	return fmt.Sprintf("%s: %s", ErrPaymentDeclined, e.Reason)
}

func (e *PaymentDeclinedError) Unwrap() error { return ErrPaymentDeclined }

// OrphanedPaymentError is raised when the gateway captured money but the order
// could not be persisted. It needs reconciliation, never an automatic retry.
type OrphanedPaymentError struct {
	CheckoutID    string
	TransactionID string
	Amount        decimal.Decimal
	Err           error
}

func (e *OrphanedPaymentError) Error() string {
	return fmt.Sprintf("%s (checkout %s, transaction %s, amount %s): %v",
		ErrOrphanedPayment, e.CheckoutID, e.TransactionID, e.Amount.StringFixed(2), e.Err)
}

func (e *OrphanedPaymentError) Unwrap() []error { return []error{ErrOrphanedPayment, e.Err} }

// StockCommitError means the order exists but a line could not be committed
// to inventory. The order has been flagged for admin attention.
type StockCommitError struct {
	OrderID   string
	ProductID string
	Err       error
}

func (e *StockCommitError) Error() string {
	return fmt.Sprintf("%s (order %s, product %s): %v", ErrStockCommitFailed, e.OrderID, e.ProductID, e.Err)
}

func (e *StockCommitError) Unwrap() []error { return []error{ErrStockCommitFailed, e.Err} }

type CategoryInUseError struct {
	CategoryID   string
	ProductCount int64
}

func (e *CategoryInUseError) Error() string {
	return fmt.Sprintf("cannot delete category %s: it has %d products associated with it", e.CategoryID, e.ProductCount)
}

func (e *CategoryInUseError) Unwrap() error { return ErrCategoryInUse }
