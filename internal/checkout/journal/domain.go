// Package journal defines the checkout journal: an append-only record of
// every state transition a checkout goes through.
//
// It serves two purposes:
//
//  1. Observability: each row carries the trace_id of the span that was
//     active when it was written, so a checkout can be followed from the
//     journal straight into the distributed trace.
//
//  2. Reconciliation: checkouts that end with money captured but no order
//     (ORPHANED_PAYMENT), with an ambiguous gateway answer (PAYMENT_UNKNOWN),
//     or with an order whose stock commit failed (NEEDS_ATTENTION) are found
//     with ListByStatus and resolved by an operator.
package journal

import (
	"context"
	"time"
)

// Status is the lifecycle state recorded by a journal entry.
type Status string

const (
	StatusStarted         Status = "STARTED"
	StatusStepDone        Status = "STEP_DONE"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusPaymentUnknown  Status = "PAYMENT_UNKNOWN"
	StatusOrphanedPayment Status = "ORPHANED_PAYMENT"
	StatusNeedsAttention  Status = "NEEDS_ATTENTION"
)

// NeedsReconciliation reports whether an operator has to look at a checkout
// that ended in this status.
func (s Status) NeedsReconciliation() bool {
	switch s {
	case StatusPaymentUnknown, StatusOrphanedPayment, StatusNeedsAttention:
		return true
	}
	return false
}

// Entry is a single row of the journal.
type Entry struct {
	// CheckoutID identifies one checkout attempt. Every transition of the
	// same attempt shares it.
	CheckoutID string

	Status Status

	// Step is the checkout state that was just executed or failed
	// (Validating, Authorizing, Recording, Committing).
	Step string

	BuyerID       string
	OrderID       string
	TransactionID string

	// Amount is the two-decimal string sent to the gateway, once known.
	Amount string

	// Payload is the JSON-encoded cart. Written once on STARTED.
	Payload string

	// ErrorMessages is a JSON array of failure details.
	ErrorMessages string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}

// Repository persists journal entries. Save appends; it never updates.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
	GetLatest(ctx context.Context, checkoutID string) (*Entry, error)
	// ListByStatus returns entries with the given status, newest first.
	// limit <= 0 means no limit.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Entry, error)
}
