package journal

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the W3C identifiers of the span active in a context.
type TraceInfo struct {
	TraceID string
	SpanID  string
}

// ExtractTraceInfo returns empty identifiers when ctx carries no valid span,
// which is the normal case in unit tests.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// Transition describes one journal row before trace data and time are added.
type Transition struct {
	CheckoutID    string
	Status        Status
	Step          string
	BuyerID       string
	OrderID       string
	TransactionID string
	Amount        string
	Payload       string
	Errors        []string
}

// NewEntry stamps t with the active span and the current UTC time.
//
//	entry := journal.NewEntry(ctx, journal.Transition{
//		CheckoutID: id, Status: journal.StatusStepDone, Step: "Authorizing",
//	})
//	_ = repo.Save(ctx, entry)
func NewEntry(ctx context.Context, t Transition) *Entry {
	ti := ExtractTraceInfo(ctx)

	errJSON := "[]"
	if len(t.Errors) > 0 {
		if b, err := json.Marshal(t.Errors); err == nil {
			errJSON = string(b)
		}
	}

	return &Entry{
		CheckoutID:    t.CheckoutID,
		Status:        t.Status,
		Step:          t.Step,
		BuyerID:       t.BuyerID,
		OrderID:       t.OrderID,
		TransactionID: t.TransactionID,
		Amount:        t.Amount,
		Payload:       t.Payload,
		ErrorMessages: errJSON,
		TraceID:       ti.TraceID,
		SpanID:        ti.SpanID,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Errors decodes ErrorMessages.
func (e Entry) Errors() []string {
	var out []string
	_ = json.Unmarshal([]byte(e.ErrorMessages), &out)
	return out
}
