// Package checkout runs the checkout workflow:
//
//	Validating -> Authorizing -> Recording -> Committing -> Complete
//
// with an exit to Failed from any state. Steps run strictly in order and
// nothing is compensated: once the gateway has been asked to authorize, the
// workflow runs to the end even if the caller goes away, and a captured
// payment is never voided here.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/storefront/internal/checkout/journal"
	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/infra/events"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
)

type State string

const (
	StateValidating  State = "Validating"
	StateAuthorizing State = "Authorizing"
	StateRecording   State = "Recording"
	StateCommitting  State = "Committing"
	StateComplete    State = "Complete"
	StateFailed      State = "Failed"
)

// StockLedger is the inventory surface checkout needs.
type StockLedger interface {
	CheckCart(ctx context.Context, lines []domain.CartLine) error
	CommitSale(ctx context.Context, productID string, qty int64) (*domain.Product, error)
}

// OrderAssembler persists the order once payment is authorized.
type OrderAssembler interface {
	Assemble(ctx context.Context, buyerID string, lines []domain.LineItem, receipt domain.TransactionResult) (*domain.Order, error)
}

// OrderFlagger marks an order for admin attention.
type OrderFlagger interface {
	FlagOrder(ctx context.Context, id, reason string) error
}

// Dependencies wires the orchestrator. Journal, Events and Cache are optional.
type Dependencies struct {
	Ledger    StockLedger
	Products  ports.ProductRepository
	Gateway   ports.PaymentGateway
	Assembler OrderAssembler
	Orders    OrderFlagger

	Journal        journal.Repository
	Events         ports.EventPublisher
	Cache          cache.Cache
	IdempotencyTTL time.Duration
}

type Orchestrator struct {
	deps   Dependencies
	tracer trace.Tracer
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = 24 * time.Hour
	}
	return &Orchestrator{
		deps:   deps,
		tracer: otel.Tracer("github.com/jcmexdev/storefront/internal/checkout"),
	}
}

type Request struct {
	BuyerID string
	Lines   []domain.CartLine
	Nonce   string
	// IdempotencyKey is optional. Repeating a key replays the first outcome
	// instead of charging again.
	IdempotencyKey string
}

type Result struct {
	CheckoutID    string             `json:"checkout_id"`
	OrderID       string             `json:"order_id"`
	TransactionID string             `json:"transaction_id"`
	Status        domain.OrderStatus `json:"status"`
	Amount        decimal.Decimal    `json:"amount"`
}

// run is the state shared by the steps of one checkout.
type run struct {
	id      string
	req     Request
	lines   []domain.LineItem
	total   decimal.Decimal
	receipt *domain.TransactionResult
	order   *domain.Order
	// committed lists product IDs whose sale went through, in cart order.
	committed []string
}

func (r *run) result() *Result {
	res := &Result{CheckoutID: r.id, Amount: r.total}
	if r.receipt != nil {
		res.TransactionID = r.receipt.TransactionID
	}
	if r.order != nil {
		res.OrderID = r.order.ID
		res.Status = r.order.Status
	}
	return res
}

// step is one state of the workflow.
type step interface {
	Name() State
	Execute(ctx context.Context, r *run) error
}

// irreversible marks the step from which the workflow no longer honours
// caller cancellation.
type irreversible interface {
	Irreversible()
}

// Checkout validates the cart, authorizes payment, records the order and
// commits stock. Failures are typed: ValidationError,
// InsufficientStockError, PaymentDeclinedError, ErrPaymentStatusUnknown,
// OrphanedPaymentError, StockCommitError.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	idem := o.idempotency(req)
	if rec, ok := idem.replay(ctx); ok {
		return rec.outcome()
	}
	release, err := idem.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	// A checkout holding the lock may have stored its outcome and released
	// between the lookup above and our acquire.
	if rec, ok := idem.replay(ctx); ok {
		return rec.outcome()
	}

	r := &run{id: uuid.NewString(), req: req}
	ctx, span := o.tracer.Start(ctx, "checkout", trace.WithAttributes(
		attribute.String("checkout.id", r.id),
		attribute.String("checkout.buyer_id", req.BuyerID),
		attribute.Int("checkout.lines", len(req.Lines)),
	))
	defer span.End()

	o.record(ctx, r, journal.StatusStarted, "", nil, cartPayload(req.Lines))
	slog.InfoContext(ctx, "checkout started", "checkout_id", r.id, "buyer_id", req.BuyerID, "lines", len(req.Lines))

	steps := []step{
		&validatingStep{ledger: o.deps.Ledger, products: o.deps.Products},
		&authorizingStep{gateway: o.deps.Gateway},
		&recordingStep{assembler: o.deps.Assembler},
		&committingStep{ledger: o.deps.Ledger, orders: o.deps.Orders},
	}

	if err := o.execute(ctx, r, steps); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		idem.remember(ctx, r, err)
		return nil, err
	}

	res := r.result()
	o.record(ctx, r, journal.StatusCompleted, StateComplete, nil, "")
	o.publish(ctx, events.OrderPlaced, res.OrderID, map[string]string{
		"checkout_id":    r.id,
		"order_id":       res.OrderID,
		"buyer_id":       req.BuyerID,
		"transaction_id": res.TransactionID,
		"amount":         r.total.StringFixed(2),
	})
	slog.InfoContext(ctx, "checkout complete", "checkout_id", r.id, "order_id", res.OrderID, "transaction_id", res.TransactionID)
	idem.remember(ctx, r, nil)
	return res, nil
}

// execute runs the steps in order and stops at the first failure.
func (o *Orchestrator) execute(ctx context.Context, r *run, steps []step) error {
	for _, s := range steps {
		if _, ok := s.(irreversible); ok {
			ctx = context.WithoutCancel(ctx)
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("checkout abandoned before %s: %w", s.Name(), err)
		}

		stepCtx, span := o.tracer.Start(ctx, "checkout."+string(s.Name()))
		err := s.Execute(stepCtx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.fail(stepCtx, r, s.Name(), err)
			span.End()
			return err
		}
		span.End()
		o.record(ctx, r, journal.StatusStepDone, s.Name(), nil, "")
	}
	return nil
}

// fail journals and reports a failed step with the severity its error kind
// calls for.
func (o *Orchestrator) fail(ctx context.Context, r *run, state State, err error) {
	attrs := []any{"checkout_id", r.id, "state", state, "error", err}

	switch {
	case errors.Is(err, domain.ErrOrphanedPayment):
		slog.ErrorContext(ctx, "CRITICAL: payment captured but order was not recorded; manual reconciliation required",
			append(attrs, "transaction_id", r.receipt.TransactionID, "amount", r.total.StringFixed(2))...)
		o.record(ctx, r, journal.StatusOrphanedPayment, state, err, "")
		o.publish(ctx, events.PaymentOrphaned, r.id, map[string]string{
			"checkout_id":    r.id,
			"buyer_id":       r.req.BuyerID,
			"transaction_id": r.receipt.TransactionID,
			"amount":         r.total.StringFixed(2),
			"error":          err.Error(),
		})
	case errors.Is(err, domain.ErrPaymentStatusUnknown):
		slog.ErrorContext(ctx, "payment status unknown; not recording order", append(attrs, "amount", r.total.StringFixed(2))...)
		o.record(ctx, r, journal.StatusPaymentUnknown, state, err, "")
		o.publish(ctx, events.PaymentUnknown, r.id, map[string]string{
			"checkout_id": r.id,
			"buyer_id":    r.req.BuyerID,
			"amount":      r.total.StringFixed(2),
		})
	case errors.Is(err, domain.ErrStockCommitFailed):
		slog.ErrorContext(ctx, "stock commit failed after order was recorded", append(attrs, "order_id", r.order.ID)...)
		o.record(ctx, r, journal.StatusNeedsAttention, state, err, "")
		o.publish(ctx, events.OrderNeedsAttention, r.order.ID, map[string]string{
			"checkout_id": r.id,
			"order_id":    r.order.ID,
			"reason":      err.Error(),
		})
	case errors.Is(err, domain.ErrPaymentDeclined), errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrValidation):
		slog.WarnContext(ctx, "checkout rejected", attrs...)
		o.record(ctx, r, journal.StatusFailed, state, err, "")
	default:
		slog.ErrorContext(ctx, "checkout failed", attrs...)
		o.record(ctx, r, journal.StatusFailed, state, err, "")
	}
}

// record appends to the journal. Journal failures are logged and never
// change the checkout outcome.
func (o *Orchestrator) record(ctx context.Context, r *run, status journal.Status, state State, cause error, payload string) {
	if o.deps.Journal == nil {
		return
	}
	t := journal.Transition{
		CheckoutID: r.id,
		Status:     status,
		Step:       string(state),
		BuyerID:    r.req.BuyerID,
		Payload:    payload,
	}
	if !r.total.IsZero() {
		t.Amount = r.total.StringFixed(2)
	}
	if r.receipt != nil {
		t.TransactionID = r.receipt.TransactionID
	}
	if r.order != nil {
		t.OrderID = r.order.ID
	}
	if cause != nil {
		t.Errors = []string{cause.Error()}
	}
	if err := o.deps.Journal.Save(context.WithoutCancel(ctx), journal.NewEntry(ctx, t)); err != nil {
		slog.ErrorContext(ctx, "failed to write checkout journal", "checkout_id", r.id, "status", status, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, typ, key string, payload map[string]string) {
	if o.deps.Events == nil {
		return
	}
	if err := o.deps.Events.Publish(context.WithoutCancel(ctx), ports.Event{Type: typ, Key: key, Payload: payload}); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "type", typ, "key", key, "error", err)
	}
}

func validateRequest(req Request) error {
	if req.BuyerID == "" {
		return domain.NewValidationError("buyer", "buyer is required")
	}
	if req.Nonce == "" {
		return domain.NewValidationError("nonce", "payment method nonce is required")
	}
	if len(req.Lines) == 0 {
		return domain.NewValidationError("cart", "cart is empty")
	}
	for i, l := range req.Lines {
		if l.ProductID == "" {
			return domain.NewValidationError(fmt.Sprintf("cart[%d].product_id", i), "product is required")
		}
		if l.Quantity <= 0 {
			return domain.NewValidationError(fmt.Sprintf("cart[%d].quantity", i), "quantity must be positive")
		}
	}
	return nil
}

func cartPayload(lines []domain.CartLine) string {
	type line struct {
		ProductID string `json:"product_id"`
		Quantity  int64  `json:"quantity"`
	}
	out := make([]line, len(lines))
	for i, l := range lines {
		out[i] = line{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return ""
	}
	return string(b)
}
