package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

// --- Validating ---

// validatingStep checks stock for the whole cart and freezes a snapshot of
// every line at the current catalog price. Nothing is written.
type validatingStep struct {
	ledger   StockLedger
	products ports.ProductRepository
}

func (s *validatingStep) Name() State { return StateValidating }

func (s *validatingStep) Execute(ctx context.Context, r *run) error {
	if err := s.ledger.CheckCart(ctx, r.req.Lines); err != nil {
		return err
	}

	cached := make(map[string]*domain.Product, len(r.req.Lines))
	lines := make([]domain.LineItem, 0, len(r.req.Lines))
	total := decimal.Zero
	for _, cl := range r.req.Lines {
		p, ok := cached[cl.ProductID]
		if !ok {
			var err error
			p, err = s.products.GetProduct(ctx, cl.ProductID)
			if err != nil {
				return fmt.Errorf("load product %s: %w", cl.ProductID, err)
			}
			cached[cl.ProductID] = p
		}
		li := domain.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Slug:      p.Slug,
			UnitPrice: p.Price,
			Quantity:  cl.Quantity,
		}
		lines = append(lines, li)
		total = total.Add(li.Subtotal())
	}

	r.lines = lines
	r.total = total
	return nil
}

// --- Authorizing ---

// authorizingStep asks the gateway to capture the server-computed total.
// It makes exactly one call and never retries.
type authorizingStep struct {
	gateway ports.PaymentGateway
}

func (s *authorizingStep) Name() State { return StateAuthorizing }

func (s *authorizingStep) Irreversible() {}

func (s *authorizingStep) Execute(ctx context.Context, r *run) error {
	receipt, err := s.gateway.Authorize(ctx, r.req.Nonce, r.total)
	if err != nil {
		return err
	}
	if !receipt.Success {
		return &domain.PaymentDeclinedError{Reason: receipt.Message}
	}
	if receipt.TransactionID == "" {
		return fmt.Errorf("%w: gateway reported success without a transaction id", domain.ErrPaymentStatusUnknown)
	}
	if !receipt.Amount.IsZero() && !receipt.Amount.Equal(r.total) {
		slog.WarnContext(ctx, "gateway settled a different amount",
			"checkout_id", r.id, "requested", r.total.StringFixed(2), "settled", receipt.Amount.StringFixed(2))
	}
	r.receipt = receipt
	return nil
}

// --- Recording ---

// recordingStep persists the order. Money has moved by now, so any failure
// is reported as an orphaned payment.
type recordingStep struct {
	assembler OrderAssembler
}

func (s *recordingStep) Name() State { return StateRecording }

func (s *recordingStep) Execute(ctx context.Context, r *run) error {
	o, err := s.assembler.Assemble(ctx, r.req.BuyerID, r.lines, *r.receipt)
	if err != nil {
		return &domain.OrphanedPaymentError{
			CheckoutID:    r.id,
			TransactionID: r.receipt.TransactionID,
			Amount:        r.total,
			Err:           err,
		}
	}
	r.order = o
	return nil
}

// --- Committing ---

// committingStep moves every line into the sold counter in cart order. It
// stops at the first failure and flags the order; lines already committed
// stay committed.
type committingStep struct {
	ledger StockLedger
	orders OrderFlagger
}

func (s *committingStep) Name() State { return StateCommitting }

func (s *committingStep) Execute(ctx context.Context, r *run) error {
	for _, li := range r.lines {
		if _, err := s.ledger.CommitSale(ctx, li.ProductID, li.Quantity); err != nil {
			reason := fmt.Sprintf("stock commit failed for product %s (quantity %d) after %d of %d lines: %v",
				li.ProductID, li.Quantity, len(r.committed), len(r.lines), err)
			if ferr := s.orders.FlagOrder(ctx, r.order.ID, reason); ferr != nil {
				slog.ErrorContext(ctx, "CRITICAL: could not flag order after stock commit failure",
					"order_id", r.order.ID, "reason", reason, "error", ferr)
				err = errors.Join(err, ferr)
			} else {
				r.order.NeedsAttention = true
				r.order.AttentionReason = reason
			}
			return &domain.StockCommitError{OrderID: r.order.ID, ProductID: li.ProductID, Err: err}
		}
		r.committed = append(r.committed, li.ProductID)
	}
	return nil
}
