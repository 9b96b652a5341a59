// Package inventory owns the per-product stock ledger used by checkout.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

type Ledger struct {
	store ports.StockStore
}

func NewLedger(store ports.StockStore) *Ledger {
	return &Ledger{store: store}
}

// ReserveCheck reports whether qty units are currently available. It is a
// pre-flight read and holds nothing; CommitSale remains authoritative.
func (l *Ledger) ReserveCheck(ctx context.Context, productID string, qty int64) (bool, error) {
	if qty <= 0 {
		return false, domain.NewValidationError("quantity", "quantity must be positive")
	}
	available, err := l.store.Available(ctx, productID)
	if err != nil {
		return false, err
	}
	return available >= qty, nil
}

// CheckCart validates every line against current stock. Lines naming the
// same product are checked against their combined quantity. It returns the
// first shortfall as *domain.InsufficientStockError.
func (l *Ledger) CheckCart(ctx context.Context, lines []domain.CartLine) error {
	totals := make(map[string]int64, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, seen := totals[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}

	for _, id := range order {
		available, err := l.store.Available(ctx, id)
		if err != nil {
			return err
		}
		if available < totals[id] {
			slog.WarnContext(ctx, "insufficient stock", "product_id", id, "requested", totals[id], "available", available)
			return &domain.InsufficientStockError{ProductID: id, Requested: totals[id], Available: available}
		}
	}
	return nil
}

// CommitSale atomically moves qty units into the sold counter.
func (l *Ledger) CommitSale(ctx context.Context, productID string, qty int64) (*domain.Product, error) {
	p, err := l.store.CommitSale(ctx, productID, qty)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("inventory: commit %d of %s: %w", qty, productID, err)
	}
	slog.InfoContext(ctx, "sale committed", "product_id", productID, "quantity", qty, "sold", p.Sold, "available", p.Available())
	return p, nil
}
