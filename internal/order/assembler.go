// Package order builds and administers Order aggregates.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

var errUnpaidOrder = errors.New("order requires a successful payment receipt")

type Assembler struct {
	orders ports.OrderRepository
}

func NewAssembler(orders ports.OrderRepository) *Assembler {
	return &Assembler{orders: orders}
}

// Assemble persists a Processing order from already-validated line
// snapshots and an authorized receipt. It does not re-check price or stock.
func (a *Assembler) Assemble(ctx context.Context, buyerID string, lines []domain.LineItem, receipt domain.TransactionResult) (*domain.Order, error) {
	if !receipt.Success || receipt.TransactionID == "" {
		return nil, errUnpaidOrder
	}
	if len(lines) == 0 {
		return nil, domain.NewValidationError("lines", "order must contain at least one line")
	}

	o := &domain.Order{
		BuyerID: buyerID,
		Lines:   slices.Clone(lines),
		Payment: receipt,
		Status:  domain.StatusProcessing,
	}
	if err := a.orders.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("order: record order for buyer %s: %w", buyerID, err)
	}

	slog.InfoContext(ctx, "order recorded",
		"order_id", o.ID,
		"buyer_id", buyerID,
		"transaction_id", receipt.TransactionID,
		"total", o.Total().StringFixed(2),
	)
	return o, nil
}
