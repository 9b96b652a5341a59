package checkout

import (
	"context"

	"github.com/jcmexdev/storefront/internal/checkout/journal"
)

// Report groups journal entries an operator has to resolve by hand.
type Report struct {
	OrphanedPayments []journal.Entry `json:"orphaned_payments"`
	UnknownPayments  []journal.Entry `json:"unknown_payments"`
	NeedsAttention   []journal.Entry `json:"needs_attention"`
}

// Reconciliation lists the latest checkouts needing manual follow-up.
func (o *Orchestrator) Reconciliation(ctx context.Context, limit int) (*Report, error) {
	rep := &Report{
		OrphanedPayments: []journal.Entry{},
		UnknownPayments:  []journal.Entry{},
		NeedsAttention:   []journal.Entry{},
	}
	if o.deps.Journal == nil {
		return rep, nil
	}

	for status, dst := range map[journal.Status]*[]journal.Entry{
		journal.StatusOrphanedPayment: &rep.OrphanedPayments,
		journal.StatusPaymentUnknown:  &rep.UnknownPayments,
		journal.StatusNeedsAttention:  &rep.NeedsAttention,
	} {
		entries, err := o.deps.Journal.ListByStatus(ctx, status, limit)
		if err != nil {
			return nil, err
		}
		if entries != nil {
			*dst = entries
		}
	}
	return rep, nil
}
