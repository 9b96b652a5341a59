package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
)

// lockTTL bounds how long a crashed checkout can hold its idempotency key.
const lockTTL = 2 * time.Minute

// Outcomes stored alongside a replayed result. Declines, stock shortfalls
// and validation errors are not stored: no money moved, so the caller may
// retry with the same key.
const (
	outcomeOK              = ""
	outcomeOrphanedPayment = "orphaned_payment"
	outcomePaymentUnknown  = "payment_unknown"
	outcomeStockCommit     = "stock_commit"
)

type replayRecord struct {
	Result    Result `json:"result"`
	Outcome   string `json:"outcome,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (rec replayRecord) err() error {
	cause := errors.New(rec.Reason)
	switch rec.Outcome {
	case outcomeOrphanedPayment:
		return &domain.OrphanedPaymentError{
			CheckoutID:    rec.Result.CheckoutID,
			TransactionID: rec.Result.TransactionID,
			Amount:        rec.Result.Amount,
			Err:           cause,
		}
	case outcomePaymentUnknown:
		return fmt.Errorf("%w: %s", domain.ErrPaymentStatusUnknown, rec.Reason)
	case outcomeStockCommit:
		return &domain.StockCommitError{OrderID: rec.Result.OrderID, ProductID: rec.ProductID, Err: cause}
	}
	return nil
}

func (rec replayRecord) outcome() (*Result, error) {
	if err := rec.err(); err != nil {
		return nil, err
	}
	res := rec.Result
	return &res, nil
}

// idempotencyGuard is a no-op when there is no cache or no key.
type idempotencyGuard struct {
	cache cache.Cache
	key   string
	ttl   time.Duration
}

func (o *Orchestrator) idempotency(req Request) idempotencyGuard {
	if o.deps.Cache == nil || req.IdempotencyKey == "" {
		return idempotencyGuard{}
	}
	return idempotencyGuard{
		cache: o.deps.Cache,
		key:   o.deps.Cache.GenerateKey("checkout", req.BuyerID+":"+req.IdempotencyKey),
		ttl:   o.deps.IdempotencyTTL,
	}
}

func (g idempotencyGuard) active() bool { return g.cache != nil }

// replay returns the stored outcome of an earlier checkout with the same key.
func (g idempotencyGuard) replay(ctx context.Context) (*replayRecord, bool) {
	if !g.active() {
		return nil, false
	}
	raw, err := g.cache.Get(ctx, g.key)
	if err != nil {
		slog.WarnContext(ctx, "idempotency lookup failed; continuing without replay", "key", g.key, "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var rec replayRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.WarnContext(ctx, "discarding unreadable idempotency record", "key", g.key, "error", err)
		return nil, false
	}
	slog.InfoContext(ctx, "replaying checkout", "key", g.key, "checkout_id", rec.Result.CheckoutID, "outcome", rec.Outcome)
	return &rec, true
}

// acquire takes the in-flight lock. The returned release func is always
// safe to call.
func (g idempotencyGuard) acquire(ctx context.Context) (func(), error) {
	if !g.active() {
		return func() {}, nil
	}
	lockKey := g.key + ":lock"
	ok, err := g.cache.SetNX(ctx, lockKey, "1", lockTTL)
	if err != nil {
		slog.WarnContext(ctx, "idempotency lock unavailable; continuing unguarded", "key", g.key, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, domain.ErrCheckoutInProgress
	}
	return func() {
		if err := g.cache.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			slog.WarnContext(ctx, "failed to release idempotency lock", "key", lockKey, "error", err)
		}
	}, nil
}

// remember stores the outcome when it must not be repeated.
func (g idempotencyGuard) remember(ctx context.Context, r *run, failure error) {
	if !g.active() {
		return
	}
	rec := replayRecord{Result: *r.result()}
	if failure != nil {
		rec.Reason = failure.Error()
		var commitErr *domain.StockCommitError
		switch {
		case errors.As(failure, &commitErr):
			rec.Outcome = outcomeStockCommit
			rec.ProductID = commitErr.ProductID
		case errors.Is(failure, domain.ErrOrphanedPayment):
			rec.Outcome = outcomeOrphanedPayment
		case errors.Is(failure, domain.ErrPaymentStatusUnknown):
			rec.Outcome = outcomePaymentUnknown
		default:
			return
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode idempotency record", "key", g.key, "error", err)
		return
	}
	if err := g.cache.Set(context.WithoutCancel(ctx), g.key, string(b), g.ttl); err != nil {
		slog.WarnContext(ctx, "failed to store idempotency record", "key", g.key, "error", err)
	}
}
