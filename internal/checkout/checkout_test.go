package checkout

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront/internal/checkout/journal"
	journalsqlite "github.com/jcmexdev/storefront/internal/checkout/journal/sqlite"
	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/infra/events"
	"github.com/jcmexdev/storefront/internal/infra/memstore"
	"github.com/jcmexdev/storefront/internal/inventory"
	"github.com/jcmexdev/storefront/internal/order"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
)

type fakeGateway struct {
	calls     atomic.Int32
	mu        sync.Mutex
	amounts   []decimal.Decimal
	authorize func(ctx context.Context, amount decimal.Decimal) (*domain.TransactionResult, error)
}

func (g *fakeGateway) RequestClientToken(context.Context) (string, error) { return "client-token", nil }

func (g *fakeGateway) Authorize(ctx context.Context, _ string, amount decimal.Decimal) (*domain.TransactionResult, error) {
	n := g.calls.Add(1)
	g.mu.Lock()
	g.amounts = append(g.amounts, amount)
	g.mu.Unlock()
	if g.authorize != nil {
		return g.authorize(ctx, amount)
	}
	return &domain.TransactionResult{Success: true, TransactionID: fmt.Sprintf("tx-%d", n), Amount: amount}, nil
}

func (g *fakeGateway) lastAmount() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.amounts[len(g.amounts)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []ports.Event
}

func (l *eventLog) Publish(_ context.Context, e ports.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

type brokenOrders struct {
	*memstore.Store
}

func (brokenOrders) CreateOrder(context.Context, *domain.Order) error {
	return errors.New("connection reset by peer")
}

type harness struct {
	store   *memstore.Store
	gateway *fakeGateway
	journal *journalsqlite.Repository
	events  *eventLog
	p1, p2  *domain.Product
	deps    Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	cat := &domain.Category{Name: "Shoes", Slug: "shoes"}
	require.NoError(t, store.CreateCategory(ctx, cat))
	p1 := &domain.Product{Name: "Runner", Slug: "runner", Description: "fast", Price: decimal.RequireFromString("10.00"), Quantity: 5, CategoryID: cat.ID}
	p2 := &domain.Product{Name: "Trail", Slug: "trail", Description: "grippy", Price: decimal.RequireFromString("7.25"), Quantity: 1, CategoryID: cat.ID}
	require.NoError(t, store.CreateProduct(ctx, p1))
	require.NoError(t, store.CreateProduct(ctx, p2))

	repo, err := journalsqlite.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	h := &harness{store: store, gateway: &fakeGateway{}, journal: repo, events: &eventLog{}, p1: p1, p2: p2}
	h.deps = Dependencies{
		Ledger:    inventory.NewLedger(store),
		Products:  store,
		Gateway:   h.gateway,
		Assembler: order.NewAssembler(store),
		Orders:    store,
		Journal:   repo,
		Events:    h.events,
	}
	return h
}

func (h *harness) orchestrator() *Orchestrator { return NewOrchestrator(h.deps) }

func (h *harness) product(t *testing.T, id string) *domain.Product {
	t.Helper()
	p, err := h.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) journalEntries(t *testing.T, status journal.Status) []journal.Entry {
	t.Helper()
	entries, err := h.journal.ListByStatus(context.Background(), status, 0)
	require.NoError(t, err)
	return entries
}

func request(buyer string, lines ...domain.CartLine) Request {
	return Request{BuyerID: buyer, Lines: lines, Nonce: "fake-valid-nonce"}
}

func TestCheckout_Completes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orchestrator().Checkout(ctx, request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Equal(t, "20.00", h.gateway.lastAmount().StringFixed(2))
	assert.Equal(t, domain.StatusProcessing, res.Status)
	assert.Equal(t, "tx-1", res.TransactionID)
	assert.Equal(t, "20.00", res.Amount.StringFixed(2))

	o, err := h.store.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "u1", o.BuyerID)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "Runner", o.Lines[0].Name)
	assert.False(t, o.NeedsAttention)

	p := h.product(t, h.p1.ID)
	assert.EqualValues(t, 2, p.Sold)
	assert.EqualValues(t, 3, p.Available())

	latest, err := h.journal.GetLatest(ctx, res.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusCompleted, latest.Status)
	assert.Equal(t, res.OrderID, latest.OrderID)
	assert.Len(t, h.journalEntries(t, journal.StatusStepDone), 4)
	assert.Equal(t, []string{events.OrderPlaced}, h.events.types())
}

func TestCheckout_TotalsComeFromCatalogPrices(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator().Checkout(context.Background(), request("u1",
		domain.CartLine{ProductID: h.p1.ID, Quantity: 1},
		domain.CartLine{ProductID: h.p2.ID, Quantity: 1},
		domain.CartLine{ProductID: h.p1.ID, Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, "37.25", h.gateway.lastAmount().StringFixed(2))
	assert.EqualValues(t, 3, h.product(t, h.p1.ID).Sold)
}

func TestCheckout_InsufficientStockNeverCharges(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator().Checkout(context.Background(), request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 6}))

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, h.p1.ID, stockErr.ProductID)
	assert.EqualValues(t, 5, stockErr.Available)
	assert.Zero(t, h.gateway.calls.Load())
	orders, _ := h.store.ListOrders(context.Background())
	assert.Empty(t, orders)
	assert.Len(t, h.journalEntries(t, journal.StatusFailed), 1)
}

func TestCheckout_DuplicateLinesCheckedTogether(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator().Checkout(context.Background(), request("u1",
		domain.CartLine{ProductID: h.p2.ID, Quantity: 1},
		domain.CartLine{ProductID: h.p2.ID, Quantity: 1},
	))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Zero(t, h.gateway.calls.Load())
}

func TestCheckout_Declined(t *testing.T) {
	h := newHarness(t)
	h.gateway.authorize = func(context.Context, decimal.Decimal) (*domain.TransactionResult, error) {
		return &domain.TransactionResult{Success: false, Message: "Processor Declined"}, nil
	}

	_, err := h.orchestrator().Checkout(context.Background(), request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1}))

	var declined *domain.PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "Processor Declined", declined.Reason)
	assert.Zero(t, h.product(t, h.p1.ID).Sold)
	orders, _ := h.store.ListOrders(context.Background())
	assert.Empty(t, orders)
}

func TestCheckout_PaymentStatusUnknown(t *testing.T) {
	h := newHarness(t)
	h.gateway.authorize = func(context.Context, decimal.Decimal) (*domain.TransactionResult, error) {
		return nil, fmt.Errorf("%w: deadline exceeded", domain.ErrPaymentStatusUnknown)
	}

	_, err := h.orchestrator().Checkout(context.Background(), request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1}))

	require.ErrorIs(t, err, domain.ErrPaymentStatusUnknown)
	assert.Zero(t, h.product(t, h.p1.ID).Sold)
	orders, _ := h.store.ListOrders(context.Background())
	assert.Empty(t, orders)
	entries := h.journalEntries(t, journal.StatusPaymentUnknown)
	require.Len(t, entries, 1)
	assert.Equal(t, "10.00", entries[0].Amount)
	assert.Equal(t, []string{events.PaymentUnknown}, h.events.types())
}

func TestCheckout_SuccessWithoutTransactionIDIsUnknown(t *testing.T) {
	h := newHarness(t)
	h.gateway.authorize = func(_ context.Context, amount decimal.Decimal) (*domain.TransactionResult, error) {
		return &domain.TransactionResult{Success: true, Amount: amount}, nil
	}

	_, err := h.orchestrator().Checkout(context.Background(), request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrPaymentStatusUnknown)
}

func TestCheckout_OrphanedPayment(t *testing.T) {
	h := newHarness(t)
	h.deps.Assembler = order.NewAssembler(brokenOrders{h.store})

	_, err := h.orchestrator().Checkout(context.Background(), request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 2}))

	var orphan *domain.OrphanedPaymentError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "tx-1", orphan.TransactionID)
	assert.Equal(t, "20.00", orphan.Amount.StringFixed(2))
	assert.NotEmpty(t, orphan.CheckoutID)
	assert.Zero(t, h.product(t, h.p1.ID).Sold, "stock must stay untouched")

	entries := h.journalEntries(t, journal.StatusOrphanedPayment)
	require.Len(t, entries, 1)
	assert.Equal(t, "tx-1", entries[0].TransactionID)
	assert.Equal(t, string(StateRecording), entries[0].Step)
	assert.Contains(t, entries[0].Errors()[0], "connection reset")
	assert.Equal(t, []string{events.PaymentOrphaned}, h.events.types())

	rep, err := h.orchestrator().Reconciliation(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rep.OrphanedPayments, 1)
	assert.Empty(t, rep.UnknownPayments)
	assert.Empty(t, rep.NeedsAttention)
}

func TestCheckout_CommitFailureFlagsOrder(t *testing.T) {
	h := newHarness(t)
	// Another shopper takes the last unit of p2 while the payment is in flight.
	h.gateway.authorize = func(ctx context.Context, amount decimal.Decimal) (*domain.TransactionResult, error) {
		_, err := h.store.CommitSale(ctx, h.p2.ID, 1)
		require.NoError(t, err)
		return &domain.TransactionResult{Success: true, TransactionID: "tx-race", Amount: amount}, nil
	}

	_, err := h.orchestrator().Checkout(context.Background(), request("u1",
		domain.CartLine{ProductID: h.p1.ID, Quantity: 1},
		domain.CartLine{ProductID: h.p2.ID, Quantity: 1},
	))

	var commitErr *domain.StockCommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, h.p2.ID, commitErr.ProductID)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	o, err := h.store.GetOrder(context.Background(), commitErr.OrderID)
	require.NoError(t, err)
	assert.True(t, o.NeedsAttention)
	assert.Contains(t, o.AttentionReason, h.p2.ID)
	assert.Equal(t, domain.StatusProcessing, o.Status)

	assert.EqualValues(t, 1, h.product(t, h.p1.ID).Sold, "lines before the failure stay committed")
	assert.Len(t, h.journalEntries(t, journal.StatusNeedsAttention), 1)
	assert.Equal(t, []string{events.OrderNeedsAttention}, h.events.types())
}

func TestCheckout_RunsToTheEndOnceAuthorizing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.gateway.authorize = func(ctx context.Context, amount decimal.Decimal) (*domain.TransactionResult, error) {
		cancel()
		return &domain.TransactionResult{Success: true, TransactionID: "tx-1", Amount: amount}, nil
	}

	res, err := h.orchestrator().Checkout(ctx, request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.EqualValues(t, 1, h.product(t, h.p1.ID).Sold)
}

func TestCheckout_CancelledBeforePaymentStopsEarly(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orchestrator().Checkout(ctx, request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.gateway.calls.Load())
}

func TestCheckout_OrderSnapshotIgnoresLaterPriceChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orchestrator().Checkout(ctx, request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1}))
	require.NoError(t, err)

	p := h.product(t, h.p1.ID)
	p.Price = decimal.RequireFromString("99.00")
	p.Name = "Runner v2"
	require.NoError(t, h.store.UpdateProduct(ctx, p))

	o, err := h.store.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", o.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Runner", o.Lines[0].Name)
}

func TestCheckout_RejectsMalformedRequests(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator()

	for name, req := range map[string]Request{
		"no buyer":      {Nonce: "n", Lines: []domain.CartLine{{ProductID: h.p1.ID, Quantity: 1}}},
		"no nonce":      {BuyerID: "u1", Lines: []domain.CartLine{{ProductID: h.p1.ID, Quantity: 1}}},
		"empty cart":    {BuyerID: "u1", Nonce: "n"},
		"zero quantity": {BuyerID: "u1", Nonce: "n", Lines: []domain.CartLine{{ProductID: h.p1.ID}}},
		"no product":    {BuyerID: "u1", Nonce: "n", Lines: []domain.CartLine{{Quantity: 1}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := o.Checkout(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Zero(t, h.gateway.calls.Load())
}

func TestCheckout_UnknownProduct(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator().Checkout(context.Background(), request("u1", domain.CartLine{ProductID: "missing", Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Zero(t, h.gateway.calls.Load())
}

func withCache(t *testing.T, h *harness) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewFromClient(client, "storefront")
	h.deps.Cache = c
	return c, mr
}

func TestCheckout_IdempotencyKeyReplaysResult(t *testing.T) {
	h := newHarness(t)
	withCache(t, h)
	o := h.orchestrator()
	req := request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1})
	req.IdempotencyKey = "k-1"

	first, err := o.Checkout(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.EqualValues(t, 1, h.gateway.calls.Load())
	assert.EqualValues(t, 1, h.product(t, h.p1.ID).Sold)
}

func TestCheckout_IdempotencyKeyReplaysOrphan(t *testing.T) {
	h := newHarness(t)
	withCache(t, h)
	h.deps.Assembler = order.NewAssembler(brokenOrders{h.store})
	o := h.orchestrator()
	req := request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1})
	req.IdempotencyKey = "k-2"

	_, err := o.Checkout(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrOrphanedPayment)
	_, err = o.Checkout(context.Background(), req)

	var orphan *domain.OrphanedPaymentError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "tx-1", orphan.TransactionID)
	assert.EqualValues(t, 1, h.gateway.calls.Load(), "a replay must not charge again")
}

func TestCheckout_DeclineIsNotRemembered(t *testing.T) {
	h := newHarness(t)
	withCache(t, h)
	declines := true
	h.gateway.authorize = func(_ context.Context, amount decimal.Decimal) (*domain.TransactionResult, error) {
		if declines {
			return &domain.TransactionResult{Success: false, Message: "Insufficient Funds"}, nil
		}
		return &domain.TransactionResult{Success: true, TransactionID: "tx-ok", Amount: amount}, nil
	}
	o := h.orchestrator()
	req := request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1})
	req.IdempotencyKey = "k-3"

	_, err := o.Checkout(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrPaymentDeclined)

	declines = false
	res, err := o.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "tx-ok", res.TransactionID)
}

func TestCheckout_ConcurrentSameKeyIsRejected(t *testing.T) {
	h := newHarness(t)
	c, _ := withCache(t, h)
	req := request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1})
	req.IdempotencyKey = "k-4"

	lock := c.GenerateKey("checkout", "u1:k-4") + ":lock"
	ok, err := c.SetNX(context.Background(), lock, "1", lockTTL)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.orchestrator().Checkout(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrCheckoutInProgress)
	assert.Zero(t, h.gateway.calls.Load())
}

// staleLookupCache misses on its first Get and, before returning, lets a
// competing checkout with the same key run to completion.
type staleLookupCache struct {
	cache.Cache
	missed     bool
	competitor func()
}

func (c *staleLookupCache) Get(ctx context.Context, key string) (string, error) {
	if !c.missed {
		c.missed = true
		c.competitor()
		return "", nil
	}
	return c.Cache.Get(ctx, key)
}

func TestCheckout_SameKeyFinishingBeforeLockIsReplayed(t *testing.T) {
	h := newHarness(t)
	inner, _ := withCache(t, h)
	req := request("u1", domain.CartLine{ProductID: h.p1.ID, Quantity: 1})
	req.IdempotencyKey = "k-5"

	var first *Result
	stale := &staleLookupCache{Cache: inner}
	h.deps.Cache = stale
	o := h.orchestrator()
	stale.competitor = func() {
		var err error
		first, err = o.Checkout(context.Background(), req)
		require.NoError(t, err)
	}

	second, err := o.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, first)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.EqualValues(t, 1, h.gateway.calls.Load())
	assert.EqualValues(t, 1, h.product(t, h.p1.ID).Sold)

	orders, err := h.store.ListOrdersByBuyer(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestReconciliation_WithoutJournal(t *testing.T) {
	h := newHarness(t)
	h.deps.Journal = nil

	rep, err := h.orchestrator().Reconciliation(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rep.OrphanedPayments)
}
