package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/infra/memstore"
)

func newLedger(t *testing.T, quantity, sold int64) (*Ledger, *memstore.Store, string) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	cat := &domain.Category{Name: "Shoes", Slug: "shoes"}
	require.NoError(t, store.CreateCategory(ctx, cat))
	p := &domain.Product{
		Name: "Runner", Slug: "runner", Description: "d", Price: decimal.RequireFromString("10.00"),
		Quantity: quantity, Sold: sold, CategoryID: cat.ID,
	}
	require.NoError(t, store.CreateProduct(ctx, p))
	return NewLedger(store), store, p.ID
}

func TestReserveCheck(t *testing.T) {
	ledger, _, id := newLedger(t, 5, 4)
	ctx := context.Background()

	ok, err := ledger.ReserveCheck(ctx, id, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.ReserveCheck(ctx, id, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ledger.ReserveCheck(ctx, id, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = ledger.ReserveCheck(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCheckCart_DuplicateLinesAreCumulative(t *testing.T) {
	ledger, _, id := newLedger(t, 3, 0)

	err := ledger.CheckCart(context.Background(), []domain.CartLine{
		{ProductID: id, Quantity: 2},
		{ProductID: id, Quantity: 2},
	})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.EqualValues(t, 4, stockErr.Requested)
	assert.EqualValues(t, 3, stockErr.Available)
}

func TestCommitSale_UpdatesCounters(t *testing.T) {
	ledger, _, id := newLedger(t, 5, 0)

	p, err := ledger.CommitSale(context.Background(), id, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.Sold)
	assert.EqualValues(t, 3, p.Available())
}

func TestCommitSale_NoOversellUnderContention(t *testing.T) {
	ledger, store, id := newLedger(t, 1, 0)

	const workers = 50
	var wg sync.WaitGroup
	var wins atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.CommitSale(context.Background(), id, 1); err == nil {
				wins.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	p, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Sold, p.Quantity)
}

type brokenStore struct{ err error }

func (b brokenStore) Available(context.Context, string) (int64, error) { return 0, b.err }
func (b brokenStore) CommitSale(context.Context, string, int64) (*domain.Product, error) {
	return nil, b.err
}

func TestCommitSale_WrapsInfrastructureErrors(t *testing.T) {
	boom := errors.New("connection reset")
	ledger := NewLedger(brokenStore{err: boom})

	_, err := ledger.CommitSale(context.Background(), "p1", 1)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrInsufficientStock)
}
