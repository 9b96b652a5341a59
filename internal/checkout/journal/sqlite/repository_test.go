package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront/internal/checkout/journal"
)

func openTemp(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndGetLatest(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	started := journal.NewEntry(ctx, journal.Transition{CheckoutID: "c1", Status: journal.StatusStarted, Payload: `[{"product_id":"p1"}]`})
	require.NoError(t, repo.Save(ctx, started))

	done := journal.NewEntry(ctx, journal.Transition{
		CheckoutID: "c1", Status: journal.StatusCompleted, Step: "Committing",
		OrderID: "o1", TransactionID: "tx1", Amount: "20.00",
	})
	done.UpdatedAt = started.UpdatedAt.Add(time.Millisecond)
	require.NoError(t, repo.Save(ctx, done))

	latest, err := repo.GetLatest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusCompleted, latest.Status)
	assert.Equal(t, "o1", latest.OrderID)
	assert.Equal(t, "20.00", latest.Amount)
	assert.Empty(t, latest.Payload)
	assert.True(t, latest.UpdatedAt.Equal(done.UpdatedAt))
}

func TestGetLatest_Unknown(t *testing.T) {
	_, err := openTemp(t).GetLatest(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByStatus(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"c1", "c2", "c3"} {
		e := journal.NewEntry(ctx, journal.Transition{
			CheckoutID: id, Status: journal.StatusOrphanedPayment, TransactionID: "tx-" + id,
			Errors: []string{"db down"},
		})
		e.UpdatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Save(ctx, e))
	}
	require.NoError(t, repo.Save(ctx, journal.NewEntry(ctx, journal.Transition{CheckoutID: "c4", Status: journal.StatusCompleted})))

	orphans, err := repo.ListByStatus(ctx, journal.StatusOrphanedPayment, 0)
	require.NoError(t, err)
	require.Len(t, orphans, 3)
	assert.Equal(t, "c3", orphans[0].CheckoutID)
	assert.Equal(t, []string{"db down"}, orphans[0].Errors())

	limited, err := repo.ListByStatus(ctx, journal.StatusOrphanedPayment, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := repo.ListByStatus(ctx, journal.StatusPaymentUnknown, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
