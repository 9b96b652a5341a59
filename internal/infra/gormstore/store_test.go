package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

// SetupTest gives every test its own database file.
func (s *StoreTestSuite) SetupTest() {
	dsn := filepath.Join(s.T().TempDir(), "store.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	store, err := OpenDialector(sqlite.Open(dsn))
	s.Require().NoError(err)

	sqlDB, err := store.DB().DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)

	s.store = store
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	_ = s.store.Close()
}

func (s *StoreTestSuite) seedProduct(quantity, sold int64, price string) (*domain.Category, *domain.Product) {
	cat := &domain.Category{Name: "Shoes", Slug: "shoes"}
	if existing, err := s.store.GetCategoryBySlug(s.ctx, "shoes"); err == nil {
		cat = existing
	} else {
		s.Require().NoError(s.store.CreateCategory(s.ctx, cat))
	}

	n, err := s.store.CountProducts(s.ctx)
	s.Require().NoError(err)
	p := &domain.Product{
		Name:        "Runner",
		Slug:        "runner-" + decimal.NewFromInt(n).String(),
		Description: "A running shoe",
		Price:       decimal.RequireFromString(price),
		Quantity:    quantity,
		Sold:        sold,
		CategoryID:  cat.ID,
	}
	s.Require().NoError(s.store.CreateProduct(s.ctx, p))
	return cat, p
}

func (s *StoreTestSuite) TestCreateProduct_AssignsIDAndTimestamps() {
	_, p := s.seedProduct(5, 0, "10.00")

	s.NotEmpty(p.ID)
	s.False(p.CreatedAt.IsZero())

	got, err := s.store.GetProduct(s.ctx, p.ID, ports.WithCategory())
	s.Require().NoError(err)
	s.True(got.Price.Equal(decimal.RequireFromString("10")))
	s.Require().NotNil(got.Category)
	s.Equal("Shoes", got.Category.Name)
}

func (s *StoreTestSuite) TestCreateProduct_UnknownCategory() {
	err := s.store.CreateProduct(s.ctx, &domain.Product{
		Name: "x", Slug: "x", Description: "x", Price: decimal.NewFromInt(1), CategoryID: "missing",
	})
	s.ErrorIs(err, domain.ErrCategoryNotFound)
}

func (s *StoreTestSuite) TestCreateCategory_DuplicateNameConflicts() {
	s.Require().NoError(s.store.CreateCategory(s.ctx, &domain.Category{Name: "Hats", Slug: "hats"}))

	err := s.store.CreateCategory(s.ctx, &domain.Category{Name: "Hats", Slug: "hats-1"})
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *StoreTestSuite) TestCommitSale_IncrementsSold() {
	_, p := s.seedProduct(5, 0, "10.00")

	updated, err := s.store.CommitSale(s.ctx, p.ID, 2)
	s.Require().NoError(err)
	s.EqualValues(2, updated.Sold)
	s.EqualValues(3, updated.Available())

	avail, err := s.store.Available(s.ctx, p.ID)
	s.Require().NoError(err)
	s.EqualValues(3, avail)
}

func (s *StoreTestSuite) TestCommitSale_GuardRejectsOversell() {
	_, p := s.seedProduct(5, 4, "10.00")

	_, err := s.store.CommitSale(s.ctx, p.ID, 2)
	var stockErr *domain.InsufficientStockError
	s.Require().ErrorAs(err, &stockErr)
	s.EqualValues(1, stockErr.Available)

	got, err := s.store.GetProduct(s.ctx, p.ID)
	s.Require().NoError(err)
	s.EqualValues(4, got.Sold)
}

func (s *StoreTestSuite) TestCommitSale_MissingProduct() {
	_, err := s.store.CommitSale(s.ctx, "nope", 1)
	s.ErrorIs(err, domain.ErrProductNotFound)
}

func (s *StoreTestSuite) TestCommitSale_ConcurrentLastUnit() {
	_, p := s.seedProduct(1, 0, "10.00")

	const workers = 16
	var wg sync.WaitGroup
	var ok, short atomic.Int32
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.CommitSale(context.Background(), p.ID, 1)
			switch {
			case err == nil:
				ok.Add(1)
			case isInsufficient(err):
				short.Add(1)
			default:
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Fail("unexpected error", err.Error())
	}
	s.EqualValues(1, ok.Load())
	s.EqualValues(workers-1, short.Load())

	got, err := s.store.GetProduct(s.ctx, p.ID)
	s.Require().NoError(err)
	s.EqualValues(1, got.Sold)
}

func isInsufficient(err error) bool {
	var e *domain.InsufficientStockError
	return errors.As(err, &e)
}

func (s *StoreTestSuite) TestCheckConstraint_BlocksDirectOversell() {
	_, p := s.seedProduct(3, 0, "10.00")

	err := s.store.DB().Exec("UPDATE products SET sold = quantity + 1 WHERE id = ?", p.ID).Error
	s.Error(err)
}

func (s *StoreTestSuite) TestUpdateProduct_QuantityBelowSold() {
	_, p := s.seedProduct(5, 3, "10.00")

	p.Quantity = 2
	s.ErrorIs(s.store.UpdateProduct(s.ctx, p), domain.ErrValidation)

	p.Quantity = 8
	p.Sold = 0
	p.Price = decimal.RequireFromString("12.50")
	s.Require().NoError(s.store.UpdateProduct(s.ctx, p))
	s.EqualValues(3, p.Sold)

	got, err := s.store.GetProduct(s.ctx, p.ID)
	s.Require().NoError(err)
	s.EqualValues(8, got.Quantity)
	s.EqualValues(3, got.Sold)
	s.True(got.Price.Equal(decimal.RequireFromString("12.50")))
}

func (s *StoreTestSuite) TestUpdateProduct_Missing() {
	_, p := s.seedProduct(5, 0, "10.00")
	p.ID = "missing"
	s.ErrorIs(s.store.UpdateProduct(s.ctx, p), domain.ErrProductNotFound)
}

func (s *StoreTestSuite) TestDeleteCategory_Guard() {
	cat, p := s.seedProduct(5, 0, "10.00")

	err := s.store.DeleteCategory(s.ctx, cat.ID)
	var inUse *domain.CategoryInUseError
	s.Require().ErrorAs(err, &inUse)
	s.EqualValues(1, inUse.ProductCount)

	s.Require().NoError(s.store.DeleteProduct(s.ctx, p.ID))
	s.Require().NoError(s.store.DeleteCategory(s.ctx, cat.ID))
	s.ErrorIs(s.store.DeleteCategory(s.ctx, cat.ID), domain.ErrCategoryNotFound)
}

func (s *StoreTestSuite) TestListCategoriesWithCount() {
	s.seedProduct(1, 0, "1.00")
	s.seedProduct(1, 0, "1.00")
	s.Require().NoError(s.store.CreateCategory(s.ctx, &domain.Category{Name: "Audio", Slug: "audio"}))

	rows, err := s.store.ListCategoriesWithCount(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("Audio", rows[0].Name)
	s.EqualValues(0, rows[0].ProductCount)
	s.EqualValues(2, rows[1].ProductCount)
}

func (s *StoreTestSuite) TestListProducts_Filters() {
	cat, cheap := s.seedProduct(1, 0, "5.00")
	_, pricey := s.seedProduct(1, 0, "50.00")
	_, mid := s.seedProduct(1, 0, "20.00")

	lo := decimal.RequireFromString("10")
	page, err := s.store.ListProducts(s.ctx, domain.ProductFilter{PriceMin: &lo, CategoryID: cat.ID})
	s.Require().NoError(err)
	s.EqualValues(2, page.Total)

	page, err = s.store.ListProducts(s.ctx, domain.ProductFilter{CategoryID: cat.ID, ExcludeID: mid.ID, Limit: 1})
	s.Require().NoError(err)
	s.EqualValues(2, page.Total)
	s.Len(page.Products, 1)
	s.Contains([]string{cheap.ID, pricey.ID}, page.Products[0].ID)

	page, err = s.store.ListProducts(s.ctx, domain.ProductFilter{Keyword: "RUNNING"})
	s.Require().NoError(err)
	s.EqualValues(3, page.Total)
}

func (s *StoreTestSuite) TestSlugTaken() {
	cat, p := s.seedProduct(1, 0, "1.00")

	taken, err := s.store.SlugTaken(s.ctx, domain.KindCategory, "shoes", "")
	s.Require().NoError(err)
	s.True(taken)

	taken, err = s.store.SlugTaken(s.ctx, domain.KindCategory, "shoes", cat.ID)
	s.Require().NoError(err)
	s.False(taken)

	taken, err = s.store.SlugTaken(s.ctx, domain.KindProduct, p.Slug, "")
	s.Require().NoError(err)
	s.True(taken)
}

func (s *StoreTestSuite) newOrder(buyer string, p *domain.Product, qty int64, at time.Time) *domain.Order {
	o := &domain.Order{
		BuyerID: buyer,
		Status:  domain.StatusProcessing,
		Lines: []domain.LineItem{
			{ProductID: p.ID, Name: p.Name, Slug: p.Slug, UnitPrice: p.Price, Quantity: qty},
		},
		Payment: domain.TransactionResult{
			Success:       true,
			TransactionID: "tx-" + buyer,
			Amount:        p.Price.Mul(decimal.NewFromInt(qty)),
			Raw:           json.RawMessage(`{"success":true}`),
		},
		CreatedAt: at,
	}
	s.Require().NoError(s.store.CreateOrder(s.ctx, o))
	return o
}

func (s *StoreTestSuite) TestOrder_SnapshotSurvivesPriceChange() {
	_, p := s.seedProduct(5, 0, "10.00")
	o := s.newOrder("u1", p, 1, time.Now())

	p.Price = decimal.RequireFromString("20.00")
	p.Name = "Renamed"
	s.Require().NoError(s.store.UpdateProduct(s.ctx, p))

	got, err := s.store.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Lines, 1)
	s.Equal("Runner", got.Lines[0].Name)
	s.Equal("10.00", got.Lines[0].UnitPrice.StringFixed(2))
	s.Equal("10.00", got.Total().StringFixed(2))
	s.Equal("10.00", got.Payment.Amount.StringFixed(2))
	s.JSONEq(`{"success":true}`, string(got.Payment.Raw))
}

func (s *StoreTestSuite) TestOrders_ListingAndFlags() {
	_, p := s.seedProduct(5, 0, "10.00")
	base := time.Now().Add(-time.Hour)
	first := s.newOrder("u1", p, 1, base)
	s.newOrder("u2", p, 1, base.Add(time.Minute))
	third := s.newOrder("u1", p, 1, base.Add(2*time.Minute))

	mine, err := s.store.ListOrdersByBuyer(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(third.ID, mine[0].ID)
	s.Equal(first.ID, mine[1].ID)

	all, err := s.store.ListOrders(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)

	s.Require().NoError(s.store.FlagOrder(s.ctx, first.ID, "commit failed"))
	flagged, err := s.store.ListOrdersNeedingAttention(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(flagged, 1)
	s.Equal("commit failed", flagged[0].AttentionReason)

	s.Require().NoError(s.store.UpdateOrderStatus(s.ctx, first.ID, domain.StatusDelivered))
	s.Require().NoError(s.store.UpdateOrderStatus(s.ctx, third.ID, domain.StatusCancelled))
	n, err := s.store.CountOpenOrdersWithProduct(s.ctx, p.ID)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	s.ErrorIs(s.store.UpdateOrderStatus(s.ctx, "missing", domain.StatusShipped), domain.ErrOrderNotFound)
	_, err = s.store.GetOrder(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *StoreTestSuite) TestUsers() {
	s.Require().NoError(s.store.CreateUser(s.ctx, domain.User{ID: "admin", Name: "Ada", Role: domain.RoleAdmin}))

	u, err := s.store.FindUserByID(s.ctx, "admin")
	s.Require().NoError(err)
	s.True(u.IsAdmin())

	_, err = s.store.FindUserByID(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func TestTranslate_PassesThroughNil(t *testing.T) {
	require.NoError(t, translate(nil, "x", "y"))
}

func (s *StoreTestSuite) TestDeleteProduct_GuardedByOpenOrders() {
	_, p := s.seedProduct(5, 0, "10.00")
	o := s.newOrder("u1", p, 1, time.Now())

	err := s.store.DeleteProduct(s.ctx, p.ID)
	s.ErrorIs(err, domain.ErrProductInUse)
	_, err = s.store.GetProduct(s.ctx, p.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.store.UpdateOrderStatus(s.ctx, o.ID, domain.StatusDelivered))
	s.Require().NoError(s.store.DeleteProduct(s.ctx, p.ID))
	s.ErrorIs(s.store.DeleteProduct(s.ctx, p.ID), domain.ErrProductNotFound)
}
