package ports

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront/internal/core/domain"
)

// ReadOptions controls which relations are loaded with a read.
type ReadOptions struct {
	WithCategory bool
}

type ReadOption func(*ReadOptions)

// WithCategory loads the owning category together with a product.
func WithCategory() ReadOption {
	return func(o *ReadOptions) { o.WithCategory = true }
}

func ApplyReadOptions(opts []ReadOption) ReadOptions {
	var o ReadOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// SlugLookup answers whether a slug is taken by an entity of the same kind
// other than excludeID.
type SlugLookup interface {
	SlugTaken(ctx context.Context, kind domain.EntityKind, slug, excludeID string) (bool, error)
}

type CategoryRepository interface {
	CreateCategory(ctx context.Context, c *domain.Category) error
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListCategoriesWithCount(ctx context.Context) ([]domain.CategoryWithCount, error)
	UpdateCategory(ctx context.Context, c *domain.Category) error
	// DeleteCategory removes the category only when no product references it.
	// It returns *domain.CategoryInUseError otherwise.
	DeleteCategory(ctx context.Context, id string) error
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string, opts ...ReadOption) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string, opts ...ReadOption) (*domain.Product, error)
	ListProducts(ctx context.Context, f domain.ProductFilter, opts ...ReadOption) (*domain.ProductPage, error)
	CountProducts(ctx context.Context) (int64, error)
	CountProductsInCategory(ctx context.Context, categoryID string) (int64, error)
	// UpdateProduct persists admin-editable fields. Stock counters are only
	// touched through StockStore.
	UpdateProduct(ctx context.Context, p *domain.Product) error
	// DeleteProduct removes the product only when no open order references
	// it, checked atomically with the delete. It wraps domain.ErrProductInUse
	// otherwise.
	DeleteProduct(ctx context.Context, id string) error
}

// StockStore is the only mutation path for the sold counter.
type StockStore interface {
	Available(ctx context.Context, productID string) (int64, error)
	// CommitSale atomically adds qty to sold when quantity-sold >= qty.
	// It returns *domain.InsufficientStockError when the guard rejects it.
	CommitSale(ctx context.Context, productID string, qty int64) (*domain.Product, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersNeedingAttention(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
	FlagOrder(ctx context.Context, id, reason string) error
	CountOpenOrdersWithProduct(ctx context.Context, productID string) (int64, error)
}

type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
}

// PaymentGateway is the hosted tokenized-payment provider.
type PaymentGateway interface {
	RequestClientToken(ctx context.Context) (string, error)
	Authorize(ctx context.Context, nonce string, amount decimal.Decimal) (*domain.TransactionResult, error)
}

type Photo struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type PhotoStore interface {
	Save(ctx context.Context, slug string, photo Photo) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}

type Event struct {
	Type    string
	Key     string
	Payload any
}

type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
