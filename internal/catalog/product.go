package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/slug"
)

var ErrNoPhoto = errors.New("catalog: product has no photo")

// OpenOrderCounter reports how many non-terminal orders reference a product.
type OpenOrderCounter interface {
	CountOpenOrdersWithProduct(ctx context.Context, productID string) (int64, error)
}

type ProductService struct {
	products   ports.ProductRepository
	categories ports.CategoryRepository
	orders     OpenOrderCounter
	photos     ports.PhotoStore
	slugs      *slug.Allocator
}

func NewProductService(
	products ports.ProductRepository,
	categories ports.CategoryRepository,
	orders OpenOrderCounter,
	photos ports.PhotoStore,
	slugs *slug.Allocator,
) *ProductService {
	return &ProductService{
		products:   products,
		categories: categories,
		orders:     orders,
		photos:     photos,
		slugs:      slugs,
	}
}

// Create validates f, allocates a slug and stores the optional photo before
// inserting the product. sold always starts at zero.
func (s *ProductService) Create(ctx context.Context, f domain.ProductFields, photo *ports.Photo) (*domain.Product, error) {
	in, err := mergeProductFields(productInput{}, f, true)
	if err != nil {
		return nil, err
	}
	if err := validatePhoto(photo); err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, in.categoryID); err != nil {
		return nil, err
	}
	sl, err := s.slugs.Allocate(ctx, in.name, domain.KindProduct, "")
	if err != nil {
		return nil, err
	}

	p := &domain.Product{Slug: sl}
	in.applyTo(p)

	if photo != nil {
		if err := s.attachPhoto(ctx, p, *photo); err != nil {
			return nil, err
		}
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		s.discardPhoto(ctx, p.PhotoPath)
		return nil, fmt.Errorf("catalog: create product %q: %w", p.Name, err)
	}
	slog.InfoContext(ctx, "product created", "product_id", p.ID, "slug", p.Slug, "quantity", p.Quantity)
	return p, nil
}

// Update applies the supplied fields. The slug changes only with the name;
// a new photo replaces the old one, which is removed afterwards.
func (s *ProductService) Update(ctx context.Context, id string, f domain.ProductFields, photo *ports.Photo) (*domain.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := mergeProductFields(inputOf(p), f, false)
	if err != nil {
		return nil, err
	}
	if err := validatePhoto(photo); err != nil {
		return nil, err
	}
	if in.quantity < p.Sold {
		return nil, domain.NewValidationError("quantity", fmt.Sprintf("quantity cannot be lower than units already sold (%d)", p.Sold))
	}
	if in.categoryID != p.CategoryID {
		if err := s.ensureCategory(ctx, in.categoryID); err != nil {
			return nil, err
		}
	}
	if in.name != p.Name {
		sl, err := s.slugs.Allocate(ctx, in.name, domain.KindProduct, p.ID)
		if err != nil {
			return nil, err
		}
		p.Slug = sl
	}
	in.applyTo(p)

	oldPhoto := p.PhotoPath
	if photo != nil {
		if err := s.attachPhoto(ctx, p, *photo); err != nil {
			return nil, err
		}
	}
	if err := s.products.UpdateProduct(ctx, p); err != nil {
		if photo != nil {
			s.discardPhoto(ctx, p.PhotoPath)
		}
		return nil, fmt.Errorf("catalog: update product %s: %w", id, err)
	}
	if photo != nil {
		s.discardPhoto(ctx, oldPhoto)
	}
	slog.InfoContext(ctx, "product updated", "product_id", p.ID, "slug", p.Slug)
	return p, nil
}

// Delete refuses with domain.ErrProductInUse while an open order still
// references the product.
func (s *ProductService) Delete(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	open, err := s.orders.CountOpenOrdersWithProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: count open orders for %s: %w", id, err)
	}
	if open > 0 {
		slog.WarnContext(ctx, "product delete blocked", "product_id", id, "open_orders", open)
		return nil, fmt.Errorf("%w: %d open orders", domain.ErrProductInUse, open)
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, domain.ErrProductInUse) {
			slog.WarnContext(ctx, "product delete blocked", "product_id", id, "error", err)
		}
		return nil, err
	}
	s.discardPhoto(ctx, p.PhotoPath)
	slog.InfoContext(ctx, "product deleted", "product_id", id)
	return p, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.GetProduct(ctx, id, ports.WithCategory())
}

func (s *ProductService) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	return s.products.GetProductBySlug(ctx, slug, ports.WithCategory())
}

func (s *ProductService) List(ctx context.Context, f domain.ProductFilter) (*domain.ProductPage, error) {
	if f.PriceMin != nil && f.PriceMax != nil && f.PriceMin.GreaterThan(*f.PriceMax) {
		return nil, domain.NewValidationError("price", "minimum price is greater than maximum price")
	}
	return s.products.ListProducts(ctx, f.Normalized(), ports.WithCategory())
}

// Related lists other products from the same category.
func (s *ProductService) Related(ctx context.Context, productID string) ([]domain.Product, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	page, err := s.products.ListProducts(ctx, domain.ProductFilter{
		CategoryID: p.CategoryID,
		ExcludeID:  p.ID,
		Page:       1,
		Limit:      domain.RelatedLimit,
	}, ports.WithCategory())
	if err != nil {
		return nil, err
	}
	return page.Products, nil
}

func (s *ProductService) Count(ctx context.Context) (int64, error) {
	return s.products.CountProducts(ctx)
}

// Photo opens the stored photo of the product with the given slug.
func (s *ProductService) Photo(ctx context.Context, slug string) (io.ReadCloser, string, error) {
	p, err := s.products.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, "", err
	}
	if p.PhotoPath == "" {
		return nil, "", ErrNoPhoto
	}
	rc, err := s.photos.Open(ctx, p.PhotoPath)
	if err != nil {
		return nil, "", err
	}
	return rc, p.PhotoType, nil
}

func (s *ProductService) ensureCategory(ctx context.Context, id string) error {
	_, err := s.categories.GetCategory(ctx, id)
	if errors.Is(err, domain.ErrCategoryNotFound) {
		return domain.NewValidationError("category", "category does not exist")
	}
	return err
}

func (s *ProductService) attachPhoto(ctx context.Context, p *domain.Product, photo ports.Photo) error {
	path, err := s.photos.Save(ctx, p.Slug, photo)
	if err != nil {
		return fmt.Errorf("catalog: store photo for %s: %w", p.Slug, err)
	}
	p.PhotoPath = path
	p.PhotoType = photo.ContentType
	return nil
}

// discardPhoto removes a stored photo. Failure leaves an orphaned file,
// which is only worth a warning.
func (s *ProductService) discardPhoto(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.photos.Remove(ctx, path); err != nil {
		slog.WarnContext(ctx, "failed to remove product photo", "path", path, "error", err)
	}
}

func inputOf(p *domain.Product) productInput {
	return productInput{
		name:        p.Name,
		description: p.Description,
		price:       p.Price,
		quantity:    p.Quantity,
		categoryID:  p.CategoryID,
		shipping:    p.Shipping,
	}
}

func (in productInput) applyTo(p *domain.Product) {
	p.Name = in.name
	p.Description = in.description
	p.Price = in.price
	p.Quantity = in.quantity
	p.CategoryID = in.categoryID
	p.Shipping = in.shipping
}
