package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

func (s *Store) CreateCategory(_ context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCategoryUniqueLocked(c, ""); err != nil {
		return err
	}
	c.ID = newID(c.ID)
	s.categories[c.ID] = *c
	return nil
}

func (s *Store) checkCategoryUniqueLocked(c *domain.Category, selfID string) error {
	for id, existing := range s.categories {
		if id == selfID {
			continue
		}
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("category name %q: %w", c.Name, domain.ErrConflict)
		}
		if existing.Slug == c.Slug {
			return fmt.Errorf("category slug %q: %w", c.Slug, domain.ErrConflict)
		}
	}
	return nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return &c, nil
}

func (s *Store) GetCategoryBySlug(_ context.Context, slug string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, domain.ErrCategoryNotFound
}

func (s *Store) GetCategoryByName(_ context.Context, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	return nil, domain.ErrCategoryNotFound
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListCategoriesWithCount(ctx context.Context) ([]domain.CategoryWithCount, error) {
	cats, _ := s.ListCategories(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CategoryWithCount, 0, len(cats))
	for _, c := range cats {
		out = append(out, domain.CategoryWithCount{Category: c, ProductCount: s.countInCategoryLocked(c.ID)})
	}
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return domain.ErrCategoryNotFound
	}
	if err := s.checkCategoryUniqueLocked(c, c.ID); err != nil {
		return err
	}
	s.categories[c.ID] = *c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	if n := s.countInCategoryLocked(id); n > 0 {
		return &domain.CategoryInUseError{CategoryID: id, ProductCount: n}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) countInCategoryLocked(categoryID string) int64 {
	var n int64
	for _, p := range s.products {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n
}

func (s *Store) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[p.CategoryID]; !ok {
		return domain.ErrCategoryNotFound
	}
	if s.slugTakenLocked(domain.KindProduct, p.Slug, "") {
		return fmt.Errorf("product slug %q: %w", p.Slug, domain.ErrConflict)
	}
	p.ID = newID(p.ID)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	stored := *p
	stored.Category = nil
	s.products[p.ID] = stored
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string, opts ...ports.ReadOption) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return s.withRelationsLocked(p, ports.ApplyReadOptions(opts)), nil
}

func (s *Store) GetProductBySlug(_ context.Context, slug string, opts ...ports.ReadOption) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.Slug == slug {
			return s.withRelationsLocked(p, ports.ApplyReadOptions(opts)), nil
		}
	}
	return nil, domain.ErrProductNotFound
}

func (s *Store) withRelationsLocked(p domain.Product, o ports.ReadOptions) *domain.Product {
	if o.WithCategory {
		if c, ok := s.categories[p.CategoryID]; ok {
			p.Category = &c
		}
	}
	return &p
}

// ListProducts returns matches newest first.
func (s *Store) ListProducts(_ context.Context, f domain.ProductFilter, opts ...ports.ReadOption) (*domain.ProductPage, error) {
	f = f.Normalized()
	o := ports.ApplyReadOptions(opts)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Product
	for _, p := range s.products {
		if f.Matches(p) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &domain.ProductPage{Total: int64(len(matched)), Page: f.Page, Limit: f.Limit, Products: []domain.Product{}}
	start := f.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := min(start+f.Limit, len(matched))
	for _, p := range matched[start:end] {
		page.Products = append(page.Products, *s.withRelationsLocked(p, o))
	}
	return page, nil
}

func (s *Store) CountProducts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.products)), nil
}

func (s *Store) CountProductsInCategory(_ context.Context, categoryID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countInCategoryLocked(categoryID), nil
}

// UpdateProduct never touches sold; that counter belongs to CommitSale.
func (s *Store) UpdateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[p.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if _, ok := s.categories[p.CategoryID]; !ok {
		return domain.ErrCategoryNotFound
	}
	if s.slugTakenLocked(domain.KindProduct, p.Slug, p.ID) {
		return fmt.Errorf("product slug %q: %w", p.Slug, domain.ErrConflict)
	}
	if p.Quantity < current.Sold {
		return domain.NewValidationError("quantity", fmt.Sprintf("quantity cannot be lower than units already sold (%d)", current.Sold))
	}

	current.Name = p.Name
	current.Slug = p.Slug
	current.Description = p.Description
	current.Price = p.Price
	current.Quantity = p.Quantity
	current.CategoryID = p.CategoryID
	current.PhotoPath = p.PhotoPath
	current.PhotoType = p.PhotoType
	current.Shipping = p.Shipping
	current.UpdatedAt = s.now()
	s.products[p.ID] = current

	p.Sold = current.Sold
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = current.UpdatedAt
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	if n := s.countOpenOrdersLocked(id); n > 0 {
		return fmt.Errorf("%w: %d open orders", domain.ErrProductInUse, n)
	}
	delete(s.products, id)
	return nil
}
