package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	m := toCategoryModel(c)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkCategoryUnique(tx, c, ""); err != nil {
			return err
		}
		return translate(tx.Create(m).Error, "category", c.Name)
	})
	if err != nil {
		return err
	}
	c.ID = m.ID
	return nil
}

// checkCategoryUnique runs ahead of the unique indexes so the caller gets a
// domain error whatever the driver reports.
func checkCategoryUnique(tx *gorm.DB, c *domain.Category, selfID string) error {
	q := tx.Model(&categoryModel{}).Where("LOWER(name) = ? OR slug = ?", strings.ToLower(c.Name), c.Slug)
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("gormstore: check category uniqueness: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("category %q: %w", c.Name, domain.ErrConflict)
	}
	return nil
}

func categoryExists(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&categoryModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("gormstore: check category: %w", err)
	}
	if n == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	return s.findCategory(ctx, "id = ?", id)
}

func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	return s.findCategory(ctx, "slug = ?", slug)
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return s.findCategory(ctx, "LOWER(name) = ?", strings.ToLower(name))
}

func (s *Store) findCategory(ctx context.Context, query string, arg any) (*domain.Category, error) {
	var m categoryModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("gormstore: get category: %w", err)
	}
	c := m.toDomain()
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryModel
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: list categories: %w", err)
	}
	out := make([]domain.Category, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (s *Store) ListCategoriesWithCount(ctx context.Context) ([]domain.CategoryWithCount, error) {
	type row struct {
		ID           string
		Name         string
		Slug         string
		ProductCount int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("categories").
		Select("categories.id, categories.name, categories.slug, COUNT(products.id) AS product_count").
		Joins("LEFT JOIN products ON products.category_id = categories.id").
		Group("categories.id, categories.name, categories.slug").
		Order("categories.name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: list categories with count: %w", err)
	}
	out := make([]domain.CategoryWithCount, len(rows))
	for i, r := range rows {
		out[i] = domain.CategoryWithCount{
			Category:     domain.Category{ID: r.ID, Name: r.Name, Slug: r.Slug},
			ProductCount: r.ProductCount,
		}
	}
	return out, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *domain.Category) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkCategoryUnique(tx, c, c.ID); err != nil {
			return err
		}
		res := tx.Model(&categoryModel{ID: c.ID}).
			Select("name", "slug", "updated_at").
			Updates(toCategoryModel(c))
		if res.Error != nil {
			return translate(res.Error, "category", c.Name)
		}
		if res.RowsAffected == 0 {
			return domain.ErrCategoryNotFound
		}
		return nil
	})
}

// DeleteCategory counts dependents and deletes inside one transaction; the
// RESTRICT foreign key backs it up if a product slips in concurrently.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&productModel{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("gormstore: count products in category: %w", err)
		}
		if n > 0 {
			return &domain.CategoryInUseError{CategoryID: id, ProductCount: n}
		}
		res := tx.Delete(&categoryModel{}, "id = ?", id)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
				return &domain.CategoryInUseError{CategoryID: id, ProductCount: 1}
			}
			return fmt.Errorf("gormstore: delete category: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrCategoryNotFound
		}
		return nil
	})
}

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	m := toProductModel(p)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := categoryExists(tx, p.CategoryID); err != nil {
			return err
		}
		return translate(tx.Omit(clause.Associations).Create(m).Error, "product", p.Slug)
	})
	if err != nil {
		return err
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string, opts ...ports.ReadOption) (*domain.Product, error) {
	return s.findProduct(ctx, ports.ApplyReadOptions(opts), "id = ?", id)
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string, opts ...ports.ReadOption) (*domain.Product, error) {
	return s.findProduct(ctx, ports.ApplyReadOptions(opts), "slug = ?", slug)
}

func (s *Store) findProduct(ctx context.Context, o ports.ReadOptions, query string, arg any) (*domain.Product, error) {
	var m productModel
	if err := withRelations(s.db.WithContext(ctx), o).Where(query, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("gormstore: get product: %w", err)
	}
	p := m.toDomain()
	return &p, nil
}

func withRelations(q *gorm.DB, o ports.ReadOptions) *gorm.DB {
	if o.WithCategory {
		q = q.Preload("Category")
	}
	return q
}

// ListProducts returns matches newest first.
func (s *Store) ListProducts(ctx context.Context, f domain.ProductFilter, opts ...ports.ReadOption) (*domain.ProductPage, error) {
	f = f.Normalized()

	q := s.db.WithContext(ctx).Model(&productModel{})
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.ExcludeID != "" {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	if f.PriceMin != nil {
		q = q.Where("price >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		q = q.Where("price <= ?", *f.PriceMax)
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
		like := "%" + kw + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("gormstore: count products: %w", err)
	}

	var rows []productModel
	err := withRelations(q, ports.ApplyReadOptions(opts)).
		Order("created_at DESC").Order("id").
		Offset(f.Offset()).Limit(f.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: list products: %w", err)
	}

	page := &domain.ProductPage{Total: total, Page: f.Page, Limit: f.Limit, Products: make([]domain.Product, len(rows))}
	for i, m := range rows {
		page.Products[i] = m.toDomain()
	}
	return page, nil
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&productModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("gormstore: count products: %w", err)
	}
	return n, nil
}

func (s *Store) CountProductsInCategory(ctx context.Context, categoryID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&productModel{}).Where("category_id = ?", categoryID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("gormstore: count products in category: %w", err)
	}
	return n, nil
}

// UpdateProduct writes the admin-editable columns. The sold <= quantity guard
// sits in the WHERE clause so a concurrent CommitSale cannot slip between a
// read and this write.
func (s *Store) UpdateProduct(ctx context.Context, p *domain.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := categoryExists(tx, p.CategoryID); err != nil {
			return err
		}
		res := tx.Model(&productModel{}).
			Where("id = ? AND sold <= ?", p.ID, p.Quantity).
			Select("name", "slug", "description", "price", "quantity", "category_id", "photo_path", "photo_type", "shipping", "updated_at").
			Updates(toProductModel(p))
		if res.Error != nil {
			return translate(res.Error, "product", p.Slug)
		}

		var m productModel
		if err := tx.First(&m, "id = ?", p.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("gormstore: reload product: %w", err)
		}
		if res.RowsAffected == 0 {
			return domain.NewValidationError("quantity", fmt.Sprintf("quantity cannot be lower than units already sold (%d)", m.Sold))
		}
		p.Sold = m.Sold
		p.CreatedAt = m.CreatedAt
		p.UpdatedAt = m.UpdatedAt
		return nil
	})
}

// DeleteProduct removes the row in one statement guarded by NOT EXISTS, so
// an order recorded concurrently either blocks the delete or sees no product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referenced := tx.Session(&gorm.Session{NewDB: true}).
			Model(&orderLineModel{}).
			Select("1").
			Joins("JOIN orders ON orders.id = order_lines.order_id").
			Where("order_lines.product_id = products.id AND orders.status IN ?", openStatuses)
		res := tx.Where("id = ?", id).Where("NOT EXISTS (?)", referenced).Delete(&productModel{})
		if res.Error != nil {
			return fmt.Errorf("gormstore: delete product: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		var exists int64
		if err := tx.Model(&productModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return fmt.Errorf("gormstore: delete product: %w", err)
		}
		if exists == 0 {
			return domain.ErrProductNotFound
		}
		n, err := countOpenOrders(tx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %d open orders", domain.ErrProductInUse, n)
	})
}
