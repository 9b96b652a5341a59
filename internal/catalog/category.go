package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/slug"
)

type CategoryService struct {
	repo  ports.CategoryRepository
	slugs *slug.Allocator
}

func NewCategoryService(repo ports.CategoryRepository, slugs *slug.Allocator) *CategoryService {
	return &CategoryService{repo: repo, slugs: slugs}
}

func (s *CategoryService) Create(ctx context.Context, name string) (*domain.Category, error) {
	name, err := validateCategoryName(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, name, ""); err != nil {
		return nil, err
	}
	sl, err := s.slugs.Allocate(ctx, name, domain.KindCategory, "")
	if err != nil {
		return nil, err
	}

	c := &domain.Category{Name: name, Slug: sl}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("catalog: create category %q: %w", name, err)
	}
	slog.InfoContext(ctx, "category created", "category_id", c.ID, "slug", c.Slug)
	return c, nil
}

// Update renames the category. The slug is always re-derived from the new
// name.
func (s *CategoryService) Update(ctx context.Context, id, name string) (*domain.Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err = validateCategoryName(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, name, id); err != nil {
		return nil, err
	}
	sl, err := s.slugs.Allocate(ctx, name, domain.KindCategory, id)
	if err != nil {
		return nil, err
	}

	c.Name, c.Slug = name, sl
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("catalog: update category %s: %w", id, err)
	}
	slog.InfoContext(ctx, "category updated", "category_id", c.ID, "slug", c.Slug)
	return c, nil
}

// Delete refuses with *domain.CategoryInUseError while products reference
// the category.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		var inUse *domain.CategoryInUseError
		if errors.As(err, &inUse) {
			slog.WarnContext(ctx, "category delete blocked", "category_id", id, "products", inUse.ProductCount)
		}
		return err
	}
	slog.InfoContext(ctx, "category deleted", "category_id", id)
	return nil
}

func (s *CategoryService) Get(ctx context.Context, slug string) (*domain.Category, error) {
	return s.repo.GetCategoryBySlug(ctx, slug)
}

func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *CategoryService) ListWithCounts(ctx context.Context) ([]domain.CategoryWithCount, error) {
	return s.repo.ListCategoriesWithCount(ctx)
}

func (s *CategoryService) ensureNameFree(ctx context.Context, name, selfID string) error {
	existing, err := s.repo.GetCategoryByName(ctx, name)
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == selfID:
		return nil
	}
	return fmt.Errorf("category %q: %w", name, domain.ErrConflict)
}
