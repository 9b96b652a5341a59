package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/core/domain"
)

func (s *Store) Available(ctx context.Context, productID string) (int64, error) {
	var m productModel
	err := s.db.WithContext(ctx).Select("id", "quantity", "sold").First(&m, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("gormstore: read stock for %s: %w", productID, err)
	}
	return m.Quantity - m.Sold, nil
}

// CommitSale is a single guarded UPDATE:
//
//	UPDATE products SET sold = sold + ? WHERE id = ? AND quantity - sold >= ?
//
// The database evaluates the guard under the row lock, so two commits racing
// for the last unit cannot both match. The CHECK constraint on products is a
// second line of defense. When no row matches, a follow-up read tells a
// missing product apart from a stock shortfall.
func (s *Store) CommitSale(ctx context.Context, productID string, qty int64) (*domain.Product, error) {
	if qty <= 0 {
		return nil, domain.NewValidationError("quantity", "quantity must be positive")
	}

	var updated productModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&productModel{}).
			Where("id = ? AND quantity - sold >= ?", productID, qty).
			Update("sold", gorm.Expr("sold + ?", qty))
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrCheckConstraintViolated) {
				return &domain.InsufficientStockError{ProductID: productID, Requested: qty}
			}
			return fmt.Errorf("gormstore: commit sale for %s: %w", productID, res.Error)
		}

		if err := tx.First(&updated, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("gormstore: reload product %s: %w", productID, err)
		}
		if res.RowsAffected == 0 {
			return &domain.InsufficientStockError{
				ProductID: productID,
				Requested: qty,
				Available: updated.Quantity - updated.Sold,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := updated.toDomain()
	return &p, nil
}
