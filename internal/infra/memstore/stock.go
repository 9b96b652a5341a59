package memstore

import (
	"context"

	"github.com/jcmexdev/storefront/internal/core/domain"
)

func (s *Store) Available(_ context.Context, productID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return p.Available(), nil
}

// CommitSale checks and increments under the write lock, so concurrent
// commits on the same product are serialized.
func (s *Store) CommitSale(_ context.Context, productID string, qty int64) (*domain.Product, error) {
	if qty <= 0 {
		return nil, domain.NewValidationError("quantity", "quantity must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if p.Available() < qty {
		return nil, &domain.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Available()}
	}
	p.Sold += qty
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return &p, nil
}
