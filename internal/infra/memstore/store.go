// Package memstore is an in-memory implementation of the storage ports.
// It backs local development (STORE_DRIVER=memory) and service tests.
// Every read returns a copy; callers never alias stored records.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

var (
	_ ports.CategoryRepository = (*Store)(nil)
	_ ports.ProductRepository  = (*Store)(nil)
	_ ports.StockStore         = (*Store)(nil)
	_ ports.OrderRepository    = (*Store)(nil)
	_ ports.UserDirectory      = (*Store)(nil)
	_ ports.SlugLookup         = (*Store)(nil)
)

type Store struct {
	mu         sync.RWMutex
	categories map[string]domain.Category
	products   map[string]domain.Product
	orders     map[string]storedOrder
	users      map[string]domain.User
	seq        int64
	now        func() time.Time
}

type storedOrder struct {
	order domain.Order
	seq   int64
}

func New() *Store {
	return &Store{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		orders:     make(map[string]storedOrder),
		users:      make(map[string]domain.User),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PutUser registers a user in the directory.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) SlugTaken(_ context.Context, kind domain.EntityKind, slug, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slugTakenLocked(kind, slug, excludeID), nil
}

func (s *Store) slugTakenLocked(kind domain.EntityKind, slug, excludeID string) bool {
	switch kind {
	case domain.KindCategory:
		for id, c := range s.categories {
			if c.Slug == slug && id != excludeID {
				return true
			}
		}
	case domain.KindProduct:
		for id, p := range s.products {
			if p.Slug == slug && id != excludeID {
				return true
			}
		}
	}
	return false
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
