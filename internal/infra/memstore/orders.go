package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/jcmexdev/storefront/internal/core/domain"
)

func (s *Store) CreateOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = newID(o.ID)
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	s.seq++
	s.orders[o.ID] = storedOrder{order: cloneOrder(*o), seq: s.seq}
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	so, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o := cloneOrder(so.order)
	return &o, nil
}

func (s *Store) ListOrdersByBuyer(_ context.Context, buyerID string) ([]domain.Order, error) {
	return s.listOrders(func(o domain.Order) bool { return o.BuyerID == buyerID }), nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	return s.listOrders(func(domain.Order) bool { return true }), nil
}

func (s *Store) ListOrdersNeedingAttention(_ context.Context) ([]domain.Order, error) {
	return s.listOrders(func(o domain.Order) bool { return o.NeedsAttention }), nil
}

// listOrders returns matches newest first.
func (s *Store) listOrders(keep func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]storedOrder, 0)
	for _, so := range s.orders {
		if keep(so.order) {
			matched = append(matched, so)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	out := make([]domain.Order, 0, len(matched))
	for _, so := range matched {
		out = append(out, cloneOrder(so.order))
	}
	return out
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	so, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	so.order.Status = status
	so.order.UpdatedAt = s.now()
	s.orders[id] = so
	return nil
}

func (s *Store) FlagOrder(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	so, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	so.order.NeedsAttention = true
	so.order.AttentionReason = reason
	so.order.UpdatedAt = s.now()
	s.orders[id] = so
	return nil
}

func (s *Store) CountOpenOrdersWithProduct(_ context.Context, productID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countOpenOrdersLocked(productID), nil
}

func (s *Store) countOpenOrdersLocked(productID string) int64 {
	var n int64
	for _, so := range s.orders {
		if !so.order.Status.Open() {
			continue
		}
		if slices.ContainsFunc(so.order.Lines, func(l domain.LineItem) bool { return l.ProductID == productID }) {
			n++
		}
	}
	return n
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	o.Payment.Raw = slices.Clone(o.Payment.Raw)
	return o
}
