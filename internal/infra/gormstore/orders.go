package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/core/domain"
)

// CreateOrder inserts the order and its line snapshots in one transaction.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	m, err := toOrderModel(o)
	if err != nil {
		return fmt.Errorf("gormstore: encode payment receipt: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return translate(err, "order", o.ID)
	}
	o.ID = m.ID
	o.CreatedAt = m.CreatedAt
	o.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var m orderModel
	if err := s.withLines(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("gormstore: get order %s: %w", id, err)
	}
	o, err := m.toDomain()
	if err != nil {
		return nil, fmt.Errorf("gormstore: decode order %s: %w", id, err)
	}
	return &o, nil
}

func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return s.listOrders(s.withLines(ctx).Where("buyer_id = ?", buyerID))
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.listOrders(s.withLines(ctx))
}

func (s *Store) ListOrdersNeedingAttention(ctx context.Context) ([]domain.Order, error) {
	return s.listOrders(s.withLines(ctx).Where("needs_attention = ?", true))
}

func (s *Store) withLines(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func (s *Store) listOrders(q *gorm.DB) ([]domain.Order, error) {
	var rows []orderModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: list orders: %w", err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, m := range rows {
		o, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("gormstore: decode order %s: %w", m.ID, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("gormstore: update order %s status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Store) FlagOrder(ctx context.Context, id, reason string) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).Where("id = ?", id).
		Updates(map[string]any{"needs_attention": true, "attention_reason": reason})
	if res.Error != nil {
		return fmt.Errorf("gormstore: flag order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Store) CountOpenOrdersWithProduct(ctx context.Context, productID string) (int64, error) {
	return countOpenOrders(s.db.WithContext(ctx), productID)
}

var openStatuses = []string{string(domain.StatusNotProcessed), string(domain.StatusProcessing), string(domain.StatusShipped)}

func countOpenOrders(tx *gorm.DB, productID string) (int64, error) {
	var n int64
	err := tx.Model(&orderModel{}).
		Joins("JOIN order_lines ON order_lines.order_id = orders.id").
		Where("order_lines.product_id = ? AND orders.status IN ?", productID, openStatuses).
		Distinct("orders.id").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("gormstore: count open orders for product %s: %w", productID, err)
	}
	return n, nil
}
