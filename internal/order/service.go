package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

// Service is the admin and customer read/write surface over orders.
type Service struct {
	orders ports.OrderRepository
	events ports.EventPublisher
}

// NewService accepts a nil publisher.
func NewService(orders ports.OrderRepository, events ports.EventPublisher) *Service {
	return &Service{orders: orders, events: events}
}

// UpdateStatus moves an order forward along Not processed -> Processing ->
// Shipped -> Delivered, or to Cancelled from any non-terminal state.
// Setting the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, o.Status, next)
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, next); err != nil {
		return nil, fmt.Errorf("order: update status of %s: %w", orderID, err)
	}
	slog.InfoContext(ctx, "order status updated", "order_id", orderID, "from", o.Status, "to", next)

	if s.events != nil {
		evt := ports.Event{Type: "order.status_changed", Key: orderID, Payload: map[string]string{
			"order_id": orderID, "from": string(o.Status), "to": string(next),
		}}
		if err := s.events.Publish(ctx, evt); err != nil {
			slog.WarnContext(ctx, "failed to publish status change", "order_id", orderID, "error", err)
		}
	}

	o.Status = next
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return s.orders.ListOrdersByBuyer(ctx, buyerID)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}

// ListNeedingAttention returns orders whose stock commit failed after payment.
func (s *Service) ListNeedingAttention(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrdersNeedingAttention(ctx)
}
