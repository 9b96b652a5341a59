package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNotProcessed OrderStatus = "Not processed"
	StatusProcessing   OrderStatus = "Processing"
	StatusShipped      OrderStatus = "Shipped"
	StatusDelivered    OrderStatus = "Delivered"
	StatusCancelled    OrderStatus = "Cancelled"
)

var statusRank = map[OrderStatus]int{
	StatusNotProcessed: 0,
	StatusProcessing:   1,
	StatusShipped:      2,
	StatusDelivered:    3,
}

// ParseOrderStatus accepts exactly one of the five status values.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if st.Valid() {
		return st, nil
	}
	return "", NewValidationError("status", "status must be one of: Not processed, Processing, Shipped, Delivered, Cancelled")
}

func (s OrderStatus) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Open reports whether the order still expects fulfillment work.
func (s OrderStatus) Open() bool {
	return s.Valid() && !s.Terminal()
}

// CanTransitionTo allows forward moves along the fulfillment chain and a
// cancellation from any non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// CartLine is one requested (product, quantity) pair.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// LineItem is the frozen copy of a product at purchase time.
type LineItem struct {
	ProductID string
	Name      string
	Slug      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// TransactionResult is the gateway's answer to an authorization.
type TransactionResult struct {
	Success       bool
	TransactionID string
	Amount        decimal.Decimal
	Message       string
	Raw           json.RawMessage
}

type Order struct {
	ID              string
	BuyerID         string
	Lines           []LineItem
	Payment         TransactionResult
	Status          OrderStatus
	NeedsAttention  bool
	AttentionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
