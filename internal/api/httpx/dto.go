package httpx

import (
	"time"

	"github.com/jcmexdev/storefront/internal/checkout"
	"github.com/jcmexdev/storefront/internal/checkout/journal"
	"github.com/jcmexdev/storefront/internal/core/domain"
)

type CheckoutRequest struct {
	Nonce string            `json:"nonce"`
	Cart  []CartLineRequest `json:"cart"`
}

// CartLineRequest deliberately has no price: totals come from the catalog.
type CartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CheckoutResponse struct {
	CheckoutID    string `json:"checkout_id"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
}

type TokenResponse struct {
	ClientToken string `json:"client_token"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type CategoryResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ProductCount *int64 `json:"product_count,omitempty"`
}

type ProductResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Quantity    int64             `json:"quantity"`
	Sold        int64             `json:"sold"`
	Available   int64             `json:"available"`
	CategoryID  string            `json:"category_id"`
	Category    *CategoryResponse `json:"category,omitempty"`
	Shipping    bool              `json:"shipping"`
	HasPhoto    bool              `json:"has_photo"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

type ProductPageResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	BuyerID         string              `json:"buyer_id"`
	Status          string              `json:"status"`
	Total           string              `json:"total"`
	TransactionID   string              `json:"transaction_id"`
	NeedsAttention  bool                `json:"needs_attention"`
	AttentionReason string              `json:"attention_reason,omitempty"`
	Lines           []OrderLineResponse `json:"lines"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

type OrderLineResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	UnitPrice string `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type JournalEntryResponse struct {
	CheckoutID    string   `json:"checkout_id"`
	Status        string   `json:"status"`
	Step          string   `json:"step"`
	BuyerID       string   `json:"buyer_id"`
	OrderID       string   `json:"order_id,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
	Amount        string   `json:"amount,omitempty"`
	Errors        []string `json:"errors"`
	TraceID       string   `json:"trace_id,omitempty"`
	At            string   `json:"at"`
}

type ReconciliationResponse struct {
	OrphanedPayments []JournalEntryResponse `json:"orphaned_payments"`
	UnknownPayments  []JournalEntryResponse `json:"unknown_payments"`
	NeedsAttention   []JournalEntryResponse `json:"needs_attention"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func mapCheckoutResult(res *checkout.Result) CheckoutResponse {
	return CheckoutResponse{
		CheckoutID:    res.CheckoutID,
		OrderID:       res.OrderID,
		TransactionID: res.TransactionID,
		Status:        string(res.Status),
		Amount:        res.Amount.StringFixed(2),
	}
}

func mapCategory(c domain.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

func mapCategoryWithCount(c domain.CategoryWithCount) CategoryResponse {
	out := mapCategory(c.Category)
	n := c.ProductCount
	out.ProductCount = &n
	return out
}

func mapProduct(p domain.Product) ProductResponse {
	out := ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Quantity:    p.Quantity,
		Sold:        p.Sold,
		Available:   p.Available(),
		CategoryID:  p.CategoryID,
		Shipping:    p.Shipping,
		HasPhoto:    p.PhotoPath != "",
		CreatedAt:   timestamp(p.CreatedAt),
		UpdatedAt:   timestamp(p.UpdatedAt),
	}
	if p.Category != nil {
		c := mapCategory(*p.Category)
		out.Category = &c
	}
	return out
}

func mapProducts(ps []domain.Product) []ProductResponse {
	out := make([]ProductResponse, len(ps))
	for i, p := range ps {
		out[i] = mapProduct(p)
	}
	return out
}

func mapOrder(o domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = OrderLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Slug:      l.Slug,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal().StringFixed(2),
		}
	}
	return OrderResponse{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		Status:          string(o.Status),
		Total:           o.Total().StringFixed(2),
		TransactionID:   o.Payment.TransactionID,
		NeedsAttention:  o.NeedsAttention,
		AttentionReason: o.AttentionReason,
		Lines:           lines,
		CreatedAt:       timestamp(o.CreatedAt),
		UpdatedAt:       timestamp(o.UpdatedAt),
	}
}

func mapOrders(os []domain.Order) []OrderResponse {
	out := make([]OrderResponse, len(os))
	for i, o := range os {
		out[i] = mapOrder(o)
	}
	return out
}

func mapJournalEntries(entries []journal.Entry) []JournalEntryResponse {
	out := make([]JournalEntryResponse, len(entries))
	for i, e := range entries {
		errs := e.Errors()
		if errs == nil {
			errs = []string{}
		}
		out[i] = JournalEntryResponse{
			CheckoutID:    e.CheckoutID,
			Status:        string(e.Status),
			Step:          e.Step,
			BuyerID:       e.BuyerID,
			OrderID:       e.OrderID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount,
			Errors:        errs,
			TraceID:       e.TraceID,
			At:            timestamp(e.UpdatedAt),
		}
	}
	return out
}

// ProductRequest is the JSON form of product create and update. Omitted
// fields are left unchanged on update. Price travels as a decimal string.
type ProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	Quantity    *int64  `json:"quantity"`
	CategoryID  *string `json:"category_id"`
	Shipping    *bool   `json:"shipping"`
}

type CategoryDetailResponse struct {
	Category CategoryResponse  `json:"category"`
	Products []ProductResponse `json:"products"`
}
