package gormstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/core/domain"
)

type categoryModel struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Name      string `gorm:"uniqueIndex;not null;size:32"`
	Slug      string `gorm:"uniqueIndex;not null;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (categoryModel) TableName() string { return "categories" }

func (m *categoryModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// productModel enforces the stock invariant in the schema: quantity - sold
// never goes negative regardless of which code path writes the row.
type productModel struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)"`
	Name        string          `gorm:"not null;size:160"`
	Slug        string          `gorm:"uniqueIndex;not null;size:200"`
	Description string          `gorm:"not null;size:2000"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null;check:chk_products_price,price > 0"`
	Quantity    int64           `gorm:"not null;default:0;check:chk_products_available,quantity - sold >= 0"`
	Sold        int64           `gorm:"not null;default:0;check:chk_products_sold,sold >= 0"`
	CategoryID  string          `gorm:"index;not null;type:varchar(36)"`
	Category    *categoryModel  `gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT"`
	PhotoPath   string          `gorm:"size:255"`
	PhotoType   string          `gorm:"size:32"`
	Shipping    bool            `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (productModel) TableName() string { return "products" }

func (m *productModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type orderModel struct {
	ID              string           `gorm:"primaryKey;type:varchar(36)"`
	BuyerID         string           `gorm:"index;not null;type:varchar(36)"`
	Status          string           `gorm:"index;not null;size:20"`
	TransactionID   string           `gorm:"index;size:64"`
	Amount          decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	Payment         datatypes.JSON   `gorm:"not null"`
	NeedsAttention  bool             `gorm:"index;not null;default:false"`
	AttentionReason string           `gorm:"size:1000"`
	Lines           []orderLineModel `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
	CreatedAt       time.Time        `gorm:"index"`
	UpdatedAt       time.Time
}

func (orderModel) TableName() string { return "orders" }

func (m *orderModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// orderLineModel is a denormalized snapshot; it deliberately has no foreign
// key to products so catalog edits and deletes never reach historical orders.
type orderLineModel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	OrderID   string          `gorm:"index;not null;type:varchar(36)"`
	Position  int             `gorm:"not null"`
	ProductID string          `gorm:"index;not null;type:varchar(36)"`
	Name      string          `gorm:"not null;size:160"`
	Slug      string          `gorm:"not null;size:200"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Quantity  int64           `gorm:"not null;check:chk_order_lines_quantity,quantity > 0"`
}

func (orderLineModel) TableName() string { return "order_lines" }

type userModel struct {
	ID   string `gorm:"primaryKey;type:varchar(36)"`
	Name string `gorm:"size:64"`
	Role int    `gorm:"not null;default:0"`
}

func (userModel) TableName() string { return "users" }

// paymentReceipt is the JSON shape of orders.payment.
type paymentReceipt struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	Amount        string          `json:"amount"`
	Message       string          `json:"message,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

func toCategoryModel(c *domain.Category) *categoryModel {
	return &categoryModel{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

func (m categoryModel) toDomain() domain.Category {
	return domain.Category{ID: m.ID, Name: m.Name, Slug: m.Slug}
}

func toProductModel(p *domain.Product) *productModel {
	return &productModel{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		Quantity:    p.Quantity,
		Sold:        p.Sold,
		CategoryID:  p.CategoryID,
		PhotoPath:   p.PhotoPath,
		PhotoType:   p.PhotoType,
		Shipping:    p.Shipping,
	}
}

func (m productModel) toDomain() domain.Product {
	p := domain.Product{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Price:       m.Price,
		Quantity:    m.Quantity,
		Sold:        m.Sold,
		CategoryID:  m.CategoryID,
		PhotoPath:   m.PhotoPath,
		PhotoType:   m.PhotoType,
		Shipping:    m.Shipping,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Category != nil {
		c := m.Category.toDomain()
		p.Category = &c
	}
	return p
}

func toOrderModel(o *domain.Order) (*orderModel, error) {
	receipt, err := json.Marshal(paymentReceipt{
		Success:       o.Payment.Success,
		TransactionID: o.Payment.TransactionID,
		Amount:        o.Payment.Amount.StringFixed(2),
		Message:       o.Payment.Message,
		Raw:           o.Payment.Raw,
	})
	if err != nil {
		return nil, err
	}

	m := &orderModel{
		ID:              o.ID,
		BuyerID:         o.BuyerID,
		Status:          string(o.Status),
		TransactionID:   o.Payment.TransactionID,
		Amount:          o.Payment.Amount,
		Payment:         datatypes.JSON(receipt),
		NeedsAttention:  o.NeedsAttention,
		AttentionReason: o.AttentionReason,
		CreatedAt:       o.CreatedAt,
		Lines:           make([]orderLineModel, len(o.Lines)),
	}
	for i, l := range o.Lines {
		m.Lines[i] = orderLineModel{
			Position:  i,
			ProductID: l.ProductID,
			Name:      l.Name,
			Slug:      l.Slug,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return m, nil
}

func (m orderModel) toDomain() (domain.Order, error) {
	var receipt paymentReceipt
	if len(m.Payment) > 0 {
		if err := json.Unmarshal(m.Payment, &receipt); err != nil {
			return domain.Order{}, err
		}
	}
	amount, err := decimal.NewFromString(receipt.Amount)
	if err != nil {
		amount = m.Amount
	}

	o := domain.Order{
		ID:      m.ID,
		BuyerID: m.BuyerID,
		Payment: domain.TransactionResult{
			Success:       receipt.Success,
			TransactionID: receipt.TransactionID,
			Amount:        amount,
			Message:       receipt.Message,
			Raw:           receipt.Raw,
		},
		Status:          domain.OrderStatus(m.Status),
		NeedsAttention:  m.NeedsAttention,
		AttentionReason: m.AttentionReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Lines:           make([]domain.LineItem, len(m.Lines)),
	}
	for i, l := range m.Lines {
		o.Lines[i] = domain.LineItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Slug:      l.Slug,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return o, nil
}
