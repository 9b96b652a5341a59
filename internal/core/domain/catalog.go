package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   string
	Name string
	Slug string
}

// CategoryWithCount is a category together with the number of products filed under it.
type CategoryWithCount struct {
	Category
	ProductCount int64
}

type Product struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Quantity    int64
	Sold        int64
	CategoryID  string
	Category    *Category
	PhotoPath   string
	PhotoType   string
	Shipping    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available is the sellable remainder: quantity minus sold.
func (p Product) Available() int64 {
	return p.Quantity - p.Sold
}

// ProductFields carries admin input for create and update. Nil pointers mean
// "not supplied", which only matters on update.
type ProductFields struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int64
	CategoryID  *string
	Shipping    *bool
}

const (
	DefaultPageLimit = 12
	MaxPageLimit     = 100
	RelatedLimit     = 4
)

// ProductFilter narrows catalog listing. Zero values disable a filter.
type ProductFilter struct {
	CategoryID string
	ExcludeID  string
	Keyword    string
	PriceMin   *decimal.Decimal
	PriceMax   *decimal.Decimal
	Page       int
	Limit      int
}

// Normalized clamps paging to sane bounds: page >= 1, 1 <= limit <= MaxPageLimit.
func (f ProductFilter) Normalized() ProductFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

func (f ProductFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches applies the non-paging criteria to p. Stores that cannot push the
// filter down to a query use it directly.
func (f ProductFilter) Matches(p Product) bool {
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	if f.ExcludeID != "" && p.ID == f.ExcludeID {
		return false
	}
	if f.PriceMin != nil && p.Price.LessThan(*f.PriceMin) {
		return false
	}
	if f.PriceMax != nil && p.Price.GreaterThan(*f.PriceMax) {
		return false
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
		return strings.Contains(strings.ToLower(p.Name), kw) || strings.Contains(strings.ToLower(p.Description), kw)
	}
	return true
}

type ProductPage struct {
	Products []Product
	Total    int64
	Page     int
	Limit    int
}

// EntityKind scopes slug uniqueness.
type EntityKind string

const (
	KindProduct  EntityKind = "product"
	KindCategory EntityKind = "category"
)
