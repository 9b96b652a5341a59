// Package catalog administers categories and products: input validation,
// slug allocation, photo handling and referential guards.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

const (
	MinCategoryName  = 2
	MaxCategoryName  = 32
	MaxProductName   = 160
	MaxDescription   = 2000
	MaxPhotoSize     = 1 << 20
	maxPriceDecimals = 2
)

var (
	MaxPrice = decimal.RequireFromString("999999.99")

	categoryNamePattern = regexp.MustCompile(`^[\p{L}\p{N} &'.()-]+$`)

	photoTypes = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/gif":  true,
	}
)

func validateCategoryName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", domain.NewValidationError("name", "name is required")
	}
	if n := utf8.RuneCountInString(name); n < MinCategoryName || n > MaxCategoryName {
		return "", domain.NewValidationError("name", fmt.Sprintf("name must be between %d and %d characters", MinCategoryName, MaxCategoryName))
	}
	if !categoryNamePattern.MatchString(name) {
		return "", domain.NewValidationError("name", "name may only contain letters, digits, spaces and & - ' . ( )")
	}
	return name, nil
}

// productInput is ProductFields after trimming, with every field known.
type productInput struct {
	name        string
	description string
	price       decimal.Decimal
	quantity    int64
	categoryID  string
	shipping    bool
}

// mergeProductFields overlays f on base and validates every supplied field.
// On create base is the zero value and all required fields must be present.
func mergeProductFields(base productInput, f domain.ProductFields, create bool) (productInput, error) {
	out := base

	if f.Name != nil {
		out.name = strings.TrimSpace(*f.Name)
		if out.name == "" {
			return out, domain.NewValidationError("name", "name is required")
		}
		if utf8.RuneCountInString(out.name) > MaxProductName {
			return out, domain.NewValidationError("name", fmt.Sprintf("name must be at most %d characters", MaxProductName))
		}
	} else if create {
		return out, domain.NewValidationError("name", "name is required")
	}

	if f.Description != nil {
		out.description = strings.TrimSpace(*f.Description)
		if out.description == "" {
			return out, domain.NewValidationError("description", "description is required")
		}
		if utf8.RuneCountInString(out.description) > MaxDescription {
			return out, domain.NewValidationError("description", fmt.Sprintf("description must be at most %d characters", MaxDescription))
		}
	} else if create {
		return out, domain.NewValidationError("description", "description is required")
	}

	if f.Price != nil {
		p := *f.Price
		switch {
		case !p.IsPositive():
			return out, domain.NewValidationError("price", "price must be greater than zero")
		case p.GreaterThan(MaxPrice):
			return out, domain.NewValidationError("price", "price must not exceed "+MaxPrice.StringFixed(2))
		case !p.Equal(p.Round(maxPriceDecimals)):
			return out, domain.NewValidationError("price", "price must have at most two decimal places")
		}
		out.price = p
	} else if create {
		return out, domain.NewValidationError("price", "price is required")
	}

	if f.Quantity != nil {
		if *f.Quantity < 0 {
			return out, domain.NewValidationError("quantity", "quantity must not be negative")
		}
		out.quantity = *f.Quantity
	} else if create {
		return out, domain.NewValidationError("quantity", "quantity is required")
	}

	if f.CategoryID != nil {
		out.categoryID = strings.TrimSpace(*f.CategoryID)
		if out.categoryID == "" {
			return out, domain.NewValidationError("category", "category is required")
		}
	} else if create {
		return out, domain.NewValidationError("category", "category is required")
	}

	if f.Shipping != nil {
		out.shipping = *f.Shipping
	}
	return out, nil
}

func validatePhoto(p *ports.Photo) error {
	if p == nil {
		return nil
	}
	if p.Size > MaxPhotoSize {
		return domain.NewValidationError("photo", "photo must be smaller than 1MB")
	}
	if !photoTypes[strings.ToLower(p.ContentType)] {
		return domain.NewValidationError("photo", "photo must be a JPEG, PNG or GIF image")
	}
	return nil
}
