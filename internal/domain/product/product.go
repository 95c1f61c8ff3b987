package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a catalog item cached locally, keyed by SKU.
type Product struct {
	SKU         string
	Price       decimal.Decimal
	Title       string
	Description string
	Category    string
}

// Validated holds catalog fields that passed price validation for a SKU.
//
// Values are produced only by the catalog resolver and are safe to persist
// verbatim: the catalog is authoritative for every field.
type Validated struct {
	sku         string
	price       decimal.Decimal
	title       string
	description string
	category    string
}

// NewValidated constructs a Validated record.
func NewValidated(sku string, price decimal.Decimal, title, description, category string) Validated {
	return Validated{
		sku:         sku,
		price:       price,
		title:       title,
		description: description,
		category:    category,
	}
}

func (v Validated) SKU() string            { return v.sku }
func (v Validated) Price() decimal.Decimal { return v.price }
func (v Validated) Title() string          { return v.title }
func (v Validated) Description() string    { return v.description }
func (v Validated) Category() string       { return v.category }

// Product returns the product record the validated data describes.
func (v Validated) Product() Product {
	return Product{
		SKU:         v.sku,
		Price:       v.price,
		Title:       v.title,
		Description: v.description,
		Category:    v.category,
	}
}

// Store persists validated products.
type Store interface {
	// Upsert creates the product for v.SKU() or overwrites its price, title,
	// description and category when it already exists.
	Upsert(ctx context.Context, v Validated) (Product, error)
}
