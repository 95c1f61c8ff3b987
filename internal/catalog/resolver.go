package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-reconciler/internal/domain/product"
)

// Fetcher returns catalog data by numeric product id.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) (Entry, error)
}

// Resolver validates a claimed unit price for a SKU against the catalog.
type Resolver struct {
	catalog Fetcher
}

// NewResolver returns a Resolver backed by the given Fetcher.
func NewResolver(catalog Fetcher) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve fetches the catalog entry encoded in sku and checks that claimed
// equals the catalog price exactly.
func (r *Resolver) Resolve(ctx context.Context, sku string, claimed decimal.Decimal) (product.Validated, error) {
	id, err := ProductID(sku)
	if err != nil {
		return product.Validated{}, err
	}

	entry, err := r.catalog.Fetch(ctx, id)
	if err != nil {
		return product.Validated{}, err
	}

	if !claimed.Equal(entry.Price) {
		return product.Validated{}, &Error{
			Kind:    KindPriceMismatch,
			SKU:     sku,
			Message: fmt.Sprintf("unit price for %s must match %s", sku, entry.Price.String()),
		}
	}

	return product.NewValidated(sku, entry.Price, entry.Title, entry.Description, entry.Category), nil
}

// ProductID extracts the catalog product id embedded in sku by concatenating
// its digits, so "P001" maps to 1.
func ProductID(sku string) (int64, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, sku)
	if digits == "" {
		return 0, &Error{
			Kind:    KindInvalidSKU,
			SKU:     sku,
			Message: fmt.Sprintf("SKU %s does not contain a product id", sku),
		}
	}

	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, &Error{
			Kind:    KindInvalidSKU,
			SKU:     sku,
			Message: fmt.Sprintf("SKU %s does not contain a valid product id", sku),
			Err:     err,
		}
	}
	return id, nil
}
