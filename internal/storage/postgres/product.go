package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-reconciler/internal/domain/product"
)

const upsertProductSQL = `INSERT INTO products (sku, price, title, description, category)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (sku) DO UPDATE SET
		price = EXCLUDED.price,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		updated_at = now()
	RETURNING sku, price, title, description, category`

var _ product.Store = (*ProductRepository)(nil)

// ProductRepository persists catalog-validated products.
type ProductRepository struct {
	db dbtx
}

// Upsert creates the product or overwrites every catalog field of an
// existing one.
func (r *ProductRepository) Upsert(ctx context.Context, v product.Validated) (product.Product, error) {
	rows, err := r.db.Query(ctx, upsertProductSQL,
		v.SKU(), v.Price(), v.Title(), v.Description(), v.Category(),
	)
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "upsert product %q", v.SKU())
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "upsert product %q", v.SKU())
	}
	return p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.SKU, &p.Price, &p.Title, &p.Description, &p.Category)
	return p, err
}
