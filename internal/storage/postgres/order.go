package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/order-reconciler/internal/domain/order"
	"github.com/xenking/order-reconciler/internal/domain/product"
)

// sqlStateNumericOutOfRange is raised when a merged quantity leaves the
// INTEGER range.
const sqlStateNumericOutOfRange = "22003"

const (
	upsertOrderByIDSQL = `INSERT INTO orders (id, client, created_at)
	VALUES ($1, $2, COALESCE($3::timestamptz, now()))
	ON CONFLICT (id) DO UPDATE SET client = EXCLUDED.client
	RETURNING id, client, created_at, (xmax = 0) AS inserted`

	// Keeps generated ids ahead of caller-supplied ones.
	syncOrderIDSQL = `SELECT setval(pg_get_serial_sequence('orders', 'id'),
	GREATEST($1, (SELECT COALESCE(MAX(id), 1) FROM orders)))`

	insertOrderSQL = `INSERT INTO orders (client, created_at)
	VALUES ($1, COALESCE($2::timestamptz, now()))
	RETURNING id, client, created_at, TRUE AS inserted`

	addLineSQL = `INSERT INTO order_lines (order_id, sku, quantity)
	VALUES ($1, $2, $3)
	ON CONFLICT (order_id, sku) DO UPDATE SET quantity = order_lines.quantity + EXCLUDED.quantity`

	getOrderSQL = `SELECT id, client, created_at FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, client, created_at FROM orders ORDER BY created_at DESC, id DESC`

	getLinesSQL = `SELECT l.order_id, l.quantity, p.sku, p.price, p.title, p.description, p.category
	FROM order_lines l JOIN products p ON p.sku = l.sku
	WHERE l.order_id = ANY($1)
	ORDER BY l.order_id, p.sku`
)

// OrderRepository persists orders and their lines.
type OrderRepository struct {
	db dbtx
}

// Upsert resolves the order described by d. With an id it updates the client
// of an existing row in place and never touches created_at; otherwise it
// inserts a new row.
func (r *OrderRepository) Upsert(ctx context.Context, d order.Draft) (order.Order, bool, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if d.ID != nil {
		rows, err = r.db.Query(ctx, upsertOrderByIDSQL, *d.ID, d.Client, d.CreatedAt)
	} else {
		rows, err = r.db.Query(ctx, insertOrderSQL, d.Client, d.CreatedAt)
	}
	if err != nil {
		return order.Order{}, false, errors.Wrap(err, "upsert order")
	}

	type upserted struct {
		order    order.Order
		inserted bool
	}
	res, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (upserted, error) {
		var u upserted
		err := row.Scan(&u.order.ID, &u.order.Client, &u.order.CreatedAt, &u.inserted)
		return u, err
	})
	if err != nil {
		return order.Order{}, false, errors.Wrap(err, "upsert order")
	}

	if d.ID != nil && res.inserted {
		if _, err := r.db.Exec(ctx, syncOrderIDSQL, *d.ID); err != nil {
			return order.Order{}, false, errors.Wrap(err, "sync order id sequence")
		}
	}
	return res.order, res.inserted, nil
}

// AddLine adds qty to the (orderID, sku) line, creating it when missing.
// The increment happens in a single statement so concurrent additions to
// the same line are serialized by the row lock.
func (r *OrderRepository) AddLine(ctx context.Context, orderID int64, sku string, qty int64) error {
	if _, err := r.db.Exec(ctx, addLineSQL, orderID, sku, qty); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlStateNumericOutOfRange {
			return errors.Wrapf(order.ErrQuantityOverflow, "add line %d/%q", orderID, sku)
		}
		return errors.Wrapf(err, "add line %d/%q", orderID, sku)
	}
	return nil
}

// Get returns the order with its lines ordered by SKU.
func (r *OrderRepository) Get(ctx context.Context, id int64) (order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderSQL, id)
	if err != nil {
		return order.Order{}, errors.Wrapf(err, "get order %d", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, errors.Wrapf(err, "get order %d", id)
	}

	lines, err := r.lines(ctx, []int64{id})
	if err != nil {
		return order.Order{}, err
	}
	o.Lines = lines[id]
	return o, nil
}

// List returns every order with its lines, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	lines, err := r.lines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepository) lines(ctx context.Context, ids []int64) (map[int64][]order.Line, error) {
	rows, err := r.db.Query(ctx, getLinesSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get order lines")
	}

	type orderLine struct {
		orderID int64
		line    order.Line
	}
	collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orderLine, error) {
		var (
			ol orderLine
			p  product.Product
			q  int32
		)
		err := row.Scan(&ol.orderID, &q, &p.SKU, &p.Price, &p.Title, &p.Description, &p.Category)
		ol.line = order.Line{Product: p, Quantity: int64(q)}
		return ol, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "get order lines")
	}

	byOrder := make(map[int64][]order.Line, len(ids))
	for _, ol := range collected {
		byOrder[ol.orderID] = append(byOrder[ol.orderID], ol.line)
	}
	return byOrder, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		createdAt time.Time
	)
	err := row.Scan(&o.ID, &o.Client, &createdAt)
	o.CreatedAt = createdAt.UTC()
	return o, err
}
