package order

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-reconciler/internal/domain/product"
)

// MaxQuantity bounds the quantity of a single line, merged or not.
const MaxQuantity = math.MaxInt32

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrQuantityOverflow is returned by Tx.AddLine when the merged line
	// quantity would exceed MaxQuantity.
	ErrQuantityOverflow = errors.New("line quantity overflow")
)

// Order is a client order and the lines it owns.
type Order struct {
	ID        int64
	Client    string
	CreatedAt time.Time
	Lines     []Line
}

// Line is the quantity of one product within an order.
type Line struct {
	Product  product.Product
	Quantity int64
}

// Draft describes the order a payload asks for before it is persisted.
type Draft struct {
	// ID is the caller-supplied identifier, nil to have one generated.
	ID     *int64
	Client string
	// CreatedAt overrides the creation time of a newly created order.
	// It is ignored when the order already exists.
	CreatedAt *time.Time
}

// Tx is the set of mutations available inside a reconcile transaction.
type Tx interface {
	product.Store

	// UpsertOrder returns the order identified by d.ID, updating its client
	// in place, or creates it. created reports whether a row was inserted.
	UpsertOrder(ctx context.Context, d Draft) (o Order, created bool, err error)
	// AddLine increments the quantity of the (orderID, sku) line by qty,
	// creating the line when it does not exist.
	AddLine(ctx context.Context, orderID int64, sku string, qty int64) error
	// Get loads an order with its lines.
	Get(ctx context.Context, id int64) (Order, error)
}

// Store runs reconcile transactions and serves order reads.
type Store interface {
	// InTx runs fn inside a single transaction. The transaction commits only
	// when fn returns nil and is rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// List returns all orders with their lines, newest first.
	List(ctx context.Context) ([]Order, error)
}
