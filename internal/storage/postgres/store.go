package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-reconciler/internal/domain/order"
	"github.com/xenking/order-reconciler/internal/domain/product"
)

var _ order.Store = (*Store)(nil)

// Store implements order.Store on a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Orders returns an OrderRepository that runs outside any transaction.
func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{db: s.pool}
}

// InTx begins a transaction, hands fn repositories bound to it and commits
// when fn succeeds. Any error rolls the transaction back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (txErr error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if txErr == nil {
			return
		}
		// The caller's context may already be done; rollback must still run.
		rbErr := tx.Rollback(context.WithoutCancel(ctx))
		if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			txErr = errors.Wrapf(txErr, "rollback failed: %v", rbErr)
		}
	}()

	if err := fn(ctx, newTxRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// List returns all orders with their lines, newest first.
func (s *Store) List(ctx context.Context) ([]order.Order, error) {
	return s.Orders().List(ctx)
}

// txRepos binds both repositories to one transaction.
type txRepos struct {
	orders   *OrderRepository
	products *ProductRepository
}

var _ order.Tx = (*txRepos)(nil)

func newTxRepos(tx pgx.Tx) *txRepos {
	return &txRepos{
		orders:   &OrderRepository{db: tx},
		products: &ProductRepository{db: tx},
	}
}

func (t *txRepos) UpsertOrder(ctx context.Context, d order.Draft) (order.Order, bool, error) {
	return t.orders.Upsert(ctx, d)
}

func (t *txRepos) Upsert(ctx context.Context, v product.Validated) (product.Product, error) {
	return t.products.Upsert(ctx, v)
}

func (t *txRepos) AddLine(ctx context.Context, orderID int64, sku string, qty int64) error {
	return t.orders.AddLine(ctx, orderID, sku, qty)
}

func (t *txRepos) Get(ctx context.Context, id int64) (order.Order, error) {
	return t.orders.Get(ctx, id)
}
