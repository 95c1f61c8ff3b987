package order

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-reconciler/internal/catalog"
	"github.com/xenking/order-reconciler/internal/domain/product"
)

// --- In-memory store ---

type lineKey struct {
	orderID int64
	sku     string
}

type memState struct {
	nextID   int64
	orders   map[int64]Order
	products map[string]product.Product
	lines    map[lineKey]int64
}

func (s memState) clone() memState {
	return memState{
		nextID:   s.nextID,
		orders:   maps.Clone(s.orders),
		products: maps.Clone(s.products),
		lines:    maps.Clone(s.lines),
	}
}

// memStore applies each transaction to a copy of its state and swaps the
// copy in only on success.
type memStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time

	// failAddLine makes AddLine fail for the given SKU.
	failAddLine string
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			nextID:   1,
			orders:   map[int64]Order{},
			products: map[string]product.Product{},
			lines:    map[lineKey]int64{},
		},
		now: func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memStore) List(ctx context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, state: m.state}
	orders := make([]Order, 0, len(m.state.orders))
	for id := range m.state.orders {
		o, err := tx.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *memStore) order(id int64) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	return o, ok
}

func (m *memStore) counts() (orders, products, lines int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders), len(m.state.products), len(m.state.lines)
}

type memTx struct {
	store *memStore
	state memState
}

func (t *memTx) UpsertOrder(_ context.Context, d Draft) (Order, bool, error) {
	if d.ID != nil {
		if o, ok := t.state.orders[*d.ID]; ok {
			o.Client = d.Client
			t.state.orders[o.ID] = o
			return o, false, nil
		}
	}

	o := Order{Client: d.Client, CreatedAt: t.store.now()}
	if d.CreatedAt != nil {
		o.CreatedAt = *d.CreatedAt
	}
	if d.ID != nil {
		o.ID = *d.ID
	} else {
		for {
			if _, taken := t.state.orders[t.state.nextID]; !taken {
				break
			}
			t.state.nextID++
		}
		o.ID = t.state.nextID
		t.state.nextID++
	}
	t.state.orders[o.ID] = o
	return o, true, nil
}

func (t *memTx) Upsert(_ context.Context, v product.Validated) (product.Product, error) {
	p := v.Product()
	t.state.products[p.SKU] = p
	return p, nil
}

func (t *memTx) AddLine(_ context.Context, orderID int64, sku string, qty int64) error {
	if sku == t.store.failAddLine {
		return errors.New("connection reset")
	}
	if _, ok := t.state.products[sku]; !ok {
		return errors.Errorf("product %s does not exist", sku)
	}
	key := lineKey{orderID: orderID, sku: sku}
	if t.state.lines[key]+qty > MaxQuantity {
		return errors.Wrapf(ErrQuantityOverflow, "add line %s", sku)
	}
	t.state.lines[key] += qty
	return nil
}

func (t *memTx) Get(_ context.Context, id int64) (Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Lines = nil
	for k, qty := range t.state.lines {
		if k.orderID == id {
			o.Lines = append(o.Lines, Line{Product: t.state.products[k.sku], Quantity: qty})
		}
	}
	sort.Slice(o.Lines, func(i, j int) bool { return o.Lines[i].Product.SKU < o.Lines[j].Product.SKU })
	return o, nil
}

// --- Fake resolver ---

type fakeResolver struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
	// errs are returned by successive calls before falling back to prices.
	errs []error
}

func newFakeResolver(prices map[string]string) *fakeResolver {
	r := &fakeResolver{prices: map[string]decimal.Decimal{}}
	for sku, p := range prices {
		r.prices[sku] = decimal.RequireFromString(p)
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, sku string, claimed decimal.Decimal) (product.Validated, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return product.Validated{}, err
		}
	}

	if _, err := catalog.ProductID(sku); err != nil {
		return product.Validated{}, err
	}
	price, ok := r.prices[sku]
	if !ok {
		return product.Validated{}, &catalog.Error{Kind: catalog.KindNotFound, SKU: sku, Message: "not in catalog"}
	}
	if !claimed.Equal(price) {
		return product.Validated{}, &catalog.Error{
			Kind:    catalog.KindPriceMismatch,
			SKU:     sku,
			Message: "unit price for " + sku + " must match " + price.String(),
		}
	}
	return product.NewValidated(sku, price, "Title "+sku, "Description "+sku, "misc"), nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
