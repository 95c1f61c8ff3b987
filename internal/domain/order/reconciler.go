package order

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/order-reconciler/internal/catalog"
	"github.com/xenking/order-reconciler/internal/domain/product"
)

// Resolver validates a claimed unit price for a SKU against the catalog.
type Resolver interface {
	Resolve(ctx context.Context, sku string, claimed decimal.Decimal) (product.Validated, error)
}

// Reconciler applies one order payload to the store atomically.
type Reconciler struct {
	resolver Resolver
	store    Store
	tracer   trace.Tracer
}

// NewReconciler creates a Reconciler. A nil TracerProvider falls back to the
// global one.
func NewReconciler(resolver Resolver, store Store, tp trace.TracerProvider) *Reconciler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Reconciler{
		resolver: resolver,
		store:    store,
		tracer:   tp.Tracer("order"),
	}
}

// Reconcile validates p and, in one transaction, resolves the order, checks
// every item against the catalog, upserts its product and merges its
// quantity into the order. Items are processed in submission order.
//
// On any error nothing is persisted.
func (r *Reconciler) Reconcile(ctx context.Context, p Payload) (*Order, error) {
	req, err := p.validate()
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "order.Reconcile",
		trace.WithAttributes(attribute.Int("order.items", len(req.items))),
	)
	defer span.End()

	var result Order
	err = r.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, created, err := tx.UpsertOrder(ctx, req.draft)
		if err != nil {
			return errors.Wrap(err, "upsert order")
		}
		span.SetAttributes(
			attribute.Int64("order.id", o.ID),
			attribute.Bool("order.created", created),
		)

		for i, it := range req.items {
			if err := r.applyItem(ctx, tx, o.ID, it); err != nil {
				return errors.Wrapf(err, "item %d", i)
			}
		}

		result, err = tx.Get(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "reload order")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &result, nil
}

func (r *Reconciler) applyItem(ctx context.Context, tx Tx, orderID int64, it Item) error {
	sku, ok := rawString(it.SKU)
	sku = strings.TrimSpace(sku)
	if !ok || sku == "" {
		return invalid(FieldItems, CodeMissingSKU, "each product requires a sku")
	}
	if utf8.RuneCountInString(sku) > MaxSKULength {
		return invalid(FieldItems, CodeInvalidSKU, "SKU %s is longer than %d characters", sku, MaxSKULength)
	}

	if isNull(it.UnitPrice) {
		return invalid(FieldItems, CodeMissingUnitPrice, "unit price is required for %s", sku)
	}
	claimed, err := rawDecimal(it.UnitPrice)
	if err != nil {
		return invalid(FieldItems, CodeInvalidUnitPrice, "unit price for %s must be a number", sku)
	}

	validated, err := r.resolver.Resolve(ctx, sku, claimed)
	if err != nil {
		return mapCatalogError(sku, err)
	}

	if _, err := tx.Upsert(ctx, validated); err != nil {
		return errors.Wrapf(err, "upsert product %s", sku)
	}

	qty, err := quantity(sku, it.Quantity)
	if err != nil {
		return err
	}

	if err := tx.AddLine(ctx, orderID, sku, qty); err != nil {
		if errors.Is(err, ErrQuantityOverflow) {
			return invalid(FieldItems, CodeInvalidQuantity, "total quantity for %s exceeds %d", sku, MaxQuantity)
		}
		return errors.Wrapf(err, "add line %s", sku)
	}
	return nil
}

func quantity(sku string, raw jx.Raw) (int64, error) {
	if isNull(raw) {
		return 0, invalid(FieldItems, CodeMissingQuantity, "quantity is required for %s", sku)
	}
	qty, err := rawInt(raw)
	if err != nil || qty > MaxQuantity {
		return 0, invalid(FieldItems, CodeInvalidQuantity, "quantity for %s must be an integer", sku)
	}
	if qty <= 0 {
		return 0, invalid(FieldItems, CodeNonPositiveQuantity, "quantity for %s must be greater than 0", sku)
	}
	return qty, nil
}

// mapCatalogError turns catalog failures caused by the submitted data into
// validation errors on the items field. Availability failures pass through.
func mapCatalogError(sku string, err error) error {
	var cerr *catalog.Error
	if !errors.As(err, &cerr) {
		return errors.Wrapf(err, "resolve %s", sku)
	}

	var code Code
	switch cerr.Kind {
	case catalog.KindInvalidSKU:
		code = CodeInvalidSKU
	case catalog.KindPriceMismatch:
		code = CodePriceMismatch
	case catalog.KindMalformed:
		code = CodeCatalogMalformed
	default:
		return errors.Wrapf(err, "resolve %s", sku)
	}
	return &ValidationError{
		Field:   FieldItems,
		Code:    code,
		Message: cerr.Message,
	}
}
