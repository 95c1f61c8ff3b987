package order

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// View is the presentation of an order with its lines and total.
type View struct {
	ID          int64
	Client      string
	CreatedAt   time.Time
	Items       []ViewItem
	TotalAmount decimal.Decimal
}

// ViewItem is one order line with the product's display fields.
type ViewItem struct {
	SKU      string
	Title    string
	Price    decimal.Decimal
	Quantity int64
}

// Present builds the view of o. The total is the sum of price times
// quantity over all lines, rounded half away from zero to 2 places.
func Present(o Order) View {
	items := lo.Map(o.Lines, func(l Line, _ int) ViewItem {
		return ViewItem{
			SKU:      l.Product.SKU,
			Title:    l.Product.Title,
			Price:    l.Product.Price,
			Quantity: l.Quantity,
		}
	})
	total := lo.Reduce(items, func(sum decimal.Decimal, it ViewItem, _ int) decimal.Decimal {
		return sum.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}, decimal.Zero)

	return View{
		ID:          o.ID,
		Client:      o.Client,
		CreatedAt:   o.CreatedAt,
		Items:       items,
		TotalAmount: total.Round(2),
	}
}

// Encode writes v as a JSON object. Monetary amounts are written as JSON
// numbers with their exact decimal digits.
func (v View) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(v.ID) })
		e.Field("client", func(e *jx.Encoder) { e.Str(v.Client) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(v.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("products", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range v.Items {
					it.Encode(e)
				}
			})
		})
		e.Field("total_amount", func(e *jx.Encoder) { e.RawStr(v.TotalAmount.String()) })
	})
}

// Encode writes it as a JSON object.
func (it ViewItem) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("sku", func(e *jx.Encoder) { e.Str(it.SKU) })
		e.Field("title", func(e *jx.Encoder) { e.Str(it.Title) })
		e.Field("price", func(e *jx.Encoder) { e.RawStr(it.Price.String()) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int64(it.Quantity) })
	})
}
