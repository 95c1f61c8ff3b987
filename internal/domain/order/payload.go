package order

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Column limits of the order store.
const (
	MaxClientLength = 128
	MaxSKULength    = 64
)

// Payload is an undecoded order submission. Fields hold the raw JSON of the
// corresponding key and are nil when the key is absent.
type Payload struct {
	ID        jx.Raw
	Client    jx.Raw
	Items     jx.Raw
	Timestamp jx.Raw
}

// Item is the raw JSON of one entry of the items list.
type Item struct {
	SKU       jx.Raw
	UnitPrice jx.Raw
	Quantity  jx.Raw
}

// DecodePayload splits a JSON document into its known top-level fields.
// Anything other than a JSON object is a MalformedPayload error.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return p, invalid(FieldPayload, CodeMalformedPayload, "request body must be a JSON object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		switch string(key) {
		case "id":
			p.ID = raw
		case "cliente":
			p.Client = raw
		case "productos":
			p.Items = raw
		case "fecha":
			p.Timestamp = raw
		}
		return nil
	}); err != nil {
		return Payload{}, invalid(FieldPayload, CodeMalformedPayload, "request body is not valid JSON: %v", err)
	}
	return p, nil
}

// request is a Payload that passed top-level validation.
type request struct {
	draft Draft
	items []Item
}

// validate checks the payload shape in a fixed order: client, items,
// timestamp, then the optional identifier.
func (p Payload) validate() (request, error) {
	var r request

	client, ok := rawString(p.Client)
	if !ok || strings.TrimSpace(client) == "" {
		return r, invalid(FieldClient, CodeMissingClient, "this field is required")
	}
	if utf8.RuneCountInString(client) > MaxClientLength {
		return r, invalid(FieldClient, CodeInvalidClient, "ensure this field has no more than %d characters", MaxClientLength)
	}
	r.draft.Client = client

	items, err := p.decodeItems()
	if err != nil {
		return r, err
	}
	r.items = items

	if !isNull(p.Timestamp) {
		s, ok := rawString(p.Timestamp)
		if !ok {
			return r, invalid(FieldTimestamp, CodeInvalidTimestamp, "invalid date format")
		}
		if s != "" {
			ts, err := ParseTimestamp(s)
			if err != nil {
				return r, invalid(FieldTimestamp, CodeInvalidTimestamp, "invalid date format")
			}
			r.draft.CreatedAt = &ts
		}
	}

	if !isNull(p.ID) {
		id, err := rawInt(p.ID)
		if err != nil || id <= 0 {
			return r, invalid(FieldID, CodeInvalidIdentifier, "id must be a positive integer")
		}
		r.draft.ID = &id
	}

	return r, nil
}

func (p Payload) decodeItems() ([]Item, error) {
	if isNull(p.Items) {
		return nil, invalid(FieldItems, CodeEmptyItems, "at least one product is required")
	}
	if p.Items.Type() != jx.Array {
		return nil, invalid(FieldItems, CodeMalformedPayload, "productos must be a list")
	}

	var items []Item
	d := jx.DecodeBytes(p.Items)
	if err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return errors.New("each product must be an object")
		}
		var it Item
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			switch string(key) {
			case "sku":
				it.SKU = raw
			case "precio_unitario":
				it.UnitPrice = raw
			case "cantidad":
				it.Quantity = raw
			}
			return nil
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	}); err != nil {
		return nil, invalid(FieldItems, CodeMalformedPayload, "%v", err)
	}

	if len(items) == 0 {
		return nil, invalid(FieldItems, CodeEmptyItems, "at least one product is required")
	}
	return items, nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses an ISO 8601 date-time. Values without a zone offset
// are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// RFC 3339 with a space separator.
	if t, err := time.Parse("2006-01-02 15:04:05.999999999Z07:00", s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unsupported date-time %q", s)
}

func isNull(raw jx.Raw) bool {
	return len(raw) == 0 || raw.Type() == jx.Null
}

func rawString(raw jx.Raw) (string, bool) {
	if len(raw) == 0 || raw.Type() != jx.String {
		return "", false
	}
	s, err := jx.DecodeBytes(raw).Str()
	if err != nil {
		return "", false
	}
	return s, true
}

// rawDecimal parses a JSON number or numeric string exactly.
func rawDecimal(raw jx.Raw) (decimal.Decimal, error) {
	switch raw.Type() {
	case jx.Number:
		return decimal.NewFromString(raw.String())
	case jx.String:
		s, _ := rawString(raw)
		return decimal.NewFromString(strings.TrimSpace(s))
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %s", raw.Type())
	}
}

// rawInt parses an integral JSON number or numeric string.
func rawInt(raw jx.Raw) (int64, error) {
	d, err := rawDecimal(raw)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, errors.Errorf("%s is not an integer", d)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, errors.Errorf("%s is out of range", d)
	}
	return strconv.ParseInt(d.String(), 10, 64)
}
