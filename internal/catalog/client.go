// Package catalog resolves SKUs against the external product catalog.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds a single catalog fetch.
	DefaultTimeout = 5 * time.Second

	maxBodySize = 1 << 20
)

// Entry is the authoritative catalog data for a product.
type Entry struct {
	ID          int64
	Title       string
	Price       decimal.Decimal
	Description string
	Category    string
}

// ClientConfig configures the HTTP catalog client.
type ClientConfig struct {
	// BaseURL is the catalog root; products are fetched from
	// <BaseURL>/products/{id}.
	BaseURL string
	// Timeout bounds each fetch. Zero means DefaultTimeout.
	Timeout time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Transport overrides the base round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Client fetches product entries from the catalog over HTTP.
//
// Concurrent fetches of the same product id share one request.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	tracer  trace.Tracer
	group   singleflight.Group
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse catalog base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("catalog base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		base:    base,
		timeout: cfg.Timeout,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithTracerProvider(cfg.TracerProvider),
				otelhttp.WithMeterProvider(cfg.MeterProvider),
			),
		},
		tracer: cfg.TracerProvider.Tracer("catalog"),
	}, nil
}

// Fetch returns the catalog entry for the numeric product id.
//
// Transport failures yield KindUnavailable, non-2xx statuses KindNotFound and
// undecodable or incomplete bodies KindMalformed.
func (c *Client) Fetch(ctx context.Context, id int64) (Entry, error) {
	key := strconv.FormatInt(id, 10)
	// The shared fetch must not be cancelled by whichever caller started it.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), id)
	})

	select {
	case <-ctx.Done():
		return Entry{}, &Error{
			Kind:    KindUnavailable,
			Message: fmt.Sprintf("fetch product %d", id),
			Err:     ctx.Err(),
		}
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}

func (c *Client) fetch(ctx context.Context, id int64) (_ Entry, rerr error) {
	ctx, span := c.tracer.Start(ctx, "catalog.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("catalog.product_id", id)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath("products", strconv.FormatInt(id, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Entry{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Entry{}, &Error{
			Kind:    KindUnavailable,
			Message: fmt.Sprintf("fetch product %d", id),
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Entry{}, &Error{
			Kind:    KindNotFound,
			Message: fmt.Sprintf("product %d: catalog responded %d", id, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Entry{}, &Error{
			Kind:    KindUnavailable,
			Message: fmt.Sprintf("read product %d", id),
			Err:     err,
		}
	}

	entry, err := decodeEntry(body)
	if err != nil {
		return Entry{}, &Error{
			Kind:    KindMalformed,
			Message: fmt.Sprintf("catalog data for product %d is invalid", id),
			Err:     err,
		}
	}
	entry.ID = id
	return entry, nil
}

// decodeEntry parses a catalog product document, requiring title, price,
// description and category.
func decodeEntry(body []byte) (Entry, error) {
	var (
		e    Entry
		seen = map[string]bool{}
	)
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return e, errors.New("expected JSON object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch k := string(key); k {
		case "title":
			e.Title, err = d.Str()
		case "description":
			e.Description, err = d.Str()
		case "category":
			e.Category, err = d.Str()
		case "price":
			e.Price, err = decodePrice(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", string(key))
		}
		seen[string(key)] = true
		return nil
	}); err != nil {
		return e, err
	}

	for _, field := range []string{"title", "price", "description", "category"} {
		if !seen[field] {
			return e, errors.Errorf("missing field %q", field)
		}
	}
	return e, nil
}

// decodePrice reads a JSON number (or numeric string) without passing it
// through float64.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	default:
		return decimal.Decimal{}, errors.New("price must be a number")
	}
}
