package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/order-reconciler/internal/catalog"
)

// DefaultMaxAttempts is the number of times a reconcile is tried in total.
const DefaultMaxAttempts = 4

// RetryPolicy decides which reconcile failures are retried and how often.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// RetryCatalogNotFound retries when the catalog rejects a product id.
	RetryCatalogNotFound bool
	// RetryCatalogUnavailable retries when the catalog cannot be reached.
	RetryCatalogUnavailable bool
}

// DefaultRetryPolicy retries every non-validation failure up to
// DefaultMaxAttempts times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:             DefaultMaxAttempts,
		RetryCatalogNotFound:    true,
		RetryCatalogUnavailable: true,
	}
}

// Retryable reports whether err may succeed on a fresh attempt. Timeouts
// inside a dependency, such as a slow catalog, are retryable; Create stops
// on its own once the caller's context is done.
func (p RetryPolicy) Retryable(err error) bool {
	if _, ok := AsValidation(err); ok {
		return false
	}
	switch kind, _ := catalog.KindOf(err); kind {
	case catalog.KindNotFound:
		return p.RetryCatalogNotFound
	case catalog.KindUnavailable:
		return p.RetryCatalogUnavailable
	}
	return true
}

// Service creates orders with bounded retries and serves order views.
type Service struct {
	reconciler *Reconciler
	store      Store
	policy     RetryPolicy

	attempts metric.Int64Counter
}

// NewService wraps reconciler with policy. A nil MeterProvider falls back to
// the global one.
func NewService(reconciler *Reconciler, store Store, policy RetryPolicy, mp metric.MeterProvider) (*Service, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	attempts, err := mp.Meter("order").Int64Counter("order.reconcile.attempts",
		metric.WithDescription("Reconcile attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create attempts counter")
	}
	return &Service{
		reconciler: reconciler,
		store:      store,
		policy:     policy,
		attempts:   attempts,
	}, nil
}

// Create reconciles p, re-running the whole reconcile from scratch after
// each retryable failure. Validation errors are returned immediately; once
// attempts run out the last error is returned wrapped in *ExhaustedError.
func (s *Service) Create(ctx context.Context, p Payload) (*Order, error) {
	lg := zctx.From(ctx)

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		o, err := s.reconciler.Reconcile(ctx, p)
		if err == nil {
			s.record(ctx, "success")
			return o, nil
		}
		lastErr = err

		if _, ok := AsValidation(err); ok {
			s.record(ctx, "invalid")
			return nil, err
		}
		s.record(ctx, "error")

		if !s.policy.Retryable(err) {
			return nil, &ExhaustedError{Attempts: attempt, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ExhaustedError{Attempts: attempt, Err: errors.Wrapf(err, "context done: %v", ctxErr)}
		}
		if attempt < s.policy.MaxAttempts {
			lg.Warn("Reconcile failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.policy.MaxAttempts),
				zap.Error(err),
			)
		}
	}
	return nil, &ExhaustedError{Attempts: s.policy.MaxAttempts, Err: lastErr}
}

// List returns views of all orders, newest first.
func (s *Service) List(ctx context.Context) ([]View, error) {
	orders, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	views := make([]View, len(orders))
	for i, o := range orders {
		views[i] = Present(o)
	}
	return views, nil
}

func (s *Service) record(ctx context.Context, outcome string) {
	s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
