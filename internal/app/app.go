package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-reconciler/internal/catalog"
	"github.com/xenking/order-reconciler/internal/domain/order"
	"github.com/xenking/order-reconciler/internal/handler"
	"github.com/xenking/order-reconciler/internal/storage/postgres"
	"github.com/xenking/order-reconciler/pkg/health"
	"github.com/xenking/order-reconciler/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog", cfg.Catalog.BaseURL),
		zap.Int("max_attempts", cfg.Retry.MaxAttempts),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	root, err := NewHandler(Deps{
		Config:         cfg,
		Pool:           pool,
		Health:         healthSvc,
		Logger:         zctx.From(ctx),
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create handler")
	}
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Catalog calls across retries can take a while.
		WriteTimeout:   time.Duration(cfg.Retry.MaxAttempts)*cfg.Catalog.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        root,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// Deps are the externally owned resources NewHandler builds on.
type Deps struct {
	Config         *Config
	Pool           *pgxpool.Pool
	Health         *health.Health
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewHandler assembles the order service and returns the root HTTP handler
// with health endpoints and the middleware chain applied.
func NewHandler(d Deps) (http.Handler, error) {
	cfg := d.Config

	client, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL:        cfg.Catalog.BaseURL,
		Timeout:        cfg.Catalog.Timeout,
		TracerProvider: d.TracerProvider,
		MeterProvider:  d.MeterProvider,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create catalog client")
	}

	store := postgres.NewStore(d.Pool)
	reconciler := order.NewReconciler(catalog.NewResolver(client), store, d.TracerProvider)
	orders, err := order.NewService(reconciler, store, order.RetryPolicy{
		MaxAttempts:             cfg.Retry.MaxAttempts,
		RetryCatalogNotFound:    cfg.Retry.RetryCatalogNotFound,
		RetryCatalogUnavailable: cfg.Retry.RetryCatalogUnavailable,
	}, d.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", d.Health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", d.Health.ReadyEndpoint)
	handler.NewHandler(orders, cfg.MaxBodyBytes).Register(mux)

	instrument, err := httpmiddleware.Instrument("orders-api", d.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create http metrics")
	}

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(d.Logger),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
		instrument,
	), nil
}
