package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxBodyBytes int64  `default:"1048576" usage:"Maximum accepted order payload size in bytes" flag:"max-body-bytes"`
	Catalog      CatalogConfig
	Retry        RetryConfig
	Graceful     GracefulConfig
}

// CatalogConfig points at the external product catalog.
type CatalogConfig struct {
	BaseURL string        `default:"https://fakestoreapi.com" usage:"Catalog base URL" flag:"catalog-base-url"`
	Timeout time.Duration `default:"5s" usage:"Timeout of a single catalog request" flag:"catalog-timeout"`
}

// RetryConfig controls how often a failed reconcile is attempted again.
type RetryConfig struct {
	MaxAttempts             int  `default:"4" usage:"Total reconcile attempts per order" flag:"retry-max-attempts"`
	RetryCatalogNotFound    bool `default:"true" usage:"Retry when the catalog does not know a product" flag:"retry-catalog-not-found"`
	RetryCatalogUnavailable bool `default:"true" usage:"Retry when the catalog cannot be reached" flag:"retry-catalog-unavailable"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	}
	if c.Catalog.BaseURL == "" {
		return errors.New("catalog base URL is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Errorf("retry max attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORDERS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
