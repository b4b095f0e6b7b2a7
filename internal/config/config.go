// Package config provides configuration management for the cube service.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/robert-malhotra/stac-cube/internal/crs"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Catalog CatalogConfig `envPrefix:"CATALOG_"`
	Assets  AssetsConfig  `envPrefix:"ASSETS_"`
	Cube    CubeConfig    `envPrefix:"CUBE_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Logging LoggingConfig `envPrefix:"LOG_"`

	// ProductsDir holds one JSON product definition per file.
	ProductsDir string `env:"PRODUCTS_DIR" envDefault:"./products"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CatalogConfig contains STAC API client configuration.
type CatalogConfig struct {
	URL      string        `env:"URL"` // STAC API root (required)
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`
	PageSize int           `env:"PAGE_SIZE" envDefault:"100"`
	MaxItems int           `env:"MAX_ITEMS" envDefault:"2000"`
}

// AssetsConfig contains asset reader configuration.
type AssetsConfig struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// CubeConfig contains cube construction defaults and engine limits.
type CubeConfig struct {
	DefaultCRS      string        `env:"DEFAULT_CRS" envDefault:"EPSG:4326"`
	DefaultTileSize int           `env:"DEFAULT_TILE_SIZE" envDefault:"1024"`
	MaxPixels       int64         `env:"MAX_PIXELS" envDefault:"1073741824"`
	MaxChunks       int64         `env:"MAX_CHUNKS" envDefault:"100000"`
	Workers         int           `env:"WORKERS" envDefault:"8"`
	CacheSize       int           `env:"CACHE_SIZE" envDefault:"512"`
	TTL             time.Duration `env:"TTL" envDefault:"1h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Catalog
	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog URL is required")
	}

	if u, err := url.Parse(c.Catalog.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("catalog URL %q must be an absolute URL", c.Catalog.URL)
	}

	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}

	if c.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog page size must be at least 1, got %d", c.Catalog.PageSize)
	}

	if c.Catalog.MaxItems < c.Catalog.PageSize {
		return fmt.Errorf("catalog max items (%d) must be >= page size (%d)", c.Catalog.MaxItems, c.Catalog.PageSize)
	}

	if c.Assets.Timeout <= 0 {
		return fmt.Errorf("assets timeout must be positive, got %s", c.Assets.Timeout)
	}

	// Cube
	if _, err := crs.ParseRequest(c.Cube.DefaultCRS); err != nil {
		return fmt.Errorf("invalid default CRS: %w", err)
	}

	if c.Cube.DefaultTileSize < 1 {
		return fmt.Errorf("default tile size must be at least 1, got %d", c.Cube.DefaultTileSize)
	}

	if c.Cube.MaxPixels < 1 || c.Cube.MaxChunks < 1 {
		return fmt.Errorf("cube max pixels and max chunks must be at least 1, got %d and %d", c.Cube.MaxPixels, c.Cube.MaxChunks)
	}

	if c.Cube.Workers < 1 {
		return fmt.Errorf("cube workers must be at least 1, got %d", c.Cube.Workers)
	}

	if c.Cube.CacheSize < 1 {
		return fmt.Errorf("cube cache size must be at least 1, got %d", c.Cube.CacheSize)
	}

	if c.Cube.TTL <= 0 || c.Cube.CleanupInterval <= 0 {
		return fmt.Errorf("cube TTL and cleanup interval must be positive, got %s and %s", c.Cube.TTL, c.Cube.CleanupInterval)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
