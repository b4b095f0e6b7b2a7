package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("CATALOG_URL", "https://stac.example.com/v1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}

	if cfg.Catalog.PageSize != 100 {
		t.Errorf("expected default page size 100, got %d", cfg.Catalog.PageSize)
	}

	if cfg.Cube.DefaultCRS != "EPSG:4326" {
		t.Errorf("expected default CRS EPSG:4326, got %s", cfg.Cube.DefaultCRS)
	}

	if cfg.Cube.DefaultTileSize != 1024 {
		t.Errorf("expected default tile size 1024, got %d", cfg.Cube.DefaultTileSize)
	}

	if cfg.Cube.MaxPixels != 1<<30 || cfg.Cube.MaxChunks != 100000 {
		t.Errorf("expected default grid limits 1<<30 pixels and 100000 chunks, got %d and %d", cfg.Cube.MaxPixels, cfg.Cube.MaxChunks)
	}

	if cfg.ProductsDir != "./products" {
		t.Errorf("expected default products dir, got %s", cfg.ProductsDir)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_READ_TIMEOUT", "60s")
	t.Setenv("CATALOG_URL", "https://stac.example.com/v1")
	t.Setenv("CATALOG_TIMEOUT", "45s")
	t.Setenv("CUBE_DEFAULT_CRS", "native")
	t.Setenv("CUBE_WORKERS", "2")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %s", cfg.Server.ReadTimeout)
	}

	if cfg.Catalog.Timeout != 45*time.Second {
		t.Errorf("expected catalog timeout 45s, got %s", cfg.Catalog.Timeout)
	}

	if cfg.Cube.DefaultCRS != "native" {
		t.Errorf("expected default CRS native, got %s", cfg.Cube.DefaultCRS)
	}

	if cfg.Cube.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Cube.Workers)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("expected debug/text logging, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadMissingCatalogURL(t *testing.T) {
	t.Setenv("CATALOG_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when CATALOG_URL is not set")
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			URL:      "https://stac.example.com",
			Timeout:  30 * time.Second,
			PageSize: 100,
			MaxItems: 1000,
		},
		Assets: AssetsConfig{Timeout: time.Minute},
		Cube: CubeConfig{
			DefaultCRS:      "EPSG:4326",
			DefaultTileSize: 512,
			MaxPixels:       1 << 30,
			MaxChunks:       100000,
			Workers:         4,
			CacheSize:       64,
			TTL:             time.Hour,
			CleanupInterval: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server port",
		},
		{
			name:    "relative catalog URL",
			mutate:  func(c *Config) { c.Catalog.URL = "stac/v1" },
			wantErr: "absolute URL",
		},
		{
			name:    "max items below page size",
			mutate:  func(c *Config) { c.Catalog.MaxItems = 10 },
			wantErr: "max items",
		},
		{
			name:    "unparseable default CRS",
			mutate:  func(c *Config) { c.Cube.DefaultCRS = "EPSG:nope" },
			wantErr: "default CRS",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Cube.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "zero tile size",
			mutate:  func(c *Config) { c.Cube.DefaultTileSize = 0 },
			wantErr: "tile size",
		},
		{
			name:    "zero max pixels",
			mutate:  func(c *Config) { c.Cube.MaxPixels = 0 },
			wantErr: "max pixels",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfigAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 3000}
	if got := s.Address(); got != "127.0.0.1:3000" {
		t.Errorf("Address() = %q, want 127.0.0.1:3000", got)
	}
}
