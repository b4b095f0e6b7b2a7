// Package server provides a public API for embedding the cube service.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/stac-cube/internal/api"
	"github.com/robert-malhotra/stac-cube/internal/assetio"
	"github.com/robert-malhotra/stac-cube/internal/catalog"
	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cube"
	"github.com/robert-malhotra/stac-cube/internal/cubestore"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/lazy"
	"github.com/robert-malhotra/stac-cube/internal/metrics"
	"github.com/robert-malhotra/stac-cube/internal/resample"
)

// Version is reported by the build info metric.
const Version = "0.1.0"

// Options configures the cube server.
type Options struct {
	// CatalogURL is the STAC API root searched for tiles (required).
	// Example: "https://earth-search.aws.element84.com/v1"
	CatalogURL string

	// CatalogTimeout bounds every catalog request.
	// Default: 30s
	CatalogTimeout time.Duration

	// PageSize is the number of items requested per search page.
	// Default: 100
	PageSize int

	// MaxItems caps the number of items collected by one search.
	// Default: 2000
	MaxItems int

	// AssetTimeout bounds every asset download.
	// Default: 60s
	AssetTimeout time.Duration

	// Products is the product registry. When nil, products are loaded
	// from ProductsDir.
	Products *config.ProductRegistry

	// ProductsDir is the path to product definition JSON files.
	ProductsDir string

	// DefaultCRS is used when a request names no CRS.
	// Default: "EPSG:4326"
	DefaultCRS string

	// DefaultTileSize is used when a request names no tile size.
	// Default: 1024
	DefaultTileSize int

	// MaxPixels bounds the width times height of a cube grid.
	// Default: 1073741824
	MaxPixels int64

	// MaxChunks bounds the number of spatial chunks of a cube grid.
	// Default: 100000
	MaxChunks int64

	// Workers bounds the number of nodes computed concurrently per request.
	// Default: 8
	Workers int

	// CacheSize is the number of computed nodes kept in memory.
	// Default: 512
	CacheSize int

	// CubeTTL is the idle time after which a stored cube is forgotten.
	// Default: 1h
	CubeTTL time.Duration

	// CleanupInterval is how often expired cubes are swept.
	// Default: 5m
	CleanupInterval time.Duration

	// Metrics enables the /metrics endpoint.
	Metrics bool

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// FromConfig maps the environment configuration onto Options.
func FromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		CatalogURL:      cfg.Catalog.URL,
		CatalogTimeout:  cfg.Catalog.Timeout,
		PageSize:        cfg.Catalog.PageSize,
		MaxItems:        cfg.Catalog.MaxItems,
		AssetTimeout:    cfg.Assets.Timeout,
		ProductsDir:     cfg.ProductsDir,
		DefaultCRS:      cfg.Cube.DefaultCRS,
		DefaultTileSize: cfg.Cube.DefaultTileSize,
		MaxPixels:       cfg.Cube.MaxPixels,
		MaxChunks:       cfg.Cube.MaxChunks,
		Workers:         cfg.Cube.Workers,
		CacheSize:       cfg.Cube.CacheSize,
		CubeTTL:         cfg.Cube.TTL,
		CleanupInterval: cfg.Cube.CleanupInterval,
		Metrics:         cfg.Metrics.Enabled,
		Logger:          logger,
	}
}

// Server is a cube server that can be embedded in another application.
type Server struct {
	router chi.Router
	store  *cubestore.MemoryStore
}

// New creates a new cube server with the given options.
func New(opts Options) (*Server, error) {
	if opts.CatalogURL == "" {
		return nil, fmt.Errorf("catalog URL is required")
	}
	if opts.CatalogTimeout == 0 {
		opts.CatalogTimeout = 30 * time.Second
	}
	if opts.PageSize == 0 {
		opts.PageSize = 100
	}
	if opts.MaxItems == 0 {
		opts.MaxItems = 2000
	}
	if opts.AssetTimeout == 0 {
		opts.AssetTimeout = 60 * time.Second
	}
	if opts.DefaultCRS == "" {
		opts.DefaultCRS = crs.DefaultCode
	}
	if opts.DefaultTileSize == 0 {
		opts.DefaultTileSize = 1024
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = grid.DefaultLimits.MaxPixels
	}
	if opts.MaxChunks == 0 {
		opts.MaxChunks = grid.DefaultLimits.MaxChunks
	}
	if opts.Workers == 0 {
		opts.Workers = 8
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 512
	}
	if opts.CubeTTL == 0 {
		opts.CubeTTL = time.Hour
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger

	products := opts.Products
	if products == nil {
		var err error
		products, err = config.LoadProducts(opts.ProductsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load products: %w", err)
		}
	}
	logger.Info("loaded products", "count", products.Count(), "ids", products.IDs())

	provider := metrics.New(Version)

	client := catalog.NewClient(opts.CatalogURL, opts.CatalogTimeout).
		WithLogger(logger).
		WithPaging(opts.PageSize, opts.MaxItems).
		WithRecorder(provider)

	reader := assetio.NewReader(opts.AssetTimeout).WithLogger(logger)

	cache, err := lazy.NewCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}

	builder := cube.NewBuilder(products, client, reader, resample.NewKernel()).
		WithDefaults(cube.Defaults{CRS: opts.DefaultCRS, TileSize: opts.DefaultTileSize}).
		WithLimits(grid.Limits{MaxPixels: opts.MaxPixels, MaxChunks: opts.MaxChunks}).
		WithWorkers(opts.Workers).
		WithCache(cache).
		WithRecorder(provider).
		WithLogger(logger)

	store := cubestore.NewMemoryStore(opts.CubeTTL, opts.CleanupInterval).
		OnChange(provider.SetCubesStored)
	logger.Info("initialized cube store", "ttl", opts.CubeTTL, "cleanup_interval", opts.CleanupInterval)

	var metricsHandler http.Handler
	if opts.Metrics {
		metricsHandler = provider.Handler()
	}

	handlers := api.NewHandlers(products, builder, store, logger)
	router := api.NewRouter(handlers, metricsHandler, logger)

	logger.Info("using STAC catalog", "url", opts.CatalogURL, "workers", opts.Workers, "cache_size", opts.CacheSize)

	return &Server{
		router: router,
		store:  store,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close stops background goroutines (cube expiry).
func (s *Server) Close() {
	if s.store != nil {
		s.store.Stop()
	}
}
