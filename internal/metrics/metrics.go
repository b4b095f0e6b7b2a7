// Package metrics exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stac_cube"

// Provider owns the registry and every collector of the service.
type Provider struct {
	reg *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	tiles         prometheus.Histogram
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec
	nodeErrors    *prometheus.CounterVec
	rectifyFailed *prometheus.CounterVec
	catalogPages  prometheus.Counter
	cubesStored   prometheus.Gauge
}

// New creates a Provider with Go and process collectors registered.
func New(version string) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if version == "" {
		version = "dev"
	}
	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "app_build_info",
		Help: "Build info for this binary (value is always 1).",
	}, []string{"version"})
	build.WithLabelValues(version).Set(1)

	p := &Provider{
		reg: reg,
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Cube builds by outcome code.",
		}, []string{"product", "outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Time to search the catalog and describe a cube.",
			Buckets:   prometheus.DefBuckets,
		}),
		tiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_tiles",
			Help:      "Tiles feeding one cube after de-duplication.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_cache_hits_total",
			Help:      "Graph node evaluations served from the cache.",
		}, []string{"kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_cache_misses_total",
			Help:      "Graph node evaluations that had to be computed.",
		}, []string{"kind"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent in graph node functions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Graph node functions that returned an error.",
		}, []string{"kind"}),
		rectifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rectify_failures_total",
			Help:      "Tiles excluded from a mosaic because rectification failed.",
		}, []string{"variable"}),
		catalogPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_pages_total",
			Help:      "STAC search result pages fetched.",
		}),
		cubesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cubes_stored",
			Help:      "Cube handles currently held.",
		}),
	}
	reg.MustRegister(build, p.builds, p.buildDuration, p.tiles, p.cacheHits, p.cacheMisses,
		p.nodeDuration, p.nodeErrors, p.rectifyFailed, p.catalogPages, p.cubesStored)
	return p
}

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Registerer exposes the registry for additional collectors.
func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// ObserveBuild records one cube build.
func (p *Provider) ObserveBuild(product, outcome string, d time.Duration, tiles int) {
	if outcome == "" {
		outcome = "ok"
	}
	p.builds.WithLabelValues(product, outcome).Inc()
	p.buildDuration.Observe(d.Seconds())
	if tiles > 0 {
		p.tiles.Observe(float64(tiles))
	}
}

// CacheHit implements lazy.Observer.
func (p *Provider) CacheHit(kind string) { p.cacheHits.WithLabelValues(kind).Inc() }

// CacheMiss implements lazy.Observer.
func (p *Provider) CacheMiss(kind string) { p.cacheMisses.WithLabelValues(kind).Inc() }

// NodeDone implements lazy.Observer.
func (p *Provider) NodeDone(kind string, d time.Duration, err error) {
	p.nodeDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		p.nodeErrors.WithLabelValues(kind).Inc()
	}
}

// RectifyFailed implements rectify.FailureRecorder.
func (p *Provider) RectifyFailed(variable string) {
	p.rectifyFailed.WithLabelValues(variable).Inc()
}

// CatalogPage counts one fetched search page.
func (p *Provider) CatalogPage() { p.catalogPages.Inc() }

// SetCubesStored reports the size of the cube store.
func (p *Provider) SetCubesStored(n int) { p.cubesStored.Set(float64(n)) }
