package lazy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Observer receives engine events. All methods must be safe for concurrent
// use.
type Observer interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	NodeDone(kind string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)                       {}
func (nopObserver) CacheMiss(string)                      {}
func (nopObserver) NodeDone(string, time.Duration, error) {}

// Options configures an Engine.
type Options struct {
	// Namespace scopes cache keys, typically the cube id.
	Namespace string
	// Workers bounds the number of node functions running at once.
	Workers  int
	Cache    *Cache
	Observer Observer
	Logger   *slog.Logger
}

type call struct {
	done chan struct{}
	val  any
	err  error
}

// Engine evaluates nodes of a Graph. Dependencies are evaluated in parallel,
// results are memoised in the cache and concurrent requests for the same
// node share one evaluation.
type Engine struct {
	graph    *Graph
	ns       string
	cache    *Cache
	sem      chan struct{}
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

// NewEngine creates an engine over g.
func NewEngine(g *Graph, opts Options) (*Engine, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Cache == nil {
		c, err := NewCache(DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		opts.Cache = c
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		graph:    g,
		ns:       opts.Namespace,
		cache:    opts.Cache,
		sem:      make(chan struct{}, opts.Workers),
		observer: opts.Observer,
		logger:   opts.Logger,
		inflight: make(map[string]*call),
	}, nil
}

// Compute evaluates node id and everything it depends on.
func (e *Engine) Compute(ctx context.Context, id string) (any, error) {
	n, err := e.graph.get(id)
	if err != nil {
		return nil, err
	}
	return e.compute(ctx, n)
}

// ComputeAll evaluates several nodes in parallel and returns their values in
// the order of ids.
func (e *Engine) ComputeAll(ctx context.Context, ids []string) ([]any, error) {
	out := make([]any, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			v, err := e.Compute(gctx, id)
			out[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) compute(ctx context.Context, n *node) (any, error) {
	key := Key(e.ns, n.ID)
	if v, ok := e.cache.get(key); ok {
		e.observer.CacheHit(n.Kind)
		return v, nil
	}

	e.mu.Lock()
	if c, ok := e.inflight[n.ID]; ok {
		e.mu.Unlock()
		select {
		case <-c.done:
			// The evaluation ran under another caller's context. If that
			// caller went away, start over under ours.
			if abandoned(c.err) && ctx.Err() == nil {
				return e.compute(ctx, n)
			}
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// A concurrent evaluation may have finished since the first lookup.
	if v, ok := e.cache.get(key); ok {
		e.mu.Unlock()
		e.observer.CacheHit(n.Kind)
		return v, nil
	}
	c := &call{done: make(chan struct{})}
	e.inflight[n.ID] = c
	e.mu.Unlock()

	e.observer.CacheMiss(n.Kind)
	c.val, c.err = e.run(ctx, n)
	if c.err == nil {
		e.cache.add(key, c.val)
	}

	e.mu.Lock()
	delete(e.inflight, n.ID)
	e.mu.Unlock()
	close(c.done)
	return c.val, c.err
}

// abandoned reports whether err stems from a cancelled or expired context.
func abandoned(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) run(ctx context.Context, n *node) (any, error) {
	deps := make([]any, len(n.deps))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range n.deps {
		g.Go(func() error {
			v, err := e.compute(gctx, d)
			deps[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	start := time.Now()
	v, err := n.Fn(ctx, deps)
	e.observer.NodeDone(n.Kind, time.Since(start), err)
	if err != nil {
		e.logger.Debug("node failed",
			slog.String("node", n.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", n.ID, err)
	}
	return v, nil
}
