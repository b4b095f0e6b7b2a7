// Package lazy is a small task-graph engine: nodes describe deferred
// computations and an Engine evaluates them on demand, in parallel, with
// memoised results.
package lazy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Func computes a node from the values of its dependencies, given in the
// order they were declared. A nil value means "absent" and is valid.
type Func func(ctx context.Context, deps []any) (any, error)

// Node is one deferred computation.
type Node struct {
	ID   string
	Kind string
	Deps []string
	Fn   Func
}

// ErrNodeNotFound is returned for unknown node ids.
var ErrNodeNotFound = errors.New("node not found")

type node struct {
	Node
	deps []*node
}

// Graph is a DAG of nodes. Dependencies must be added before their
// dependents, which rules out cycles by construction.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Add inserts n. Adding an id that already exists is a no-op, which lets
// callers share nodes between dependents without bookkeeping.
func (g *Graph) Add(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	if n.Fn == nil {
		return fmt.Errorf("node %s has no function", n.ID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[n.ID]; ok {
		return nil
	}
	deps := make([]*node, len(n.Deps))
	for i, id := range n.Deps {
		d, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("node %s depends on %s: %w", n.ID, id, ErrNodeNotFound)
		}
		deps[i] = d
	}
	n.Deps = append([]string(nil), n.Deps...)
	g.nodes[n.ID] = &node{Node: n, deps: deps}
	return nil
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Deps returns the dependency ids of id in declaration order.
func (g *Graph) Deps(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNodeNotFound)
	}
	return append([]string(nil), n.Deps...), nil
}

// Kinds counts nodes per kind.
func (g *Graph) Kinds() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int)
	for _, n := range g.nodes {
		out[n.Kind]++
	}
	return out
}

// IDs returns every node id, sorted.
func (g *Graph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) get(id string) (*node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNodeNotFound)
	}
	return n, nil
}
