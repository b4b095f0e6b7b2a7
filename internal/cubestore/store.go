// Package cubestore keeps built cubes in memory so that their chunks can be
// fetched by id.
package cubestore

import (
	"errors"
	"sync"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/cube"
)

// Sentinel errors for store operations.
var (
	ErrNotFound = errors.New("cube not found")
	ErrExpired  = errors.New("cube expired")
)

// Store defines how cubes are kept between requests.
type Store interface {
	// Put saves c under c.ID.
	Put(c *cube.Cube) error

	// Get returns the cube with id and extends its lifetime.
	Get(id string) (*cube.Cube, error)

	// Delete removes a cube. Deleting an unknown id is not an error.
	Delete(id string) error
}

type entry struct {
	cube      *cube.Cube
	expiresAt time.Time
}

// MemoryStore implements Store with in-memory storage and a sliding TTL.
// Cubes are lazy, so an entry holds the plan and not the pixels.
type MemoryStore struct {
	mu       sync.RWMutex
	cubes    map[string]entry
	ttl      time.Duration
	now      func() time.Time
	onChange func(n int)
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store whose entries expire ttl after their last
// access. Expired entries are swept every cleanupInterval.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		cubes:    make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// OnChange registers fn to receive the number of stored cubes after every
// change.
func (s *MemoryStore) OnChange(fn func(n int)) *MemoryStore {
	s.onChange = fn
	return s
}

// Put saves c.
func (s *MemoryStore) Put(c *cube.Cube) error {
	if c == nil || c.ID == "" {
		return errors.New("cube must have an id")
	}
	s.mu.Lock()
	s.cubes[c.ID] = entry{cube: c, expiresAt: s.now().Add(s.ttl)}
	n := len(s.cubes)
	s.mu.Unlock()

	s.notify(n)
	return nil
}

// Get returns the cube with id.
func (s *MemoryStore) Get(id string) (*cube.Cube, error) {
	s.mu.Lock()
	e, ok := s.cubes[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	now := s.now()
	if now.After(e.expiresAt) {
		delete(s.cubes, id)
		n := len(s.cubes)
		s.mu.Unlock()
		s.notify(n)
		return nil, ErrExpired
	}
	e.expiresAt = now.Add(s.ttl)
	s.cubes[id] = e
	s.mu.Unlock()
	return e.cube, nil
}

// Delete removes the cube with id.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.cubes, id)
	n := len(s.cubes)
	s.mu.Unlock()

	s.notify(n)
	return nil
}

// Len returns the number of stored cubes, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cubes)
}

// Stop stops the background cleanup goroutine.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

// cleanup removes all expired cubes.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for id, e := range s.cubes {
		if now.After(e.expiresAt) {
			delete(s.cubes, id)
			removed++
		}
	}
	n := len(s.cubes)
	s.mu.Unlock()

	if removed > 0 {
		s.notify(n)
	}
}

// Stats returns the number of cubes and the age of the least recently used
// one.
func (s *MemoryStore) Stats() (count int, idle time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count = len(s.cubes)
	if count == 0 {
		return 0, 0
	}
	var oldest time.Time
	for _, e := range s.cubes {
		last := e.expiresAt.Add(-s.ttl)
		if oldest.IsZero() || last.Before(oldest) {
			oldest = last
		}
	}
	return count, s.now().Sub(oldest)
}

func (s *MemoryStore) notify(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}
