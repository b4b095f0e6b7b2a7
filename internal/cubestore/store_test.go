package cubestore

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/cube"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T) (*MemoryStore, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour, time.Hour)
	s.now = clk.now
	t.Cleanup(s.Stop)
	return s, clk
}

func TestPutGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	var counts []int
	s.OnChange(func(n int) { counts = append(counts, n) })

	c := &cube.Cube{ID: "cube-1", Product: "sentinel-2-l2a"}
	if err := s.Put(c); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get("cube-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != c {
		t.Error("Get() returned a different cube")
	}

	if err := s.Delete("cube-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get("cube-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete("cube-1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}

	if len(counts) < 2 || counts[0] != 1 || counts[1] != 0 {
		t.Errorf("OnChange counts = %v, want [1 0 ...]", counts)
	}
}

func TestPutRequiresID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Put(&cube.Cube{}); err == nil {
		t.Error("Put() without id succeeded")
	}
	if err := s.Put(nil); err == nil {
		t.Error("Put(nil) succeeded")
	}
}

func TestSlidingExpiry(t *testing.T) {
	s, clk := newTestStore(t)
	if err := s.Put(&cube.Cube{ID: "c"}); err != nil {
		t.Fatal(err)
	}

	clk.advance(50 * time.Minute)
	if _, err := s.Get("c"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}
	// The access above restarted the TTL.
	clk.advance(50 * time.Minute)
	if _, err := s.Get("c"); err != nil {
		t.Fatalf("Get() after touch error = %v", err)
	}

	clk.advance(61 * time.Minute)
	if _, err := s.Get("c"); !errors.Is(err, ErrExpired) {
		t.Errorf("Get() error = %v, want ErrExpired", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired read", s.Len())
	}
}

func TestCleanup(t *testing.T) {
	s, clk := newTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := s.Put(&cube.Cube{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	clk.advance(30 * time.Minute)
	if err := s.Put(&cube.Cube{ID: "c"}); err != nil {
		t.Fatal(err)
	}

	count, idle := s.Stats()
	if count != 3 || idle != 30*time.Minute {
		t.Errorf("Stats() = %d, %v; want 3, 30m", count, idle)
	}

	clk.advance(45 * time.Minute)
	s.cleanup()
	if s.Len() != 1 {
		t.Errorf("Len() = %d after cleanup, want 1", s.Len())
	}
	if _, err := s.Get("c"); err != nil {
		t.Errorf("Get(c) error = %v", err)
	}
}
