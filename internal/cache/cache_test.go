package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int64], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewLRUCache[int64](size, ttl).WithClock(clock.now), clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get() on empty cache returned ok")
	}
	c.Set("account|expense|Expenses - Food", 7)
	c.Set("account|expense|Expenses - Food", 8)
	if got, ok := c.Get("account|expense|Expenses - Food"); !ok || got != 8 {
		t.Errorf("Get() = %d, %v, want 8, true", got, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}

	c.Delete("account|expense|Expenses - Food")
	if _, ok := c.Get("account|expense|Expenses - Food"); ok {
		t.Error("Get() after Delete returned ok")
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to be kept", key)
		}
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(8, time.Minute)

	c.Set("old", 1)
	clock.advance(45 * time.Second)
	c.Set("new", 2)
	clock.advance(30 * time.Second)

	if _, ok := c.Get("old"); ok {
		t.Error("expected old entry to be expired")
	}
	if got, ok := c.Get("new"); !ok || got != 2 {
		t.Errorf("Get(new) = %d, %v, want 2, true", got, ok)
	}

	clock.advance(time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired() = %d, want 1", removed)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Purge(t *testing.T) {
	c, _ := newTestCache(8, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d, want 0", c.Size())
	}
	c.Set("c", 3)
	if got, ok := c.Get("c"); !ok || got != 3 {
		t.Errorf("Get(c) after Purge = %d, %v", got, ok)
	}
}

func TestManager_Sweep(t *testing.T) {
	accounts, clock := newTestCache(8, time.Minute)
	categories := NewLRUCache[int64](8, time.Hour).WithClock(clock.now)

	m := NewManager()
	m.Register("accounts", accounts)
	m.Register("categories", categories)

	accounts.Set("a", 1)
	accounts.Set("b", 2)
	categories.Set("c", 3)
	clock.advance(2 * time.Minute)

	removed := m.Sweep(context.Background())
	if removed["accounts"] != 2 {
		t.Errorf("removed[accounts] = %d, want 2", removed["accounts"])
	}
	if _, ok := removed["categories"]; ok {
		t.Errorf("categories should not report removals: %v", removed)
	}
	if categories.Size() != 1 {
		t.Errorf("categories Size() = %d, want 1", categories.Size())
	}
}

func TestManager_StartStop(t *testing.T) {
	c := NewLRUCache[int64](8, time.Nanosecond)
	c.Set("a", 1)

	m := NewManager()
	m.Register("ids", c)
	m.StartCleanup(context.Background(), time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after cleanup", c.Size())
	}
}
