package cache

import (
	"testing"
	"time"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b was least recently used and should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	now = now.Add(time.Hour)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("CleanExpired() = %d, want 2", n)
	}
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("book:1:acct:5:2025-01", 1)
	c.Set("book:1:acct:5:2025-02", 2)
	c.Set("book:12:acct:5:2025-01", 3)

	if n := c.DeletePrefix("book:1:"); n != 2 {
		t.Fatalf("DeletePrefix() = %d, want 2", n)
	}
	if _, ok := c.Get("book:12:acct:5:2025-01"); !ok {
		t.Fatal("other book must survive")
	}
}

func TestLRUCache_ZeroTTLDisables(t *testing.T) {
	c := NewLRUCache[int](10, 0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatal("zero TTL should not cache")
	}
}

func TestManager_CleanNowAndStop(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Hour)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("CleanNow() = %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
