package cache

import (
	"testing"
	"time"
)

func TestTTLCacheGetSet(t *testing.T) {
	backend, err := NewLRUBackend(8)
	if err != nil {
		t.Fatalf("NewLRUBackend() error = %v", err)
	}

	c := NewTTL[string](backend, time.Hour)
	c.Set("amoxicillin", "penicillin-class antibiotic")

	got, ok := c.Get("amoxicillin")
	if !ok {
		t.Fatal("Get() miss for freshly set key")
	}
	if got != "penicillin-class antibiotic" {
		t.Errorf("Get() = %q, want %q", got, "penicillin-class antibiotic")
	}

	if _, ok := c.Get("ibuprofen"); ok {
		t.Error("Get() hit for key never set")
	}
}

func TestTTLCacheLazyExpiry(t *testing.T) {
	backend, err := NewLRUBackend(8)
	if err != nil {
		t.Fatalf("NewLRUBackend() error = %v", err)
	}

	c := NewTTL[int](backend, time.Minute)
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("stock", 42)

	if _, ok := c.Get("stock"); !ok {
		t.Fatal("Get() miss before expiry")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := c.Get("stock"); ok {
		t.Error("Get() hit after TTL elapsed")
	}

	// Expired entries are removed, so a re-set starts a fresh window
	c.Set("stock", 7)
	got, ok := c.Get("stock")
	if !ok || got != 7 {
		t.Errorf("Get() after re-set = (%d, %v), want (7, true)", got, ok)
	}
}

func TestTTLCacheEviction(t *testing.T) {
	backend, err := NewLRUBackend(2)
	if err != nil {
		t.Fatalf("NewLRUBackend() error = %v", err)
	}

	c := NewTTL[string](backend, time.Hour)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry survived past LRU capacity")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry evicted unexpectedly")
	}
}
