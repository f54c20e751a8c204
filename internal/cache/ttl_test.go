package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLGetBeforeAndAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLWithClock(clock.Now)

	c.Set("health:acme", []byte(`{"score":90}`), 30*time.Second)

	clock.Advance(30*time.Second - time.Millisecond)
	if v, ok := c.Get("health:acme"); !ok || string(v) != `{"score":90}` {
		t.Fatalf("Get() just before expiry = %q, %v; want cached value", v, ok)
	}

	clock.Advance(2 * time.Millisecond)
	if _, ok := c.Get("health:acme"); ok {
		t.Fatal("Get() just after expiry should report absent")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped lazily, Len() = %d", c.Len())
	}
}

func TestTTLExpiresExactlyAtDeadline(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLWithClock(clock.Now)

	c.Set("k", []byte("v"), time.Second)
	clock.Advance(time.Second)

	if _, ok := c.Get("k"); ok {
		t.Error("entry must be absent once now >= expiresAt")
	}
}

func TestTTLSetNonPositiveIsNoop(t *testing.T) {
	c := NewTTL()

	c.Set("reevaluate:acme:1", []byte("x"), 0)
	c.Set("notify:acme:1", []byte("x"), -time.Second)

	if c.Len() != 0 {
		t.Errorf("Set() with ttl <= 0 stored %d entries, want 0", c.Len())
	}
}

func TestTTLSetOverwrites(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLWithClock(clock.Now)

	c.Set("k", []byte("old"), time.Second)
	c.Set("k", []byte("new"), time.Minute)
	clock.Advance(2 * time.Second)

	v, ok := c.Get("k")
	if !ok || string(v) != "new" {
		t.Errorf("Get() = %q, %v; want overwritten value with new ttl", v, ok)
	}
}

func TestTTLDeletePrefix(t *testing.T) {
	c := NewTTL()
	for _, k := range []string{"health:acme", "health:acme:detail", "health:acme2", "history:acme"} {
		c.Set(k, []byte(k), time.Hour)
	}

	removed := c.DeletePrefix("health:acme")
	if removed != 3 {
		t.Errorf("DeletePrefix() removed %d, want 3", removed)
	}

	if _, ok := c.Get("health:acme"); ok {
		t.Error("health:acme should be gone")
	}
	if _, ok := c.Get("history:acme"); !ok {
		t.Error("history:acme should survive")
	}
}

func TestTTLDeleteAndKeys(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLWithClock(clock.Now)

	c.Set("b", []byte("1"), time.Hour)
	c.Set("a", []byte("1"), time.Hour)
	c.Set("short", []byte("1"), time.Second)
	c.Delete("b")
	clock.Advance(2 * time.Second)

	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "a" {
		t.Errorf("Keys() = %v, want [a]", keys)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Clear() left %d entries", c.Len())
	}
}

func TestTTLConcurrentAccess(t *testing.T) {
	c := NewTTL()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			c.Set("devices:acme", []byte("x"), time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, _ = c.Get("devices:acme")
		}()
		go func() {
			defer wg.Done()
			c.DeletePrefix("devices:")
		}()
	}

	wg.Wait()
}

func TestTTLSetIfGenerationSkipsAfterRemoval(t *testing.T) {
	c := NewTTL()

	gen := c.Generation()
	if !c.SetIfGeneration("health:acme", []byte("v1"), time.Minute, gen) {
		t.Fatal("SetIfGeneration() refused an unchanged generation")
	}

	gen = c.Generation()
	c.Delete("devices:acme") // any removal counts, stored or not
	if c.SetIfGeneration("health:acme", []byte("stale"), time.Minute, gen) {
		t.Error("SetIfGeneration() stored a value read before a Delete")
	}
	if v, _ := c.Get("health:acme"); string(v) != "v1" {
		t.Errorf("Get() = %q, want v1", v)
	}

	for name, remove := range map[string]func(){
		"DeletePrefix": func() { c.DeletePrefix("alerts:") },
		"Clear":        c.Clear,
	} {
		gen := c.Generation()
		remove()
		if c.SetIfGeneration("k", []byte("x"), time.Minute, gen) {
			t.Errorf("%s did not advance the generation", name)
		}
	}

	if c.SetIfGeneration("k", []byte("x"), 0, c.Generation()) {
		t.Error("SetIfGeneration() with ttl 0 should store nothing")
	}
}
