package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// entry is never mutated after creation; Set replaces it wholesale.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// TTL is an in-memory map from cache key to an expiring value.
// Expiry is evaluated on read only; nothing sweeps in the background.
//
// Every explicit removal (Delete, DeletePrefix, Clear) advances a
// generation. A writer that read the generation before starting its fetch
// commits with SetIfGeneration, so a value fetched before an invalidation
// is never stored after it.
type TTL struct {
	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64
	now        func() time.Time
}

// NewTTL creates an empty cache using the wall clock.
func NewTTL() *TTL {
	return NewTTLWithClock(time.Now)
}

// NewTTLWithClock creates an empty cache reading time from now.
func NewTTLWithClock(now func() time.Time) *TTL {
	return &TTL{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get returns the stored value when it has not expired yet.
func (c *TTL) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Before(e.expiresAt) {
		return e.value, true
	}

	// Lazily drop the stale entry, unless a fresher one replaced it meanwhile.
	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *TTL) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Generation returns the current invalidation generation.
func (c *TTL) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetIfGeneration stores value like Set, but only when no removal happened
// since gen was read. It reports whether the value was stored.
func (c *TTL) SetIfGeneration(key string, value []byte, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	return true
}

// Delete removes key and reports whether it was stored.
func (c *TTL) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeletePrefix removes every key starting with prefix and returns how many
// entries were dropped. Readers never observe a partially cleared prefix.
func (c *TTL) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *TTL) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.generation++
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included.
func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Keys returns the sorted keys of unexpired entries.
func (c *TTL) Keys() []string {
	now := c.now()

	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if now.Before(e.expiresAt) {
			keys = append(keys, key)
		}
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
