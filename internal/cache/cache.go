// Package cache provides the best-effort dedup accelerator consulted ahead of
// the event ledger. Losing every entry changes load, never correctness.
package cache

import (
	"sync"
	"time"
)

// Key TTLs. Event keys outlive the provider's redelivery window; the
// order-scoped email key is longer because a second event id for the same
// logical payment can arrive much later.
const (
	EventTTL     = 24 * time.Hour
	PaidEmailTTL = 7 * 24 * time.Hour
)

// EventKey is the dedup key for a single provider event.
func EventKey(eventID string) string { return "event:" + eventID }

// PaidEmailKey is the order-scoped key guarding the confirmation email.
func PaidEmailKey(orderID string) string { return "order:paid_email:" + orderID }

type entry struct {
	expiresAt time.Time
}

// TTLCache is a process-local key set with per-key expiry.
type TTLCache struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

// New creates an empty cache.
func New() *TTLCache {
	return &TTLCache{m: make(map[string]entry), now: time.Now}
}

// Has reports whether key is present and unexpired. Expired entries are
// removed lazily.
func (c *TTLCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiresAt) {
		delete(c.m, key)
		return false
	}
	return true
}

// Set records key for ttl.
func (c *TTLCache) Set(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = entry{expiresAt: c.now().Add(ttl)}
}

// SetIfAbsent records key for ttl unless it is already present and unexpired.
// Returns true when this call claimed the key.
func (c *TTLCache) SetIfAbsent(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[key]; ok && !c.now().After(e.expiresAt) {
		return false
	}
	c.m[key] = entry{expiresAt: c.now().Add(ttl)}
	return true
}

// Len returns the number of entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Janitor evicts expired entries every interval until stop is closed.
func (c *TTLCache) Janitor(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			now := c.now()
			for k, e := range c.m {
				if now.After(e.expiresAt) {
					delete(c.m, k)
				}
			}
			c.mu.Unlock()
		case <-stop:
			return
		}
	}
}
