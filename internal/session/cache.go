// Package session implements the time-bounded call session cache.
//
// An inbound call-start webhook stores the caller's number under the call's
// conversation id; the notifier retrieves it once the pipeline has composed a
// message. Entries expire after a fixed TTL — an expired or never-created
// entry is a cache miss, which is a normal outcome, not an error.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// entry is one cached caller number with its expiry deadline.
type entry struct {
	fromNumber string
	expiresAt  time.Time
}

// Cache maps conversation ids to caller numbers with a fixed TTL.
// All methods are safe for concurrent use. Expired entries become
// unreachable immediately; the sweeper only reclaims their memory.
type Cache struct {
	ttl   time.Duration
	sweep time.Duration

	now func() time.Time // injectable clock for tests

	mu      sync.Mutex
	entries map[string]entry
}

// Option is a functional option for configuring a [Cache].
type Option func(*Cache)

// WithClock replaces the cache's time source. Tests use this to advance time
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache whose entries live for ttl and whose sweeper runs every
// sweepInterval. Non-positive values fall back to 60s and 100s respectively.
func New(ttl, sweepInterval time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 100 * time.Second
	}
	c := &Cache{
		ttl:     ttl,
		sweep:   sweepInterval,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Put stores fromNumber under conversationID with a fresh TTL. A later Put
// for the same id overwrites the earlier one.
func (c *Cache) Put(conversationID, fromNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conversationID] = entry{
		fromNumber: fromNumber,
		expiresAt:  c.now().Add(c.ttl),
	}
}

// Get returns the caller number stored under conversationID. The second
// return value is false when the entry is absent or has expired.
func (c *Cache) Get(conversationID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[conversationID]
	if !ok || c.now().After(e.expiresAt) {
		return "", false
	}
	return e.fromNumber, true
}

// Take returns the caller number like [Cache.Get] and removes the entry.
// The notifier uses Take so that a session is consumed by its one SMS.
func (c *Cache) Take(conversationID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[conversationID]
	if !ok {
		return "", false
	}
	delete(c.entries, conversationID)
	if c.now().After(e.expiresAt) {
		return "", false
	}
	return e.fromNumber, true
}

// Len returns the number of entries currently held, including expired ones
// the sweeper has not yet removed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps expired entries on the configured interval until ctx is
// cancelled. It always returns nil so it can run directly under an errgroup.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := c.removeExpired(); removed > 0 {
				slog.Debug("session cache sweep", "removed", removed, "remaining", c.Len())
			}
		}
	}
}

// removeExpired deletes all entries past their deadline and reports how many
// were removed.
func (c *Cache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}
