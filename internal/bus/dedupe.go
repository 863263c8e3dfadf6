package bus

import (
	"sync"
	"time"
)

// DefaultDedupeTTL is how long a handled message ID is remembered.
const DefaultDedupeTTL = 60 * time.Second

// DedupeCache is a time-boxed set of already-handled message IDs.
// It absorbs duplicate deliveries of the same platform event within one process.
// Safe for concurrent use: the check and the insert happen under one lock.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time // id → expiry
	now     func() time.Time
}

// NewDedupeCache creates a cache whose entries expire after ttl.
// A non-positive ttl falls back to DefaultDedupeTTL.
func NewDedupeCache(ttl time.Duration) *DedupeCache {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &DedupeCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether id was already recorded and has not expired.
// The first call for an id records it and returns false; later calls return
// true without extending the expiry.
func (d *DedupeCache) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, k)
		}
	}

	if _, ok := d.entries[id]; ok {
		return true
	}
	d.entries[id] = now.Add(d.ttl)
	return false
}

// Len returns the number of live entries (expired ones may still be counted
// until the next Seen call sweeps them).
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
