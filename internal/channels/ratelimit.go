package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked senders so rotating ids
	// cannot grow the map without bound.
	maxTrackedKeys = 4096

	// idleWindow is how long a sender must be quiet before its bucket is
	// considered full again and can be pruned.
	idleWindow = 60 * time.Second
)

type senderEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SenderLimiter is a per-sender token bucket: rpm messages per minute with a
// burst of rpm. A nil limiter or rpm <= 0 allows everything.
// Safe for concurrent use.
type SenderLimiter struct {
	mu      sync.Mutex
	rpm     int
	entries map[string]*senderEntry
	now     func() time.Time
}

// NewSenderLimiter creates a bounded per-sender limiter.
func NewSenderLimiter(rpm int) *SenderLimiter {
	return &SenderLimiter{
		rpm:     rpm,
		entries: make(map[string]*senderEntry),
		now:     time.Now,
	}
}

// Allow reports whether key may send another message now.
func (r *SenderLimiter) Allow(key string) bool {
	if r == nil || r.rpm <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) >= idleWindow {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &senderEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.rpm)), r.rpm),
		}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked senders.
func (r *SenderLimiter) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
