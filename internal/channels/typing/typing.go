// Package typing keeps a platform "typing…" indicator alive while work is in
// flight. Platforms expire the indicator after a few seconds, so it has to be
// re-sent on an interval until the work finishes.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultKeepaliveInterval = 8 * time.Second
	DefaultMaxDuration       = 2 * time.Minute
)

// Options configures a Controller.
type Options struct {
	// MaxDuration auto-stops the indicator as a safety net.
	MaxDuration time.Duration
	// KeepaliveInterval is the gap between indicator sends.
	KeepaliveInterval time.Duration
	// StartFn sends one typing indicator.
	StartFn func() error
}

// Controller is a scoped typing indicator. Callers Start it and defer Stop,
// so every exit path releases the repeating timer.
type Controller struct {
	opts Options

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a Controller. It does nothing until Start.
func New(opts Options) *Controller {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	return &Controller{
		opts:   opts,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start sends the indicator immediately and then every KeepaliveInterval.
// Calling Start twice, or after Stop, is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped || c.opts.StartFn == nil {
		return
	}
	c.started = true
	go c.loop()
}

// Stop ends the keepalive loop and waits for it to exit. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	started := c.started
	c.mu.Unlock()

	if started {
		<-c.done
	}
}

func (c *Controller) loop() {
	defer close(c.done)

	c.send()

	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()
	ttl := time.NewTimer(c.opts.MaxDuration)
	defer ttl.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ttl.C:
			slog.Debug("typing indicator reached max duration", "max", c.opts.MaxDuration)
			return
		case <-ticker.C:
			c.send()
		}
	}
}

func (c *Controller) send() {
	if err := c.opts.StartFn(); err != nil {
		slog.Debug("typing indicator failed", "error", err)
	}
}
