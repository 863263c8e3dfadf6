package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
)

const (
	defaultWaitGrace = 800 * time.Millisecond
	defaultWaitPoll  = 800 * time.Millisecond
	defaultWaitMax   = 12 * time.Second
)

// AttachmentSource looks messages up again while attachments settle.
type AttachmentSource interface {
	// CachedMessage reads local platform state, no network.
	CachedMessage(channelID, messageID string) (*bus.InboundMessage, bool)
	FetchMessage(ctx context.Context, channelID, messageID string) (*bus.InboundMessage, error)
}

// AttachmentWaiter handles the platform emitting "message created" before the
// attachment metadata is attached server-side.
type AttachmentWaiter struct {
	Source  AttachmentSource
	Grace   time.Duration // before re-checking the original
	Poll    time.Duration // between refetches
	MaxWait time.Duration // measured from the start of Await
}

// NewAttachmentWaiter fills unset durations with defaults.
func NewAttachmentWaiter(src AttachmentSource, grace, poll, maxWait time.Duration) *AttachmentWaiter {
	if grace <= 0 {
		grace = defaultWaitGrace
	}
	if poll <= 0 {
		poll = defaultWaitPoll
	}
	if maxWait <= 0 {
		maxWait = defaultWaitMax
	}
	return &AttachmentWaiter{Source: src, Grace: grace, Poll: poll, MaxWait: maxWait}
}

// Await returns the message carrying image attachments and true, or the
// original message and false once MaxWait has elapsed or ctx is done.
// A timeout is not an error: the caller falls back to the text path.
func (w *AttachmentWaiter) Await(ctx context.Context, msg *bus.InboundMessage) (*bus.InboundMessage, bool) {
	if msg.HasImages() {
		return msg, true
	}
	if w.Source == nil {
		return msg, false
	}

	ctx, cancel := context.WithTimeout(ctx, w.MaxWait)
	defer cancel()

	if !sleepCtx(ctx, w.Grace) {
		return msg, false
	}
	if cached, ok := w.Source.CachedMessage(msg.ChannelID, msg.ID); ok && cached.HasImages() {
		slog.Debug("attachments appeared in cache", "message_id", msg.ID)
		return cached, true
	}

	for attempt := 1; ; attempt++ {
		if !sleepCtx(ctx, w.Poll) {
			slog.Debug("attachment wait timed out", "message_id", msg.ID, "polls", attempt-1)
			return msg, false
		}
		fresh, err := w.Source.FetchMessage(ctx, msg.ChannelID, msg.ID)
		if err != nil {
			slog.Debug("attachment poll fetch failed", "message_id", msg.ID, "attempt", attempt, "error", err)
			continue
		}
		if fresh != nil && fresh.HasImages() {
			slog.Debug("attachments appeared after refetch", "message_id", msg.ID, "attempt", attempt)
			return fresh, true
		}
	}
}

// sleepCtx waits for d or until ctx is done. Reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
