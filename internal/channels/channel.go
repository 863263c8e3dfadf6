// Package channels provides the platform abstraction the relay runs on.
// A Channel owns a connection to a chat platform and hands inbound messages
// to an InboundHandler; the Platform interface is the narrow set of calls the
// relay makes back into it (fetch, typing, reply, send).
package channels

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
)

// InboundHandler receives every allowed inbound message.
type InboundHandler func(ctx context.Context, msg bus.InboundMessage)

// Channel defines the lifecycle every platform connection must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// Platform is the set of operations the relay consumes from a chat platform.
type Platform interface {
	// BotUserID is the platform identity of this bot, known after Start.
	BotUserID() string

	// FetchMessage retrieves a message by id over the network.
	FetchMessage(ctx context.Context, channelID, messageID string) (*bus.InboundMessage, error)

	// CachedMessage looks a message up in local platform state without a
	// network call.
	CachedMessage(channelID, messageID string) (*bus.InboundMessage, bool)

	SendTyping(ctx context.Context, channelID string) error

	// Reply sends text as a reply to msg.
	Reply(ctx context.Context, msg *bus.InboundMessage, text string) error

	Send(ctx context.Context, msg bus.OutboundMessage) error

	// ResolveChannel checks that a channel exists and is reachable.
	ResolveChannel(ctx context.Context, channelID string) error
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	handler   InboundHandler
	running   atomic.Bool
	allowList []string
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, handler InboundHandler, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		handler:   handler,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if trimmed == "" {
			continue
		}
		if senderID == trimmed || idPart == trimmed || (userPart != "" && strings.EqualFold(userPart, trimmed)) {
			return true
		}
	}

	return false
}

// HandleMessage forwards msg to the handler if its author passes the allowlist.
// Returns false when the message was rejected.
func (c *BaseChannel) HandleMessage(ctx context.Context, msg bus.InboundMessage) bool {
	if !c.IsAllowed(msg.Author.ID + "|" + msg.Author.Username) {
		return false
	}
	if c.handler != nil {
		c.handler(ctx, msg)
	}
	return true
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
