package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/channels"
	"github.com/nextlevelbuilder/lettabot/internal/channels/typing"
	"github.com/nextlevelbuilder/lettabot/internal/config"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
)

// ImageDeliverer sends image attachments and text to the agent.
type ImageDeliverer interface {
	Deliver(ctx context.Context, images []bus.Attachment, text, requesterID string) (string, error)
}

// ArrivalWaiter waits for late attachment metadata.
type ArrivalWaiter interface {
	Await(ctx context.Context, msg *bus.InboundMessage) (*bus.InboundMessage, bool)
}

// RelayConfig wires a Relay.
type RelayConfig struct {
	Platform       channels.Platform
	Agent          providers.Agent
	Delivery       ImageDeliverer
	Waiter         ArrivalWaiter
	Dedupe         *bus.DedupeCache
	Limiter        *channels.SenderLimiter // nil = unlimited
	CommandPrefix  string
	ChannelID      string // restricted channel, empty = all
	Respond        config.RespondConfig
	Sanitize       config.SanitizeConfig
	TypingInterval time.Duration
}

// runtimeSettings is the hot-reloadable part of the relay.
type runtimeSettings struct {
	respond   config.RespondConfig
	sanitizer *Sanitizer
}

// Relay is the single decision path for inbound messages: filter, wait for
// attachments, pick the image or text path, call the agent, reply.
type Relay struct {
	platform       channels.Platform
	agent          providers.Agent
	delivery       ImageDeliverer
	waiter         ArrivalWaiter
	dedupe         *bus.DedupeCache
	limiter        *channels.SenderLimiter
	classifier     *Classifier
	channelID      string
	typingInterval time.Duration

	settings atomic.Pointer[runtimeSettings]
}

// NewRelay creates a Relay. A nil Dedupe gets a default cache.
func NewRelay(cfg RelayConfig) *Relay {
	r := &Relay{
		platform:       cfg.Platform,
		agent:          cfg.Agent,
		delivery:       cfg.Delivery,
		waiter:         cfg.Waiter,
		dedupe:         cfg.Dedupe,
		limiter:        cfg.Limiter,
		classifier:     &Classifier{Fetcher: cfg.Platform, CommandPrefix: cfg.CommandPrefix},
		channelID:      cfg.ChannelID,
		typingInterval: cfg.TypingInterval,
	}
	if r.dedupe == nil {
		r.dedupe = bus.NewDedupeCache(bus.DefaultDedupeTTL)
	}
	r.ApplySettings(cfg.Respond, cfg.Sanitize)
	return r
}

// ApplySettings swaps the respond flags and sanitizer caps. In-flight
// messages keep the settings they started with.
func (r *Relay) ApplySettings(respond config.RespondConfig, sanitize config.SanitizeConfig) {
	r.settings.Store(&runtimeSettings{respond: respond, sanitizer: NewSanitizer(sanitize)})
}

// DedupeLen reports the number of remembered message ids.
func (r *Relay) DedupeLen() int {
	return r.dedupe.Len()
}

// HandleInbound processes one inbound message end to end. It matches
// channels.InboundHandler and is safe to call concurrently.
func (r *Relay) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	runID := "inbound-" + uuid.NewString()[:8]
	logger := slog.With("run_id", runID, "message_id", msg.ID, "channel_id", msg.ChannelID)

	ctx, span := tracer.Start(ctx, "relay.inbound")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("message_id", msg.ID),
		attribute.String("channel_id", msg.ChannelID),
	)

	settings := r.settings.Load()
	botID := r.platform.BotUserID()

	if r.channelID != "" && msg.ChannelID != r.channelID {
		logger.Debug("ignoring message outside the restricted channel")
		return
	}
	if r.dedupe.Seen(msg.ID) {
		logger.Debug("duplicate message delivery dropped")
		return
	}
	if reason := r.classifier.Ignore(&msg, botID, settings.respond); reason != "" {
		logger.Debug("message ignored", "reason", reason)
		return
	}
	if !r.limiter.Allow(msg.Author.ID) {
		logger.Warn("sender rate limited", "sender_id", msg.Author.ID)
		return
	}

	current := &msg
	if !current.HasImages() && strings.TrimSpace(current.Content) == "" && r.waiter != nil {
		if arrived, ok := r.waiter.Await(ctx, current); ok {
			current = arrived
		} else {
			logger.Debug("no attachments arrived, continuing with text path")
		}
	}

	if images := current.ImageAttachments(); len(images) > 0 {
		span.SetAttributes(attribute.String("path", "image"), attribute.Int("images", len(images)))
		r.handleImages(ctx, logger, settings, current, images)
		return
	}

	req, reason := r.classifier.Classify(ctx, current, botID, settings.respond)
	if req == nil {
		logger.Debug("message not addressed to the agent", "reason", reason)
		return
	}
	span.SetAttributes(attribute.String("path", "text"), attribute.String("kind", req.Kind.String()))
	logger.Info("inbound message", "kind", req.Kind.String(), "sender_id", current.Author.ID)

	reply, err := r.withTyping(ctx, current.ChannelID, func() (string, error) {
		return r.agent.SendMessage(ctx, req.AgentRequest())
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, providers.ErrMissingAgentID) {
			logger.Error("agent id is not configured", "error", err)
			r.surface(ctx, logger, settings, current, configErrorText)
			return
		}
		logger.Error("agent call failed", "error", err)
		r.surface(ctx, logger, settings, current, agentErrorText)
		return
	}
	r.reply(ctx, logger, settings, current, reply)
}

func (r *Relay) handleImages(ctx context.Context, logger *slog.Logger, settings *runtimeSettings, msg *bus.InboundMessage, images []bus.Attachment) {
	logger.Info("forwarding images to agent", "images", len(images), "sender_id", msg.Author.ID)

	reply, err := r.withTyping(ctx, msg.ChannelID, func() (string, error) {
		return r.delivery.Deliver(ctx, images, msg.Content, msg.Author.ID)
	})
	if err != nil {
		logger.Error("image delivery failed", "error", err)
		r.surface(ctx, logger, settings, msg, imageFailureText)
		return
	}
	r.reply(ctx, logger, settings, msg, reply)
}

// withTyping keeps the typing indicator alive while fn runs.
func (r *Relay) withTyping(ctx context.Context, channelID string, fn func() (string, error)) (string, error) {
	ctrl := typing.New(typing.Options{
		KeepaliveInterval: r.typingInterval,
		StartFn: func() error {
			return r.platform.SendTyping(ctx, channelID)
		},
	})
	ctrl.Start()
	defer ctrl.Stop()
	return fn()
}

func (r *Relay) reply(ctx context.Context, logger *slog.Logger, settings *runtimeSettings, msg *bus.InboundMessage, reply string) {
	text := settings.sanitizer.Sanitize(reply)
	if text == "" {
		logger.Info("agent returned no text, nothing sent")
		return
	}
	if err := r.platform.Reply(ctx, msg, text); err != nil {
		logger.Error("reply failed", "error", err)
		return
	}
	logger.Info("reply sent", "len", len(text))
}

// surface sends a fixed failure notice unless errors are kept silent.
func (r *Relay) surface(ctx context.Context, logger *slog.Logger, settings *runtimeSettings, msg *bus.InboundMessage, text string) {
	if !settings.respond.SurfaceErrors {
		return
	}
	if err := r.platform.Reply(ctx, msg, text); err != nil {
		logger.Error("failure notice not sent", "error", err)
	}
}
