package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/config"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
)

const (
	heartbeatFloorMinutes = 1
	heartbeatSettle       = time.Second
)

// HeartbeatPlatform is what the heartbeat needs from the chat platform.
type HeartbeatPlatform interface {
	ResolveChannel(ctx context.Context, channelID string) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// HeartbeatConfig configures a Heartbeat.
type HeartbeatConfig struct {
	Agent          providers.Agent
	Platform       HeartbeatPlatform
	Sanitizer      *Sanitizer
	ChannelID      string
	CeilingMinutes int
	Probability    float64
	ActiveCron     string // empty = always active
	Prompt         string
}

// Heartbeat occasionally asks the agent for an unsolicited message.
// Every cycle redraws its delay, and the next cycle is only scheduled after
// the previous one's work has finished, so cycles never overlap.
type Heartbeat struct {
	agent     providers.Agent
	platform  HeartbeatPlatform
	channelID string
	prompt    string
	isDue     func(expr string, ref ...time.Time) (bool, error)

	mu          sync.Mutex
	sanitizer   *Sanitizer
	ceiling     int
	probability float64
	activeCron  string

	// test hooks
	rand   func() float64
	now    func() time.Time
	unit   time.Duration
	settle time.Duration
}

// NewHeartbeat creates a Heartbeat. Call Run to start it.
func NewHeartbeat(cfg HeartbeatConfig) *Heartbeat {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = defaultHeartbeatPrompt
	}
	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = NewSanitizer(config.SanitizeConfig{})
	}
	gron := gronx.New()
	return &Heartbeat{
		agent:       cfg.Agent,
		platform:    cfg.Platform,
		sanitizer:   sanitizer,
		channelID:   cfg.ChannelID,
		prompt:      prompt,
		isDue:       gron.IsDue,
		ceiling:     cfg.CeilingMinutes,
		probability: cfg.Probability,
		activeCron:  cfg.ActiveCron,
		rand:        rand.Float64,
		now:         time.Now,
		unit:        time.Minute,
		settle:      heartbeatSettle,
	}
}

// SetSchedule updates the tunable parameters; the current wait is not cut short.
func (h *Heartbeat) SetSchedule(ceilingMinutes int, probability float64, activeCron string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ceiling = ceilingMinutes
	h.probability = probability
	h.activeCron = activeCron
}

// SetSanitize swaps the emoji and length caps used for the next heartbeat.
func (h *Heartbeat) SetSanitize(cfg config.SanitizeConfig) {
	sanitizer := NewSanitizer(cfg)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sanitizer = sanitizer
}

func (h *Heartbeat) currentSanitizer() *Sanitizer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sanitizer
}

func (h *Heartbeat) schedule() (int, float64, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ceiling, h.probability, h.activeCron
}

// Run blocks until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	slog.Info("heartbeat started", "channel_id", h.channelID)
	for {
		delay := h.nextDelay()
		slog.Info("heartbeat scheduled", "in", delay)
		if !sleepCtx(ctx, delay) {
			slog.Info("heartbeat stopped")
			return
		}

		h.cycle(ctx)

		if !sleepCtx(ctx, h.settle) {
			slog.Info("heartbeat stopped")
			return
		}
	}
}

// nextDelay draws uniformly from [floor, ceiling) whole minutes.
func (h *Heartbeat) nextDelay() time.Duration {
	ceiling, _, _ := h.schedule()
	minutes := heartbeatFloorMinutes
	if ceiling > heartbeatFloorMinutes {
		minutes += int(h.rand() * float64(ceiling-heartbeatFloorMinutes))
	}
	return time.Duration(minutes) * h.unit
}

// cycle runs one firing decision. Reports whether a message was sent.
func (h *Heartbeat) cycle(ctx context.Context) bool {
	_, probability, activeCron := h.schedule()

	if activeCron != "" {
		due, err := h.isDue(activeCron, h.now())
		if err != nil {
			slog.Warn("heartbeat: invalid active_cron, ignoring window", "expr", activeCron, "error", err)
		} else if !due {
			slog.Debug("heartbeat: outside active window", "expr", activeCron)
			return false
		}
	}

	if h.rand() >= probability {
		slog.Info("heartbeat not triggered", "probability", probability)
		return false
	}

	ctx, span := tracer.Start(ctx, "heartbeat.fire")
	defer span.End()
	span.SetAttributes(attribute.String("channel_id", h.channelID))

	if err := h.platform.ResolveChannel(ctx, h.channelID); err != nil {
		slog.Warn("heartbeat: channel not available, message not sent", "channel_id", h.channelID, "error", err)
		return false
	}

	reply, err := h.agent.SendMessage(ctx, providers.MessageRequest{Role: "user", Text: h.prompt})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("heartbeat: agent call failed", "error", err)
		return false
	}

	text := h.currentSanitizer().Sanitize(reply)
	if text == "" {
		slog.Info("heartbeat: agent chose silence")
		return false
	}

	if err := h.platform.Send(ctx, bus.OutboundMessage{ChannelID: h.channelID, Content: text}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("heartbeat: send failed", "channel_id", h.channelID, "error", err)
		return false
	}
	slog.Info("heartbeat message sent", "channel_id", h.channelID, "len", len(text))
	return true
}
