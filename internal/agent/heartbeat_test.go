package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/lettabot/internal/config"
)

func newTestHeartbeat(agent *fakeAgent, platform *fakePlatform, prob float64, roll float64) *Heartbeat {
	h := NewHeartbeat(HeartbeatConfig{
		Agent:          agent,
		Platform:       platform,
		ChannelID:      "chan-1",
		CeilingMinutes: 15,
		Probability:    prob,
	})
	h.rand = func() float64 { return roll }
	h.now = func() time.Time { return time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC) }
	return h
}

func TestHeartbeat_NextDelayBounds(t *testing.T) {
	tests := []struct {
		name    string
		ceiling int
		roll    float64
		want    time.Duration
	}{
		{"low roll", 15, 0, time.Minute},
		{"high roll", 15, 0.9999, 14 * time.Minute},
		{"middle", 11, 0.5, 6 * time.Minute},
		{"ceiling at floor", 1, 0.9, time.Minute},
		{"ceiling unset", 0, 0.9, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHeartbeat(&fakeAgent{}, newFakePlatform(), 1, tt.roll)
			h.SetSchedule(tt.ceiling, 1, "")
			if got := h.nextDelay(); got != tt.want {
				t.Errorf("nextDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeartbeat_ProbabilityGate(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{reply: "hello"}}}
	platform := newFakePlatform()
	platform.channels["chan-1"] = true

	h := newTestHeartbeat(agent, platform, 0.1, 0.5)
	if h.cycle(context.Background()) {
		t.Fatal("cycle fired with roll above probability")
	}
	if len(agent.calls()) != 0 {
		t.Error("agent called on a skipped cycle")
	}
}

func TestHeartbeat_FiresAndSanitizes(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{reply: "good   morning 🔥🔥🔥🔥"}}}
	platform := newFakePlatform()
	platform.channels["chan-1"] = true

	h := newTestHeartbeat(agent, platform, 0.1, 0.05)
	if !h.cycle(context.Background()) {
		t.Fatal("cycle did not fire")
	}
	reqs := agent.calls()
	if len(reqs) != 1 || !strings.HasPrefix(reqs[0].Text, "[EVENT]") {
		t.Fatalf("agent requests = %+v", reqs)
	}
	if len(platform.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(platform.sent))
	}
	if got := platform.sent[0]; got.ChannelID != "chan-1" || got.Content != "good morning 🔥🔥🔥" {
		t.Errorf("sent = %+v", got)
	}
}

func TestHeartbeat_SetSanitize(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{reply: "morning 🔥🔥🔥"}, {reply: "morning 🔥🔥🔥"}}}
	platform := newFakePlatform()
	platform.channels["chan-1"] = true

	h := newTestHeartbeat(agent, platform, 1, 0)
	h.cycle(context.Background())
	h.SetSanitize(config.SanitizeConfig{MaxEmojis: 1})
	h.cycle(context.Background())

	if len(platform.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(platform.sent))
	}
	if got := platform.sent[0].Content; got != "morning 🔥🔥🔥" {
		t.Errorf("before reload = %q", got)
	}
	if got := platform.sent[1].Content; got != "morning 🔥" {
		t.Errorf("after reload = %q, want %q", got, "morning 🔥")
	}
}

func TestHeartbeat_UnresolvedChannelSkipsAgent(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{reply: "hello"}}}
	platform := newFakePlatform()

	h := newTestHeartbeat(agent, platform, 1, 0)
	if h.cycle(context.Background()) {
		t.Fatal("cycle reported a send without a channel")
	}
	if len(agent.calls()) != 0 {
		t.Error("agent called although the channel did not resolve")
	}
}

func TestHeartbeat_SilentReply(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{reply: "   "}}}
	platform := newFakePlatform()
	platform.channels["chan-1"] = true

	h := newTestHeartbeat(agent, platform, 1, 0)
	if h.cycle(context.Background()) || len(platform.sent) != 0 {
		t.Fatalf("sent %d messages for an empty reply", len(platform.sent))
	}
}

func TestHeartbeat_AgentError(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{err: errors.New("unavailable")}}}
	platform := newFakePlatform()
	platform.channels["chan-1"] = true

	h := newTestHeartbeat(agent, platform, 1, 0)
	if h.cycle(context.Background()) || len(platform.sent) != 0 {
		t.Fatal("sent a message after an agent error")
	}
}

func TestHeartbeat_ActiveWindow(t *testing.T) {
	tests := []struct {
		name string
		cron string
		want bool
	}{
		{"always", "* * * * *", true},
		{"inside business hours", "* 9-17 * * *", true},
		{"outside window", "* 2-4 * * *", false},
		{"invalid expression ignored", "not a cron", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &fakeAgent{results: []agentResult{{reply: "hi"}}}
			platform := newFakePlatform()
			platform.channels["chan-1"] = true

			h := newTestHeartbeat(agent, platform, 1, 0)
			h.SetSchedule(15, 1, tt.cron)
			if got := h.cycle(context.Background()); got != tt.want {
				t.Errorf("cycle = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeartbeat_RunStopsOnCancel(t *testing.T) {
	agent := &fakeAgent{results: []agentResult{{reply: "one"}, {reply: "two"}, {reply: "three"}}}
	platform := newFakePlatform()
	platform.channels["chan-1"] = true

	h := newTestHeartbeat(agent, platform, 1, 0)
	h.unit = time.Millisecond
	h.settle = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if len(agent.calls()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("heartbeat did not fire twice")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
