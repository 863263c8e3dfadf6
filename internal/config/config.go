package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Discord snowflakes are often pasted as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Decode numbers as json.Number so 18-digit IDs keep every digit.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case json.Number:
			result = append(result, val.String())
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Duration is a time.Duration that reads and writes Go duration strings ("12s", "800ms").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %w", err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for lettabot.
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Letta     LettaConfig     `json:"letta"`
	Respond   RespondConfig   `json:"respond"`
	Sanitize  SanitizeConfig  `json:"sanitize"`
	Images    ImagesConfig    `json:"images"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// RespondConfig decides which inbound messages get an agent reply.
// All fields are safe to hot-reload.
type RespondConfig struct {
	DMs           bool `json:"dms"`            // reply to direct messages
	Mentions      bool `json:"mentions"`       // reply to @mentions and replies
	Bots          bool `json:"bots"`           // reply to other bots
	Generic       bool `json:"generic"`        // reply to any message in serviced channels
	SenderPrefix  bool `json:"sender_prefix"`  // inject "[name (id=..) ...]" into the text instead of the name field
	SurfaceErrors bool `json:"surface_errors"` // send an apology on internal failures (false = stay silent)
	RateLimitRPM  int  `json:"rate_limit_rpm"` // per-sender inbound limit, 0 = unlimited
}

// SanitizeConfig bounds outbound text.
type SanitizeConfig struct {
	MaxEmojis   int `json:"max_emojis"`    // total emoji tokens kept (default 5)
	MaxEmojiRun int `json:"max_emoji_run"` // identical adjacent emoji kept (default 3)
	MaxLength   int `json:"max_length"`    // characters (default 2000, Discord limit)
}

// ImagesConfig configures the image relay path.
type ImagesConfig struct {
	MaxBytes      int64    `json:"max_bytes"`       // remote per-image ceiling (default 5MB)
	FetchMaxBytes int64    `json:"fetch_max_bytes"` // download cap per attachment (default 25MB)
	WaitMax       Duration `json:"wait_max"`        // attachment arrival deadline (default 12s)
	WaitGrace     Duration `json:"wait_grace"`      // first re-check delay (default 800ms)
	WaitPoll      Duration `json:"wait_poll"`       // refetch interval (default 800ms)
}

// HeartbeatConfig configures the random unsolicited message timer.
type HeartbeatConfig struct {
	Enabled        bool    `json:"enabled"`
	CeilingMinutes int     `json:"ceiling_minutes"`       // delay drawn from [1, ceiling) minutes (default 15)
	Probability    float64 `json:"probability"`           // chance a cycle fires (default 0.1)
	ActiveCron     string  `json:"active_cron,omitempty"` // cron expression; fire only when it matches (empty = always)
	Prompt         string  `json:"prompt,omitempty"`      // custom heartbeat prompt
}

// GatewayConfig configures the health HTTP listener.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns host:port for net.Listen.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// TelemetryConfig configures OpenTelemetry export for traces.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "lettabot"
	Headers     map[string]string `json:"headers,omitempty"`
}
