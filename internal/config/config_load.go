package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/titanous/json5"
)

// DefaultLettaBaseURL is the hosted Letta API.
const DefaultLettaBaseURL = "https://api.letta.com"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			CommandPrefix: "!",
		},
		Letta: LettaConfig{
			BaseURL: DefaultLettaBaseURL,
			Stream:  true,
			Timeout: Duration(120 * time.Second),
		},
		Respond: RespondConfig{
			SurfaceErrors: true,
		},
		Sanitize: SanitizeConfig{
			MaxEmojis:   5,
			MaxEmojiRun: 3,
			MaxLength:   2000,
		},
		Images: ImagesConfig{
			MaxBytes:      5 * 1024 * 1024,
			FetchMaxBytes: 25 * 1024 * 1024,
			WaitMax:       Duration(12 * time.Second),
			WaitGrace:     Duration(800 * time.Millisecond),
			WaitPoll:      Duration(800 * time.Millisecond),
		},
		Heartbeat: HeartbeatConfig{
			CeilingMinutes: 15,
			Probability:    0.1,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 3001,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. Names follow the deployment
// variables the bot has always used (DISCORD_TOKEN, LETTA_AGENT_ID, ...).
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	// Discord
	envStr("DISCORD_TOKEN", &c.Discord.Token)
	envStr("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)

	// Letta
	envStr("LETTA_TOKEN", &c.Letta.APIKey)
	envStr("LETTA_API_KEY", &c.Letta.APIKey)
	envStr("LETTA_BASE_URL", &c.Letta.BaseURL)
	envStr("LETTA_AGENT_ID", &c.Letta.AgentID)
	envBool("LETTA_STREAM", &c.Letta.Stream)

	// Response policy
	envBool("RESPOND_TO_DMS", &c.Respond.DMs)
	envBool("RESPOND_TO_MENTIONS", &c.Respond.Mentions)
	envBool("RESPOND_TO_BOTS", &c.Respond.Bots)
	envBool("RESPOND_TO_GENERIC", &c.Respond.Generic)
	envBool("LETTA_USE_SENDER_PREFIX", &c.Respond.SenderPrefix)
	envBool("SURFACE_ERRORS", &c.Respond.SurfaceErrors)
	envInt("RATE_LIMIT_RPM", &c.Respond.RateLimitRPM)

	// Sanitizer
	envInt("MAX_EMOJIS", &c.Sanitize.MaxEmojis)
	envInt("MAX_EMOJI_RUN", &c.Sanitize.MaxEmojiRun)

	// Images
	if v := os.Getenv("IMAGE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Images.MaxBytes = n
		}
	}

	// Heartbeat timer
	envBool("ENABLE_TIMER", &c.Heartbeat.Enabled)
	envInt("TIMER_INTERVAL_MINUTES", &c.Heartbeat.CeilingMinutes)
	envFloat("FIRING_PROBABILITY", &c.Heartbeat.Probability)
	envStr("HEARTBEAT_ACTIVE_CRON", &c.Heartbeat.ActiveCron)

	// Health listener
	envStr("LETTABOT_HOST", &c.Gateway.Host)
	envInt("PORT", &c.Gateway.Port)

	// Telemetry
	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("LETTABOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envBool("LETTABOT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("LETTABOT_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
	if c.Telemetry.Endpoint != "" && os.Getenv("LETTABOT_TELEMETRY_ENABLED") == "" {
		c.Telemetry.Enabled = true
	}
}

// Validate rejects values the relay cannot run with.
func (c *Config) Validate() error {
	if c.Heartbeat.Probability < 0 || c.Heartbeat.Probability > 1 {
		return fmt.Errorf("heartbeat.probability must be within [0, 1], got %v", c.Heartbeat.Probability)
	}
	if c.Heartbeat.CeilingMinutes < 1 {
		return fmt.Errorf("heartbeat.ceiling_minutes must be >= 1, got %d", c.Heartbeat.CeilingMinutes)
	}
	if expr := strings.TrimSpace(c.Heartbeat.ActiveCron); expr != "" {
		gron := gronx.New()
		if !gron.IsValid(expr) {
			return fmt.Errorf("heartbeat.active_cron: invalid cron expression %q", expr)
		}
	}
	if c.Images.MaxBytes <= 0 {
		return fmt.Errorf("images.max_bytes must be positive")
	}
	if c.Images.FetchMaxBytes < c.Images.MaxBytes {
		return fmt.Errorf("images.fetch_max_bytes (%d) must be >= images.max_bytes (%d)", c.Images.FetchMaxBytes, c.Images.MaxBytes)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be \"grpc\" or \"http\", got %q", c.Telemetry.Protocol)
	}
	return nil
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
