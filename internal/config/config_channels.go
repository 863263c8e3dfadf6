package config

import "time"

// DiscordConfig configures the Discord bot connection.
type DiscordConfig struct {
	Token         string              `json:"token"`
	ChannelID     string              `json:"channel_id,omitempty"`     // only service this channel (empty = all)
	AllowFrom     FlexibleStringSlice `json:"allow_from,omitempty"`     // sender allowlist (empty = everyone)
	CommandPrefix string              `json:"command_prefix,omitempty"` // messages starting with it are ignored (default "!")
}

// LettaConfig configures the remote agent service.
type LettaConfig struct {
	APIKey  string   `json:"api_key"`
	BaseURL string   `json:"base_url"`
	AgentID string   `json:"agent_id"`
	Stream  bool     `json:"stream"`  // use the streaming endpoint for text replies
	Timeout Duration `json:"timeout"` // per request (default 120s)
}

// RequestTimeout returns the configured timeout or the default.
func (l LettaConfig) RequestTimeout() time.Duration {
	if l.Timeout <= 0 {
		return 120 * time.Second
	}
	return l.Timeout.Std()
}
