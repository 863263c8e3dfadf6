package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/lettabot/internal/agent"
	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/channels"
	"github.com/nextlevelbuilder/lettabot/internal/channels/discord"
	"github.com/nextlevelbuilder/lettabot/internal/config"
	"github.com/nextlevelbuilder/lettabot/internal/gateway"
	"github.com/nextlevelbuilder/lettabot/internal/media"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
	"github.com/nextlevelbuilder/lettabot/internal/tracing"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the Discord relay (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Discord.Token == "" {
		slog.Error("discord token missing: set DISCORD_TOKEN or run 'lettabot onboard'")
		os.Exit(1)
	}
	if cfg.Letta.AgentID == "" {
		slog.Warn("letta agent id is not configured, every message will get the configuration notice")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("otel tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("otel flush failed", "error", err)
		}
	}()

	letta := providers.NewLettaClient(cfg.Letta.APIKey, cfg.Letta.AgentID,
		providers.WithBaseURL(cfg.Letta.BaseURL),
		providers.WithStreaming(cfg.Letta.Stream),
		providers.WithHTTPClient(&http.Client{Timeout: cfg.Letta.RequestTimeout()}),
	)

	delivery := agent.NewDeliveryPipeline(agent.DeliveryConfig{
		Agent:      letta,
		Fetcher:    media.NewFetcher(cfg.Images.FetchMaxBytes),
		Compressor: media.NewCompressor(),
		MaxBytes:   cfg.Images.MaxBytes,
	})

	// The relay needs the platform and the platform needs the relay's
	// handler, so the handler is bound after both exist.
	var relay *agent.Relay
	dc, err := discord.New(cfg.Discord, func(ctx context.Context, msg bus.InboundMessage) {
		relay.HandleInbound(ctx, msg)
	})
	if err != nil {
		slog.Error("failed to create discord channel", "error", err)
		os.Exit(1)
	}

	relay = agent.NewRelay(agent.RelayConfig{
		Platform: dc,
		Agent:    letta,
		Delivery: delivery,
		Waiter: agent.NewAttachmentWaiter(dc,
			cfg.Images.WaitGrace.Std(), cfg.Images.WaitPoll.Std(), cfg.Images.WaitMax.Std()),
		Dedupe:        bus.NewDedupeCache(bus.DefaultDedupeTTL),
		Limiter:       channels.NewSenderLimiter(cfg.Respond.RateLimitRPM),
		CommandPrefix: cfg.Discord.CommandPrefix,
		ChannelID:     cfg.Discord.ChannelID,
		Respond:       cfg.Respond,
		Sanitize:      cfg.Sanitize,
	})

	channelMgr := channels.NewManager()
	channelMgr.RegisterChannel(dc.Name(), dc)
	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	var heartbeat *agent.Heartbeat
	if cfg.Heartbeat.Enabled {
		if cfg.Discord.ChannelID == "" {
			slog.Warn("heartbeat enabled but discord.channel_id is empty, heartbeat disabled")
		} else {
			heartbeat = agent.NewHeartbeat(agent.HeartbeatConfig{
				Agent:          letta,
				Platform:       dc,
				Sanitizer:      agent.NewSanitizer(cfg.Sanitize),
				ChannelID:      cfg.Discord.ChannelID,
				CeilingMinutes: cfg.Heartbeat.CeilingMinutes,
				Probability:    cfg.Heartbeat.Probability,
				ActiveCron:     cfg.Heartbeat.ActiveCron,
				Prompt:         cfg.Heartbeat.Prompt,
			})
			go heartbeat.Run(ctx)
		}
	}

	// Hot reload: respond flags, sanitizer caps (relay and heartbeat) and heartbeat schedule.
	if watcher, err := config.NewWatcher(cfgPath, cfg, func(next *config.Config) {
		relay.ApplySettings(next.Respond, next.Sanitize)
		if heartbeat != nil {
			heartbeat.SetSchedule(next.Heartbeat.CeilingMinutes, next.Heartbeat.Probability, next.Heartbeat.ActiveCron)
			heartbeat.SetSanitize(next.Sanitize)
		}
		slog.Info("config reloaded", "path", cfgPath)
	}); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		channelMgr.StopAll(context.Background())
		cancel()
	}()

	slog.Info("lettabot starting",
		"version", Version,
		"agent_id", cfg.Letta.AgentID,
		"stream", cfg.Letta.Stream,
		"channel_id", cfg.Discord.ChannelID,
		"heartbeat", heartbeat != nil,
		"channels", channelMgr.GetEnabledChannels(),
	)

	server := gateway.NewServer(cfg.Gateway, channelMgr, relay, Version)
	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		cancel()
		channelMgr.StopAll(context.Background())
		return
	}
	slog.Info("lettabot stopped")
}
