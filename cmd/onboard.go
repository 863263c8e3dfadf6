package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/lettabot/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup: write a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(resolveConfigPath())
		},
	}
}

func runOnboard(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
	}

	probability := strconv.FormatFloat(cfg.Heartbeat.Probability, 'f', -1, 64)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Discord.Token).
				Validate(required("token")),
			huh.NewInput().
				Title("Discord channel ID").
				Description("Restrict the bot to one channel. Leave empty to serve every channel.").
				Value(&cfg.Discord.ChannelID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Letta API key").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Letta.APIKey),
			huh.NewInput().
				Title("Letta base URL").
				Value(&cfg.Letta.BaseURL).
				Validate(required("base URL")),
			huh.NewInput().
				Title("Letta agent ID").
				Value(&cfg.Letta.AgentID).
				Validate(required("agent ID")),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Reply to direct messages?").Value(&cfg.Respond.DMs),
			huh.NewConfirm().Title("Reply to mentions and replies?").Value(&cfg.Respond.Mentions),
			huh.NewConfirm().Title("Reply to every message in served channels?").Value(&cfg.Respond.Generic),
			huh.NewConfirm().Title("Enable the random heartbeat?").Value(&cfg.Heartbeat.Enabled),
			huh.NewInput().
				Title("Heartbeat firing probability").
				Value(&probability).
				Validate(validProbability),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Onboarding cancelled, nothing written.")
			return nil
		}
		return err
	}

	cfg.Heartbeat.Probability, _ = strconv.ParseFloat(strings.TrimSpace(probability), 64)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Config written to %s\n", cfgPath)
	fmt.Println("Run 'lettabot doctor' to verify, then 'lettabot' to start.")
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validProbability(s string) error {
	p, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if p < 0 || p > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}
