package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/lettabot/internal/config"
	"github.com/nextlevelbuilder/lettabot/internal/media"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
)

const doctorLabelWidth = 14

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("lettabot doctor")
	printRow("Version:", Version)
	printRow("OS:", runtime.GOOS+"/"+runtime.GOARCH)
	printRow("Go:", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	status := "OK"
	if _, err := os.Stat(cfgPath); err != nil {
		status = "NOT FOUND, using defaults and env"
	}
	printRow("Config:", fmt.Sprintf("%s (%s)", cfgPath, status))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Discord:")
	printSecret("Token:", cfg.Discord.Token)
	printRow("Channel:", orNone(cfg.Discord.ChannelID, "(all channels)"))
	printRow("Allowlist:", orNone(strings.Join(cfg.Discord.AllowFrom, ", "), "(everyone)"))

	fmt.Println()
	fmt.Println("  Letta:")
	printSecret("API key:", cfg.Letta.APIKey)
	printRow("Base URL:", cfg.Letta.BaseURL)
	printRow("Agent:", orNone(cfg.Letta.AgentID, "(not configured)"))
	if cfg.Letta.AgentID != "" {
		client := providers.NewLettaClient(cfg.Letta.APIKey, cfg.Letta.AgentID,
			providers.WithBaseURL(cfg.Letta.BaseURL),
			providers.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.Ping(ctx); err != nil {
			printRow("Reachable:", fmt.Sprintf("FAILED (%s)", err))
		} else {
			printRow("Reachable:", "OK")
		}
		cancel()
	}

	fmt.Println()
	fmt.Println("  Responding to:")
	printRow("DMs:", onOff(cfg.Respond.DMs))
	printRow("Mentions:", onOff(cfg.Respond.Mentions))
	printRow("Bots:", onOff(cfg.Respond.Bots))
	printRow("Generic:", onOff(cfg.Respond.Generic))

	fmt.Println()
	fmt.Println("  Images:")
	for _, codec := range []media.Codec{media.WebPCodec{}, media.JPEGCodec{}} {
		printRow(codec.Name()+":", checkCodec(codec))
	}

	fmt.Println()
	fmt.Println("  Heartbeat:")
	printRow("Enabled:", onOff(cfg.Heartbeat.Enabled))
	if cfg.Heartbeat.Enabled {
		printRow("Ceiling:", fmt.Sprintf("%d min", cfg.Heartbeat.CeilingMinutes))
		printRow("Probability:", fmt.Sprintf("%.2f", cfg.Heartbeat.Probability))
		if expr := cfg.Heartbeat.ActiveCron; expr != "" {
			gron := gronx.New()
			due, err := gron.IsDue(expr)
			switch {
			case err != nil:
				printRow("Window:", fmt.Sprintf("%s (INVALID: %s)", expr, err))
			case due:
				printRow("Window:", expr+" (active now)")
			default:
				printRow("Window:", expr+" (inactive now)")
			}
		}
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

// printRow pads by display width so labels with wide runes stay aligned.
func printRow(label, value string) {
	fmt.Printf("    %s %s\n", runewidth.FillRight(label, doctorLabelWidth), value)
}

func printSecret(label, secret string) {
	if secret == "" {
		printRow(label, "(not configured)")
		return
	}
	printRow(label, maskSecret(secret))
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func orNone(v, none string) string {
	if v == "" {
		return none
	}
	return v
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// checkCodec encodes a small test image to confirm the codec works in this build.
func checkCodec(codec media.Codec) string {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, img, 50); err != nil {
		return fmt.Sprintf("FAILED (%s)", err)
	}
	return fmt.Sprintf("OK (%s)", codec.MediaType())
}
