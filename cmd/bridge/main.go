package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/bridge"
)

// Standalone runner for the purchase automation hand-off. Processes an
// exported shopping list without the full server, for reruns after a failed
// automation or for manual order placement.
func main() {
	var (
		file       = pflag.String("file", "", "shopping list JSON file to process (default: newest export)")
		exportDir  = pflag.String("export-dir", envOr("SHOPAGENT_BRIDGE_EXPORT_DIR", "./exports"), "directory holding shopping list exports")
		automation = pflag.String("automation", os.Getenv("SHOPAGENT_BRIDGE_AUTOMATION_PATH"), "automation endpoint URL or executable path")
		notify     = pflag.Bool("notify", false, "post the outcome to Slack")
		channel    = pflag.String("channel", os.Getenv("SHOPAGENT_SLACK_TARGET_CHANNEL_ID"), "Slack channel for the outcome notification")
	)
	pflag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var notifier bridge.Notifier
	if *notify {
		token := os.Getenv("SHOPAGENT_SLACK_BOT_TOKEN")
		if token == "" || *channel == "" {
			logger.Fatal("notifications need SHOPAGENT_SLACK_BOT_TOKEN and a channel")
		}
		notifier = bridge.NewSlackNotifier(token, *channel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(*exportDir, *automation, logger)
	if err := b.Process(ctx, *file, notifier); err != nil {
		logger.Error("bridge run failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("bridge run complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
