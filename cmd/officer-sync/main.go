// Command officer-sync runs sync jobs from the terminal. It talks to Discord with the
// same configuration as the server and prints events as newline-delimited JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/officer-sync/config"
	"github.com/onnwee/officer-sync/discord"
	"github.com/onnwee/officer-sync/syncjob"
	"github.com/onnwee/officer-sync/telemetry"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	_ = godotenv.Load()
	telemetry.ConfigureLogging(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		out:         os.Stdout,
		loadConfig:  config.Load,
		newUpstream: discordUpstream,
	}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func discordUpstream(cfg *config.Config) (syncjob.Upstream, error) {
	if err := cfg.ValidateDiscordReady(); err != nil {
		return nil, err
	}
	return discord.New(cfg.DiscordToken, cfg.DiscordTokenType, nil)
}
