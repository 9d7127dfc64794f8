package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"mxfleet/internal/agent"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)

	cfg, err := agent.ParseConfig(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}
	if cfg.Verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	sup := agent.NewSupervisor(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("agent supervisor error")
	}

	log.Info().Msg("agent shutdown complete")
}
