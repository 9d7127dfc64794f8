package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"mxfleet/internal/agent"
	"mxfleet/internal/controller"
)

const (
	controllerPubkeyPath  = "/var/lib/mxfleet/controller.pub"
	controllerPrivkeyPath = "/var/lib/mxfleet/controller-ed25519.key"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)

	cfg, err := controller.ParseConfig(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}
	if cfg.Verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	if cfg.GenerateCert {
		if err := controller.GenerateSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, nil); err != nil {
			log.Fatal().Err(err).Msg("failed to generate self-signed certificate")
		}
		log.Info().Str("cert", cfg.TLSCertPath).Str("key", cfg.TLSKeyPath).Msg("generated self-signed certificate")
		return
	}

	_, privkey, generated, err := agent.LoadOrGenerateKeypair(controllerPubkeyPath, controllerPrivkeyPath)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load or generate controller keypair, connections will be unsigned")
	} else if generated {
		log.Info().Str("path", controllerPubkeyPath).Msg("generated new controller keypair")
	}

	state, err := controller.NewState(cfg, log, privkey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize controller state")
	}

	srv := controller.NewServer(state)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("controller shutdown complete")
}
