package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wetterklima/gridserver/internal/comparison"
	"github.com/wetterklima/gridserver/internal/config"
	"github.com/wetterklima/gridserver/internal/logger"
	"github.com/wetterklima/gridserver/internal/server"
	"github.com/wetterklima/gridserver/internal/users"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"   env:"LISTEN_ADDRESS" description:"Address to listen on"`
	Port       int    `short:"p" long:"port"   env:"LISTEN_PORT"    description:"Port to listen on"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}

	var userStore *users.Store
	if cfg.UserDB != "" {
		userStore, err = users.Open(cfg.UserDB)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.UserDB).Msg("Failed to open user database")
		}
		defer func() { _ = userStore.Close() }()
	} else {
		log.Warn().Msg("No user database configured, login disabled")
	}

	var comparisonStore *comparison.Store
	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		comparisonStore, err = comparison.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Annual comparison store unavailable")
			comparisonStore = nil
		} else {
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = comparisonStore.Close(closeCtx)
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, userStore, comparisonStore)

	log.Info().
		Str("addr", cfg.ListenAddr()).
		Str("datahub", cfg.DatahubRoot).
		Int("scan_workers", cfg.ScanWorkers).
		Str("scan_strategy", cfg.ScanStrategy).
		Msg("Web server started")

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
