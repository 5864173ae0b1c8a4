package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/assessor"
	"github.com/seanblong/reporubric/internal/config"
	"github.com/seanblong/reporubric/internal/source"
	"github.com/seanblong/reporubric/internal/store"
	"github.com/spf13/pflag"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Create flagset for configuration
	fs := pflag.NewFlagSet("reporubric-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s': %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Bool("strict", cfg.Strict).Msg("starting reporubric api")

	ctx := context.Background()
	svc, closeStore, err := assessor.Setup(ctx, cfg, source.NewGitHub(cfg.GithubToken))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer closeStore()

	srv := &server{svc: svc}
	if pg, ok := svc.Store.(*store.Store); ok {
		srv.ping = pg.Ping
	}

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(srv.routes()),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
