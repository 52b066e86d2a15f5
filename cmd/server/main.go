package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"teledrive/internal/api"
	"teledrive/internal/config"
	"teledrive/internal/drive"
	"teledrive/internal/stream"
	"teledrive/internal/telegram"
	"teledrive/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.LogPretty)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := drive.NewStore(filepath.Join(cfg.DataDir, "drive.db"))
	if err != nil {
		return fmt.Errorf("failed to open drive store: %w", err)
	}
	defer store.Close()

	client := telegram.NewClient(telegram.Config{
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		SessionFile: filepath.Join(cfg.DataDir, cfg.SessionFile),
	}, log)

	cache, err := stream.NewMetaCache(cfg.MetaCacheSize, cfg.MetaCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create metadata cache: %w", err)
	}

	fetcher := stream.NewFetcher(client, stream.FetcherConfig{
		Retries:        cfg.FetchRetries,
		Rate:           cfg.UpstreamRate,
		Burst:          cfg.UpstreamBurst,
		BreakerTimeout: cfg.CircuitBreakerTimeout,
	}, log)

	streamer := stream.NewStreamer(client, fetcher, cache, cfg.StreamChunkSize, log)

	router, err := api.NewRouter(cfg, log, client, streamer, store)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := api.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Telegram client stopped")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("Server started")

	if err := api.RunServer(ctx, server, cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("Shut down cleanly")
	return nil
}
