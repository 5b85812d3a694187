package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/cimut/internal/api/ws"
	"github.com/gosuda/cimut/internal/config"
	"github.com/gosuda/cimut/internal/controller"
	"github.com/gosuda/cimut/internal/gateway"
	"github.com/gosuda/cimut/internal/metrics"
	"github.com/gosuda/cimut/internal/server"
	"github.com/gosuda/cimut/internal/store/memory"
	redisstore "github.com/gosuda/cimut/internal/store/redis"
	"github.com/gosuda/cimut/web"
)

const shutdownTimeout = 10 * time.Second

// eventBus carries session snapshots to WebSocket subscribers.
type eventBus interface {
	ws.PubSub
	server.Pinger
	Close() error
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control panel server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Graceful shutdown on SIGINT / SIGTERM.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// The server logs to stdout; one-shot commands keep stdout for results.
	setupLogging(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	bus, err := openEventBus(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer bus.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Timeout, m)

	// The registry publishes through the hub and the hub looks sessions up
	// in the registry.
	hub := ws.NewHub(bus, nil)
	registry := controller.NewRegistry(client, hub, cfg.Session.TTL, m)
	hub.SetSessions(registry)

	go registry.Run(ctx)

	// Prepare embedded panel assets (strip "build/" prefix from fs paths).
	webAssets, err := fs.Sub(web.Assets, "build")
	if err != nil {
		return fmt.Errorf("web assets: %w", err)
	}

	srv := server.New(ctx, cfg, registry, hub, bus, reg, webAssets)

	startErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("gateway", cfg.Gateway.URL).
			Str("version", version).
			Msg("starting server")
		startErr <- srv.Start(ctx)
	}()

	// Block until shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-startErr:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// openEventBus connects to Redis when an address is configured and falls
// back to the in-process bus otherwise.
func openEventBus(ctx context.Context, cfg config.RedisConfig) (eventBus, error) {
	if cfg.Addr == "" {
		log.Info().Msg("using in-process event bus")
		return memory.New(), nil
	}

	bus, err := redisstore.New(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.Addr).Msg("using redis event bus")
	return bus, nil
}
