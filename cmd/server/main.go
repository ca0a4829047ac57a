// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Command server runs the Scrutineer ingestion and anomaly-detection
// server: HTTP API, WebSocket push, and the notification pipeline, all
// under a supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ballotwatch/scrutineer/internal/api"
	"github.com/ballotwatch/scrutineer/internal/config"
	"github.com/ballotwatch/scrutineer/internal/logging"
	"github.com/ballotwatch/scrutineer/internal/monitor"
	"github.com/ballotwatch/scrutineer/internal/notify"
	"github.com/ballotwatch/scrutineer/internal/supervisor"
	"github.com/ballotwatch/scrutineer/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Float64("velocity_baseline", cfg.Detection.VelocityBaseline).
		Dur("dedup_window", cfg.Detection.DedupWindow).
		Bool("webhook_enabled", cfg.Notify.Webhook.Enabled).
		Msg("Starting Scrutineer server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core pipeline: ledger, aggregator, detectors, registry.
	mon := monitor.New(cfg)
	mon.Start()

	// Notification fan-out: monitor -> pump -> bus -> dispatcher -> sinks.
	hub := websocket.NewHub()
	bus := notify.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close message bus")
		}
	}()

	notifiers := []notify.Notifier{notify.NewBroadcastNotifier(hub)}
	if cfg.Notify.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookOptions{
			URL:           cfg.Notify.Webhook.URL,
			Enabled:       true,
			Timeout:       cfg.Notify.Webhook.Timeout,
			RatePerMinute: cfg.Notify.Webhook.RatePerMinute,
		}))
	}

	pump := notify.NewPump(mon.Notifications(), bus)
	dispatcher := notify.NewDispatcher(bus, notifiers...)
	refresher := notify.NewRefresher(mon, hub, cfg.Notify.ReportRefreshInterval)

	// HTTP surface.
	handler := api.NewHandler(mon, hub, cfg)
	middleware := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	})
	router := api.NewRouter(handler, middleware)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMessagingService(hub)
	tree.AddMessagingService(pump)
	tree.AddMessagingService(dispatcher)
	tree.AddMessagingService(refresher)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	// Signal handling triggers a tree-wide graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Server listening")
	errCh := tree.ServeBackground(ctx)

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
