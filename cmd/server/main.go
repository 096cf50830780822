// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package main is the Showtrail server.
//
// Showtrail turns a stream of watch events into counters, streaks and
// badges. Components start in this order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Document store (BadgerDB, optionally behind a circuit breaker)
//  3. Catalog fingerprint check
//  4. Counter store and badge evaluator
//  5. Notification publisher and activity manager
//  6. WebSocket hub and notification relay
//  7. HTTP API
//
// Long-lived services run under a suture supervisor tree. On SIGINT or
// SIGTERM the HTTP server drains, pending activity is flushed, and the
// store is closed last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/showtrail/internal/activity"
	"github.com/tomtom215/showtrail/internal/api"
	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/config"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/evaluator"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/notify"
	"github.com/tomtom215/showtrail/internal/store"
	"github.com/tomtom215/showtrail/internal/supervisor"
	"github.com/tomtom215/showtrail/internal/supervisor/services"
	ws "github.com/tomtom215/showtrail/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.ToLogging())
	logging.Info().Str("version", version).Msg("Starting Showtrail")

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Showtrail stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential wiring of every component
func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	badgerStore, err := store.OpenBadger(store.Options{
		Path:          cfg.Store.Path,
		InMemory:      cfg.Store.InMemory,
		SyncWrites:    cfg.Store.SyncWrites,
		TxnMaxRetries: cfg.Store.TxnMaxRetries,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := badgerStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().
		Str("path", cfg.Store.Path).
		Bool("in_memory", cfg.Store.InMemory).
		Msg("Store opened")

	var db store.Store = badgerStore
	var breaker api.BreakerStateReporter
	if cfg.Breaker.Enabled {
		bs := store.NewBreakerStore(badgerStore, store.BreakerSettings{
			Name:             "store",
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
		})
		db, breaker = bs, bs
	}

	cat := catalog.Default()
	if cfg.Evaluator.VerifyCatalog {
		if err := catalog.Verify(ctx, db, cat); err != nil {
			return err
		}
	}

	loc, err := cfg.Evaluator.Location()
	if err != nil {
		return err
	}
	counterStore := counters.New(db, counters.Options{Location: loc})
	eval := evaluator.New(cat, db, counterStore, evaluator.Config{SnapshotTTL: cfg.Evaluator.SnapshotTTL})
	defer eval.Close()

	publisher := notify.NewPublisher(notify.Options{})
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notification publisher")
		}
	}()

	manager := activity.NewManager(activity.Config{
		DebounceDelay:     cfg.Activity.DebounceDelay,
		ReleaseWindow:     cfg.Activity.ReleaseWindow,
		BingeWindow:       cfg.Activity.BingeWindow,
		EmitBingeActivity: cfg.Activity.EmitBingeActivity,
		Location:          loc,
	}, counterStore, eval, publisher)
	manager.SetDefaultCallback(publisher.BadgeCallback(context.Background()))
	defer func() {
		// ctx is canceled by now; pending batches get their own deadline.
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := manager.Close(closeCtx); err != nil {
			logging.Error().Err(err).Msg("Error flushing pending activity")
		}
	}()

	hub := ws.NewHub()
	relay := ws.NewRelay(publisher, hub)

	mwConfig := api.DefaultMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Server.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Server.RateLimitWindow
	mw := api.NewMiddleware(mwConfig)

	handler := api.NewHandler(api.Deps{
		Store:    db,
		Events:   manager,
		Badges:   eval,
		Counters: counterStore,
		Hub:      hub,
		Breaker:  breaker,
		Version:  version,
	}, mw)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, mw, cfg.Server.Timeout),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewGCService(badgerStore, cfg.Store.GCInterval, cfg.Store.GCDiscardRatio))
	tree.AddDataService(services.NewSweeperService(manager, cfg.Activity.SweepInterval, cfg.Activity.SessionIdleTimeout))
	tree.AddMessagingService(hub)
	tree.AddMessagingService(relay)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().
		Str("addr", server.Addr).
		Int("badges", cat.Len()).
		Bool("breaker", cfg.Breaker.Enabled).
		Msg("Starting supervisor tree")

	errCh := tree.ServeBackground(ctx)
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for services to stop")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
