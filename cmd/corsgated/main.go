// SPDX-License-Identifier: MIT

// corsgated is the CORS gateway daemon: it terminates gateway fetch
// requests, runs each one through the cross-origin request pipeline and
// serves the admin surface (access list, audit, metrics, health).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/api"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/audit"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/config"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/preflight"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/loader"
	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/network"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(); err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Fatal().Err(err).Msg("corsgated exited with error")
	}
}

func run() error {
	cfg := config.FromEnv()

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "corsgate",
	})
	logger := xglog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    "corsgate",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.TelemetryExporter,
		Endpoint:       cfg.TelemetryEndpoint,
		SamplingRate:   cfg.TelemetrySampling,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	// Audit: structured log always, SQLite store when enabled.
	var store *audit.Store
	var auditQuerier api.AuditQuerier
	var storeSink audit.Sink
	if cfg.AuditEnabled {
		storeCfg := audit.DefaultStoreConfig()
		storeCfg.BufferSize = cfg.AuditBufferSize
		store, err = audit.OpenStore(cfg.AuditDBPath, storeCfg)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("audit store close failed")
			}
		}()
		auditQuerier = store
		storeSink = store
	}
	auditLog := audit.NewLogger(storeSink)

	accessList, err := config.NewAccessListHolder(cfg.AccessListPath, auditLog)
	if err != nil {
		return fmt.Errorf("load origin access list: %w", err)
	}
	if err := accessList.StartWatcher(ctx); err != nil {
		return fmt.Errorf("watch origin access list: %w", err)
	}
	defer accessList.Stop()

	preflightCache, cacheCleanup, err := buildPreflightCache(cfg)
	if err != nil {
		return fmt.Errorf("init preflight cache: %w", err)
	}
	defer cacheCleanup()

	netFactory := network.NewHTTPFactory(network.DefaultHTTPFactoryConfig())

	factory, err := loader.NewFactory(loader.Config{
		Trust:               loader.TrustParams{IsTrusted: cfg.Trusted},
		ClientSecurityState: cfg.ClientSecurityState(),
		OriginAccess:        accessList.Holder(),
		Preflight:           preflight.NewController(preflightCache, netFactory),
		Network:             netFactory,
		Observer:            loader.NewAuditObserver(loader.NewLogObserver(1), auditLog),
	})
	if err != nil {
		return fmt.Errorf("init loader factory: %w", err)
	}

	server, err := api.New(api.Config{
		Factory:        factory,
		AccessList:     accessList,
		Audit:          auditQuerier,
		FetchRateLimit: cfg.FetchRateLimit,
	})
	if err != nil {
		return fmt.Errorf("init api server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("event", "daemon.listening").
			Str("addr", cfg.ListenAddr).
			Str("version", version).
			Msg("corsgated listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str("event", "daemon.shutdown_start").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Str("event", "daemon.stopped").Msg("corsgated stopped")
	return nil
}

// buildPreflightCache picks the configured backend and returns it with a
// cleanup function for shutdown.
func buildPreflightCache(cfg config.Config) (preflight.Cache, func(), error) {
	logger := xglog.WithComponent("daemon")
	switch cfg.PreflightCache {
	case config.CacheMemory:
		cache := preflight.NewMemoryCache(cfg.PreflightCleanupInterval)
		return cache, cache.Stop, nil

	case config.CacheRedis:
		cache, err := preflight.NewRedisCache(preflight.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache, func() {}, nil

	case config.CacheBadger:
		cache, err := preflight.OpenBadgerCache(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return cache, func() {
			if err := cache.Close(); err != nil {
				logger.Warn().Err(err).Msg("badger cache close failed")
			}
		}, nil

	default:
		return preflight.NewNoopCache(), func() {}, nil
	}
}
