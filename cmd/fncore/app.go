package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/fncore/internal/cache"
	"github.com/oriys/fncore/internal/circuitbreaker"
	"github.com/oriys/fncore/internal/config"
	"github.com/oriys/fncore/internal/db"
	"github.com/oriys/fncore/internal/executor"
	"github.com/oriys/fncore/internal/httpapi"
	"github.com/oriys/fncore/internal/loader"
	"github.com/oriys/fncore/internal/logging"
	"github.com/oriys/fncore/internal/logstore"
	"github.com/oriys/fncore/internal/metrics"
	"github.com/oriys/fncore/internal/modulecache"
	"github.com/oriys/fncore/internal/registry"
	"github.com/oriys/fncore/internal/sandbox"
)

// app bundles every wired component so serve and invoke share one
// construction path.
type app struct {
	conn        db.Database
	logs        *logstore.Store
	loader      *loader.Loader
	executor    *executor.Manager
	metrics     *metrics.Registry
	exporter    *metrics.Exporter
	specs       *registry.Registry
	handler     *httpapi.Handler
	invalidator *cache.CacheInvalidator // non-nil only when Redis is configured
}

// buildApp constructs every component named in SPEC_FULL.md's
// component wiring (A-G plus the registry) from cfg.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	logs, err := logstore.Open(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("open log store: %w", err)
	}

	runner := sandbox.NewRunner(sandbox.Config{
		DefaultTimeout:       cfg.Sandbox.DefaultTimeout,
		MaxConsoleOutputSize: cfg.Sandbox.MaxConsoleOutputSize,
		BlockNetwork:         cfg.Sandbox.BlockNetwork,
	})

	var fetcher loader.Fetcher
	if cfg.Loader.UpstreamURL != "" {
		fetcher = loader.NewHTTPFetcher(cfg.Loader.UpstreamURL, http.DefaultClient)
	}

	ld := loader.New(loader.Config{
		DefaultTimeout: cfg.Loader.Timeout,
		Cache: modulecache.Config{
			MaxCacheSize: cfg.Loader.Cache.MaxCacheSize,
			CacheTTL:     cfg.Loader.Cache.CacheTTL,
		},
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Loader.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.Loader.CircuitBreaker.SuccessThreshold,
			ResetTimeout:     cfg.Loader.CircuitBreaker.ResetTimeout,
		},
	}, fetcher, runner)

	metricsReg := metrics.NewRegistry()
	exec := executor.NewManager(executor.Config{
		MaxConcurrentExecutions: cfg.Executor.MaxConcurrentExecutions,
		MaxQueueSize:            cfg.Executor.MaxQueueSize,
		ExecutionTimeout:        cfg.Executor.ExecutionTimeout,
		WarmIdleTimeout:         cfg.Executor.WarmIdleTimeout,
		MaxConsoleOutputSize:    cfg.Executor.MaxConsoleOutputSize,
		LogRetention:            cfg.Executor.LogRetention,
	}, ld, logs).WithMetrics(metricsReg)

	exporter := metrics.NewExporter(metricsReg, logs)

	specCache, invalidator := buildSpecCache(ctx, cfg.Redis)
	specs := registry.New(specCache)

	handler := &httpapi.Handler{
		Executor: exec,
		Logs:     logs,
		Exporter: exporter,
		Specs:    specs,
	}

	return &app{
		conn:        conn,
		logs:        logs,
		loader:      ld,
		executor:    exec,
		metrics:     metricsReg,
		exporter:    exporter,
		specs:       specs,
		handler:     handler,
		invalidator: invalidator,
	}, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (db.Database, error) {
	switch cfg.Driver {
	case "postgres":
		return db.OpenPostgres(ctx, cfg.Postgres)
	case "sqlite", "":
		path := cfg.SQLite
		if path == "" {
			path = "fncore.db"
		}
		return db.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildSpecCache wires the optional Redis L2 accelerator in front of the
// FunctionSpec registry's in-memory map; with no Redis address configured
// the registry runs in-memory only. When Redis is configured, the
// returned CacheInvalidator is already subscribed in a background
// goroutine, so every sibling instance's L1 entry is evicted the moment
// any instance writes or deletes a spec, instead of waiting out l1TTL.
func buildSpecCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, *cache.CacheInvalidator) {
	if cfg.Addr == "" {
		return cache.NewInMemoryCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	l1 := cache.NewInMemoryCache()
	l2 := cache.NewRedisCacheFromClient(client, "")
	invalidator := cache.NewCacheInvalidator(l1, client)
	tiered := cache.NewTieredCache(l1, l2, 0).WithInvalidator(invalidator)

	go invalidator.Start(ctx)

	logging.Op().Info("function spec registry using tiered Redis cache", "addr", cfg.Addr)
	return tiered, invalidator
}

// Close shuts down the log store, which owns and closes the underlying
// db.Database connection, and stops the cross-instance cache invalidator
// subscription if one was started.
func (a *app) Close() {
	if a.invalidator != nil {
		_ = a.invalidator.Close()
	}
	_ = a.logs.Close()
}
