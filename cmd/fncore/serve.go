package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/fncore/internal/config"
	"github.com/oriys/fncore/internal/logging"
	"github.com/oriys/fncore/internal/observability"
)

func serveCmd() *cobra.Command {
	var httpAddr string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the execution core as an HTTP daemon",
		Long:  "Starts the Module Loader, Function Executor, Sandbox Runner and Log/Metric Store behind an HTTP listener exposing the Executor and Log store contracts plus metrics export.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			ctx := context.Background()
			application, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			sweepCtx, cancelSweep := context.WithCancel(context.Background())
			application.executor.StartRetentionSweep(sweepCtx, time.Hour)
			defer cancelSweep()

			mux := http.NewServeMux()
			application.handler.RegisterRoutes(mux)
			mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})

			server := &http.Server{Addr: cfg.Daemon.HTTPAddr, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("http server stopped", "error", err)
				}
			}()
			logging.Op().Info("fncore serve started", "addr", cfg.Daemon.HTTPAddr, "storage", cfg.Storage.Driver)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	return cmd
}
