// Command msgproxy runs the replicated-backend messaging proxy: a single
// TCP endpoint fronting a pool of stateful messaging replicas, with
// round-robin dispatch, heartbeat-driven membership, and journal replay for
// recovering replicas.
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"msgproxy/backend"
	"msgproxy/config"
	"msgproxy/dispatch"
	"msgproxy/journal"
	"msgproxy/membership"
	"msgproxy/metrics"
	"msgproxy/middleware"
	"msgproxy/proxy"
	"msgproxy/registry"
	"msgproxy/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:   "msgproxy",
		Short: "msgproxy — replicated-backend messaging proxy",
		Long: `msgproxy fronts a dynamic pool of stateful messaging replicas behind one
TCP endpoint. Client requests are dispatched round-robin with bounded retry,
replicas are heartbeat-probed, and a replica returning from failure is
caught up from the synchronization journal before rejoining the rotation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&configPath, "config", envOrDefault("MSGPROXY_CONFIG", "msgproxy.yaml"), "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("MSGPROXY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("msgproxy %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, configPath, logLevel string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Configuration loading failure is fatal by design.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Info("starting msgproxy",
		zap.String("version", version),
		zap.String("listen_addr", cfg.ListenAddr()),
		zap.Duration("heartbeat_interval", cfg.HeartbeatInterval()),
		zap.Int("seed_backends", len(cfg.Backends)),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Shared state ---
	pool := backend.NewPool()
	jnl := journal.New()
	m := metrics.New()
	clients := session.NewTable()

	// --- 2. Dispatch path ---
	dispatcher := dispatch.New(pool, jnl, logger,
		middleware.Logging(logger),
		middleware.Metrics(m),
	)
	handler := session.NewHandler(dispatcher, pool, clients, m, logger)

	// --- 3. Membership sources ---
	static := &registry.StaticSource{Addrs: cfg.Backends}
	if err := static.Run(ctx, handler.Register); err != nil {
		return fmt.Errorf("failed to seed backends: %w", err)
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		etcdSrc, err := registry.NewEtcdSource(cfg.Etcd.Endpoints)
		if err != nil {
			return fmt.Errorf("failed to connect etcd: %w", err)
		}
		defer etcdSrc.Close()
		go func() {
			if err := etcdSrc.Run(ctx, handler.Register); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("etcd discovery stopped", zap.Error(err))
			}
		}()
	}

	// --- 4. Heartbeat ---
	manager, err := membership.New(pool, jnl, m, logger, cfg.HeartbeatInterval())
	if err != nil {
		return fmt.Errorf("failed to create membership manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start heartbeat: %w", err)
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			logger.Warn("heartbeat shutdown error", zap.Error(err))
		}
	}()

	// --- 5. Metrics endpoint ---
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	// --- 6. Accept loop ---
	p := proxy.New(handler, logger)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- p.Serve(ctx, cfg.ListenAddr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := p.Shutdown(shutdownTimeout); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
		return nil
	case err := <-serveErr:
		return err
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		cfg = zap.NewProductionConfig()
		switch level {
		case "warn":
			cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		case "error":
			cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		default:
			cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}
	return cfg.Build()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
