package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed"
	"github.com/BaSui01/catalogfed/config"
	"github.com/BaSui01/catalogfed/internal/server"
)

type serveOptions struct {
	addr         string
	watch        bool
	pollInterval time.Duration
}

func newServeCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the federation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address, overrides server.addr")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload sources when the configuration file changes")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 2*time.Second, "How often --watch checks the configuration file")

	return cmd
}

func runServe(cmd *cobra.Command, rootFlags *rootFlags, opts *serveOptions) error {
	cfg, loader, err := loadConfig(rootFlags)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	engine, err := catalogfed.New(ctx, cfg, catalogfed.WithLogger(logger))
	if err != nil {
		return newCommandError("start engine", err, "Run 'catalogfed sources --check' to find the failing source.")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	if opts.watch && rootFlags.configPath != "" {
		watcher := config.NewWatcher(loader,
			config.WithPollInterval(opts.pollInterval),
			config.WithWatcherLogger(logger))
		engine.Watch(watcher)
		if err := watcher.Start(ctx); err != nil {
			return newCommandError("watch configuration", err, "")
		}
		defer watcher.Stop()
	}

	// A dedicated metrics listener keeps /metrics off the API port.
	separateMetrics := cfg.Metrics.Enabled && cfg.Metrics.Addr != ""
	handler := server.NewHandler(engine, server.HandlerOptions{
		Version: version,
		Metrics: cfg.Metrics.Enabled && !separateMetrics,
		Logger:  logger,
	})
	api := server.NewManager(server.Chain(handler, apiMiddleware(ctx, cfg.Server, engine, logger)...),
		managerConfig(cfg.Server), logger)
	if err := api.Start(); err != nil {
		return newCommandError("start HTTP server", err, "Pick a free address with --addr.")
	}

	if separateMetrics {
		metricsConfig := server.DefaultConfig()
		metricsConfig.Addr = cfg.Metrics.Addr
		metricsServer := server.NewManager(server.MetricsHandler(), metricsConfig, logger)
		if err := metricsServer.Start(); err != nil {
			_ = api.Shutdown(context.Background())
			return newCommandError("start metrics server", err, "Change metrics.addr.")
		}
		defer func() { _ = metricsServer.Shutdown(context.Background()) }()
	}

	logger.Info("catalogfed serving",
		zap.String("addr", api.ListenAddr()),
		zap.Strings("sources", engine.Sources()),
		zap.String("version", version))

	api.WaitForShutdown(ctx)
	return nil
}

// apiMiddleware lists the API middleware, outermost first.
func apiMiddleware(ctx context.Context, cfg config.ServerConfig, engine *catalogfed.Engine, logger *zap.Logger) []server.Middleware {
	chain := []server.Middleware{
		server.Recovery(logger),
		server.RequestID(),
		server.Tracing(),
		server.RequestLogger(logger),
		server.SecurityHeaders(),
	}
	if c := engine.Collector(); c != nil {
		chain = append(chain, server.Metrics(c))
	}
	if cfg.RateLimit > 0 {
		chain = append(chain, server.RateLimiter(ctx, cfg.RateLimit, cfg.Burst, logger))
	}
	return chain
}

func managerConfig(cfg config.ServerConfig) server.Config {
	out := server.DefaultConfig()
	out.Addr = cfg.Addr
	if cfg.ReadTimeout > 0 {
		out.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		out.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		out.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return out
}
