package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MechWipf/lrpc/config"
	"github.com/MechWipf/lrpc/middleware"
	"github.com/MechWipf/lrpc/observability"
	"github.com/MechWipf/lrpc/protocol"
	"github.com/MechWipf/lrpc/registry"
	"github.com/MechWipf/lrpc/server"
	"go.uber.org/zap"
)

// run is the entry point after flag parsing. It blocks until the server
// stops or the process is signalled, and returns the exit code.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	m, err := observability.NewMetrics(cfg.Metrics)
	if err != nil {
		logger.Error("failed to setup metrics", zap.Error(err))
		return 1
	}
	defer m.Stop()

	srvOpts, closeFn, err := serverOptions(cfg, logger, m)
	if err != nil {
		logger.Error("failed to configure server", zap.Error(err))
		return 1
	}
	defer closeFn()

	srv := server.New(builtinInvoker(), srvOpts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(cfg.Server.Port) }()
	logger.Info("lrpcd started", zap.Int("port", cfg.Server.Port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
			return 1
		}
	case s := <-sig:
		logger.Info("shutting down", zap.Stringer("signal", s))
		if err := srv.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
		<-errCh
	}
	return 0
}

// serverOptions turns cfg into server options. The returned func releases
// what the options hold open.
func serverOptions(cfg *config.Config, logger *zap.Logger, m *observability.Metrics) ([]server.Option, func(), error) {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetricSink(m.Sink),
		server.WithLimits(protocol.Limits{MaxFrameSize: cfg.Server.MaxFrameSize}),
		server.WithReadBufferSize(cfg.Server.ReadBufferSize),
		server.WithMiddleware(middleware.Logging(logger)),
	}
	if cfg.Limits.Rate > 0 {
		opts = append(opts, server.WithMiddleware(middleware.RateLimit(cfg.Limits.Rate, cfg.Limits.Burst)))
	}
	if cfg.Limits.Timeout > 0 {
		opts = append(opts, server.WithMiddleware(middleware.Timeout(cfg.Limits.Timeout)))
	}

	closeFn := func() {}
	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect registry: %w", err)
		}
		opts = append(opts, server.WithRegistry(reg, cfg.Registry.Service, cfg.Registry.Advertise, cfg.Registry.TTL))
		closeFn = func() {
			if err := reg.Close(); err != nil {
				logger.Warn("close registry", zap.Error(err))
			}
		}
	}
	return opts, closeFn, nil
}
