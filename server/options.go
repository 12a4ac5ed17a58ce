package server

import (
	"github.com/MechWipf/lrpc/middleware"
	"github.com/MechWipf/lrpc/protocol"
	"github.com/MechWipf/lrpc/registry"
	"github.com/hashicorp/go-metrics"
	"go.uber.org/zap"
)

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricSink sets where connection and frame metrics go. The default is
// the global go-metrics instance.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(s *Server) {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		s.msink = ms
	}
}

func WithLimits(limits protocol.Limits) Option {
	return func(s *Server) { s.limits = limits }
}

// WithReadBufferSize sets the per-connection receive buffer.
func WithReadBufferSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.readBufSize = n
		}
	}
}

// WithMiddleware wraps the invoker. Middlewares run in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Server) { s.middlewares = append(s.middlewares, mws...) }
}

// WithRegistry announces the server under serviceName once it listens.
// advertise is the routable address stored in the registry; when empty the
// listener address is used.
func WithRegistry(reg registry.Registry, serviceName, advertise string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.serviceName = serviceName
		s.advertise = advertise
		s.ttl = ttl
	}
}
