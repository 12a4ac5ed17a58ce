// Package server runs the lrpc connection handler.
//
// Request processing:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → loop: ReadFrame → middleware chain → Invoker → WriteFrame
//
// Each connection is strictly request/response: the response to one frame
// is fully written before the next frame is read. Connections share nothing
// except the codec registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/MechWipf/lrpc/middleware"
	"github.com/MechWipf/lrpc/observability"
	"github.com/MechWipf/lrpc/protocol"
	"github.com/MechWipf/lrpc/queue"
	"github.com/MechWipf/lrpc/registry"
	"github.com/hashicorp/go-metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrServerClosed = errors.New("server: closed")

// Invoker turns a request payload into a response payload. Returning an
// error closes the connection the request came from.
type Invoker interface {
	Invoke(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error)
}

type InvokerFunc func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error)

func (f InvokerFunc) Invoke(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
	return f(ctx, req)
}

type Server struct {
	handler     middleware.HandlerFunc
	middlewares []middleware.Middleware
	logger      *zap.Logger
	msink       metrics.MetricSink
	limits      protocol.Limits
	readBufSize int

	registry    registry.Registry
	serviceName string
	advertise   string
	ttl         int64

	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	conns      map[net.Conn]struct{}
	registered []string
	closing    bool
	draining   bool
	inflight   sync.WaitGroup
	connWG     sync.WaitGroup
}

func New(invoker Invoker, opts ...Option) *Server {
	s := &Server{
		logger:      zap.NewNop(),
		limits:      protocol.DefaultLimits(),
		readBufSize: protocol.DefaultReadBufferSize,
		listeners:   make(map[net.Listener]struct{}),
		conns:       make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.msink == nil {
		s.msink = metrics.Default()
	}
	// Recover is outermost so a panic in the chain only costs the connection.
	// Middleware that hands work to another goroutine recovers there itself.
	mws := append([]middleware.Middleware{middleware.Recover(s.logger)}, s.middlewares...)
	s.handler = middleware.Chain(mws...)(invoker.Invoke)
	return s
}

// Run serves TCP on every interface at port and blocks until the server is
// closed.
func (s *Server) Run(port int) error {
	return s.Serve("tcp", net.JoinHostPort("", strconv.Itoa(port)))
}

// Serve listens on address and blocks in the accept loop. It returns nil
// after Close or Shutdown.
func (s *Server) Serve(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(l)
}

// ServeListener runs the accept loop on l. It takes ownership of l.
func (s *Server) ServeListener(l net.Listener) error {
	if !s.trackListener(l) {
		l.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(l)

	if err := s.register(l.Addr().String()); err != nil {
		l.Close()
		return err
	}
	s.logger.Info("serving", zap.Stringer("addr", l.Addr()))

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				s.logger.Warn("accept", zap.Error(err))
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}
		if !s.trackConn(conn) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) register(listenAddr string) error {
	if s.registry == nil {
		return nil
	}
	addr := s.advertise
	if addr == "" {
		addr = listenAddr
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.registry.Register(ctx, s.serviceName, registry.ServiceInstance{Addr: addr}, s.ttl); err != nil {
		return fmt.Errorf("server: register %s at %s: %w", s.serviceName, addr, err)
	}
	s.mu.Lock()
	s.registered = append(s.registered, addr)
	s.mu.Unlock()
	s.logger.Info("registered", zap.String("service", s.serviceName), zap.String("addr", addr))
	return nil
}

// Addrs reports the addresses of the active listeners.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for l := range s.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// handleConn runs the request/response loop of one connection. Every exit
// path closes the socket; nothing propagates past this goroutine.
func (s *Server) handleConn(conn net.Conn) {
	defer s.untrackConn(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logger := s.logger.With(zap.String("remote", remote))
	mLabels := []metrics.Label{observability.LabelPeerAddr.M(remote)}
	s.msink.IncrCounter(observability.MetricServerConnAcceptCount, 1)
	defer s.msink.IncrCounter(observability.MetricServerConnClosedCount, 1)

	buf := make([]byte, s.readBufSize)
	for {
		req, dropped, err := protocol.ReadFrame(conn, buf, s.limits)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Debug("connection closed by peer")
				return
			}
			stage := "read"
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				stage = "oversize"
			}
			s.connError(logger, mLabels, stage, err)
			return
		}
		if dropped > 0 {
			logger.Warn("dropped bytes past frame boundary", zap.Int("bytes", dropped))
			s.msink.IncrCounterWithLabels(observability.MetricServerDroppedBytes, float32(dropped), mLabels)
		}
		s.msink.IncrCounter(observability.MetricServerFrameInCount, 1)
		s.msink.IncrCounter(observability.MetricServerFrameInBytes, float32(req.Len()))

		stage, err := s.serveFrame(conn, req)
		if err != nil {
			if errors.Is(err, ErrServerClosed) {
				logger.Debug("closing connection during shutdown")
				return
			}
			s.connError(logger, mLabels, stage, err)
			return
		}
	}
}

func (s *Server) connError(logger *zap.Logger, mLabels []metrics.Label, stage string, err error) {
	logger.Warn("closing connection", zap.String("stage", stage), zap.Error(err))
	s.msink.IncrCounterWithLabels(
		observability.MetricServerConnErrorCount,
		1,
		append(mLabels, observability.LabelError.M(stage)),
	)
}

// serveFrame invokes the handler chain on req and writes the response. The
// whole exchange counts as in flight so Shutdown can wait for it. On failure
// it reports which stage failed.
func (s *Server) serveFrame(conn net.Conn, req *queue.ByteQueue) (string, error) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return "", ErrServerClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	start := time.Now()
	resp, err := s.handler(context.Background(), req)
	s.msink.AddSample(observability.MetricServerInvokeLatency, float32(time.Since(start).Seconds()*1000))
	if err != nil {
		s.msink.IncrCounter(observability.MetricServerInvokeErrorCount, 1)
		return "invoke", err
	}
	if resp == nil {
		resp = queue.New()
	}

	n, err := protocol.WriteFrame(conn, resp)
	if err != nil {
		return "write", err
	}
	s.msink.IncrCounter(observability.MetricServerFrameOutCount, 1)
	s.msink.IncrCounter(observability.MetricServerFrameOutBytes, float32(n))
	return "", nil
}

// Close stops accepting connections. Connections already established keep
// being served.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, ignoreClosed(l.Close()))
	}
	return err
}

// Shutdown deregisters the server, closes the listeners, waits up to timeout
// for in-flight invocations and then closes every connection and waits for
// its handler to exit. Requests that arrive after Shutdown starts are not
// invoked.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	s.mu.Lock()
	registered := s.registered
	s.registered = nil
	s.mu.Unlock()
	for _, addr := range registered {
		err = multierr.Append(err, s.registry.Deregister(ctx, s.serviceName, addr))
	}

	err = multierr.Append(err, s.Close())

	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	if !waitTimeout(ctx, &s.inflight) {
		err = multierr.Append(err, errors.New("server: timeout waiting for in-flight requests"))
	}

	s.mu.Lock()
	for c := range s.conns {
		err = multierr.Append(err, ignoreClosed(c.Close()))
	}
	s.mu.Unlock()
	waitTimeout(ctx, &s.connWG)
	return err
}

// waitTimeout reports whether wg finished before ctx expired.
func waitTimeout(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) trackListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) untrackListener(l net.Listener) {
	s.mu.Lock()
	delete(s.listeners, l)
	s.mu.Unlock()
}

func (s *Server) trackConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.conns[c] = struct{}{}
	s.connWG.Add(1)
	return true
}

func (s *Server) untrackConn(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.connWG.Done()
}
