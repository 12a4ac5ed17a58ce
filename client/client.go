// Package client calls lrpc services found through a registry.
//
//	Call → registry.Discover → Balancer.Pick → Pool.Get → Conn.Call → Pool.Put
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MechWipf/lrpc/codec"
	"github.com/MechWipf/lrpc/loadbalance"
	"github.com/MechWipf/lrpc/message"
	"github.com/MechWipf/lrpc/middleware"
	"github.com/MechWipf/lrpc/observability"
	"github.com/MechWipf/lrpc/protocol"
	"github.com/MechWipf/lrpc/queue"
	"github.com/MechWipf/lrpc/registry"
	"github.com/MechWipf/lrpc/transport"
	"github.com/hashicorp/go-metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Client struct {
	registry    registry.Registry
	balancer    loadbalance.Balancer
	limits      protocol.Limits
	poolSize    int
	logger      *zap.Logger
	msink       metrics.MetricSink
	middlewares []middleware.Middleware

	mu     sync.Mutex
	pools  map[string]*transport.Pool
	closed bool
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *Client) {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.msink = ms
	}
}

func WithLimits(limits protocol.Limits) Option {
	return func(c *Client) { c.limits = limits }
}

// WithPoolSize caps the connections kept per server address.
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithMiddleware wraps every round trip, for example with middleware.Retry.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mws...) }
}

func New(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry: reg,
		balancer: bal,
		limits:   protocol.DefaultLimits(),
		poolSize: 4,
		logger:   zap.NewNop(),
		pools:    make(map[string]*transport.Pool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.msink == nil {
		c.msink = metrics.Default()
	}
	return c
}

// Call sends req to one instance of service and returns the raw response
// payload.
func (c *Client) Call(ctx context.Context, service string, req *queue.ByteQueue) (*queue.ByteQueue, error) {
	return c.CallKey(ctx, service, "", req)
}

// CallKey is Call with a routing key. Balancers that support keys, such as
// loadbalance.ConsistentHash, send equal keys to the same instance.
func (c *Client) CallKey(ctx context.Context, service, key string, req *queue.ByteQueue) (*queue.ByteQueue, error) {
	labels := []metrics.Label{observability.LabelService.M(service)}
	start := time.Now()
	c.msink.IncrCounterWithLabels(observability.MetricClientCallCount, 1, labels)

	handler := middleware.Chain(c.middlewares...)(func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
		return c.roundTrip(ctx, service, key, req)
	})
	resp, err := handler(ctx, req)

	c.msink.AddSampleWithLabels(observability.MetricClientCallLatency, float32(time.Since(start).Seconds()*1000), labels)
	if err != nil {
		c.msink.IncrCounterWithLabels(observability.MetricClientCallErrorCount, 1, labels)
		return nil, err
	}
	return resp, nil
}

// Invoke calls method on service with the message envelope and returns the
// result values still to be read. A failure reported by the server comes
// back as *message.RemoteError.
func (c *Client) Invoke(ctx context.Context, service, method string, args ...any) (*queue.ByteQueue, error) {
	req, err := message.NewRequest(method, args...)
	if err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, service, req)
	if err != nil {
		return nil, err
	}
	if err := message.ReadStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// InvokeResult is Invoke for a method with a single result of type T.
func InvokeResult[T any](ctx context.Context, c *Client, service, method string, args ...any) (T, error) {
	var zero T
	resp, err := c.Invoke(ctx, service, method, args...)
	if err != nil {
		return zero, err
	}
	v, err := codec.Get[T](codec.Default, resp)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return *v, nil
}

func (c *Client) roundTrip(ctx context.Context, service, key string, req *queue.ByteQueue) (*queue.ByteQueue, error) {
	instances, err := c.registry.Discover(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("client: discover %s: %w", service, err)
	}
	var inst *registry.ServiceInstance
	if kb, ok := c.balancer.(loadbalance.KeyedBalancer); ok && key != "" {
		inst, err = kb.PickKey(instances, key)
	} else {
		inst, err = c.balancer.Pick(instances)
	}
	if err != nil {
		return nil, fmt.Errorf("client: pick %s: %w", service, err)
	}

	pool, err := c.pool(inst.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", inst.Addr, err)
	}
	defer pool.Put(conn)

	resp, err := conn.Call(ctx, req)
	if err != nil {
		c.logger.Debug("call failed", zap.String("service", service), zap.String("addr", inst.Addr), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (c *Client) pool(addr string) (*transport.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrPoolClosed
	}
	p, ok := c.pools[addr]
	if !ok {
		p = transport.NewPool(c.poolSize, func(ctx context.Context) (*transport.Conn, error) {
			return transport.Dial(ctx, addr, c.limits)
		})
		c.pools[addr] = p
	}
	return p, nil
}

// Close closes every pool. Calls in progress finish on their connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	var err error
	for addr, p := range c.pools {
		err = multierr.Append(err, p.Close())
		delete(c.pools, addr)
	}
	return err
}
