package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/MechWipf/lrpc/protocol"
	"github.com/MechWipf/lrpc/queue"
	"github.com/MechWipf/lrpc/server"
	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// startServer serves an invoker that echoes the request after sleeping for
// as many milliseconds as the first byte says.
func startServer(t *testing.T) string {
	t.Helper()
	invoker := server.InvokerFunc(func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
		b := req.Bytes()
		if len(b) > 0 {
			time.Sleep(time.Duration(b[0]) * time.Millisecond)
		}
		return queue.FromBytes(b), nil
	})
	s := server.New(invoker, server.WithLogger(zaptest.NewLogger(t)), server.WithMetricSink(&metrics.BlackholeSink{}))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(l)
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return l.Addr().String()
}

func dial(t *testing.T, addr string) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), addr, protocol.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallSerial(t *testing.T) {
	c := dial(t, startServer(t))
	for _, body := range [][]byte{{0, 1}, {0}, {0, 2, 3, 4}, make([]byte, 5000)} {
		resp, err := c.Call(context.Background(), queue.FromBytes(body))
		require.NoError(t, err)
		assert.Equal(t, body, resp.Bytes())
	}
	assert.False(t, c.Broken())
}

func TestCallConcurrentOnOneConn(t *testing.T) {
	c := dial(t, startServer(t))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := []byte{0, byte(i)}
			resp, err := c.Call(context.Background(), queue.FromBytes(body))
			if assert.NoError(t, err) {
				assert.Equal(t, body, resp.Bytes())
			}
		}(i)
	}
	wg.Wait()
}

func TestCallDeadline(t *testing.T) {
	c := dial(t, startServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, queue.FromBytes([]byte{200}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrBroken)
	assert.True(t, c.Broken())

	_, err = c.Call(context.Background(), queue.FromBytes([]byte{0}))
	assert.ErrorIs(t, err, ErrBroken)
}

func TestCallCancel(t *testing.T) {
	c := dial(t, startServer(t))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Call(ctx, queue.FromBytes([]byte{200}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallPeerClosed(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c := dial(t, l.Addr().String())
	_, err = c.Call(context.Background(), queue.FromBytes([]byte{1}))
	assert.ErrorIs(t, err, ErrBroken)
}

func TestPoolReuse(t *testing.T) {
	addr := startServer(t)
	var dials int
	p := NewPool(2, func(ctx context.Context) (*Conn, error) {
		dials++
		return Dial(ctx, addr, protocol.DefaultLimits())
	})
	defer p.Close()

	for i := 0; i < 5; i++ {
		c, err := p.Get(context.Background())
		require.NoError(t, err)
		_, err = c.Call(context.Background(), queue.FromBytes([]byte{0}))
		require.NoError(t, err)
		p.Put(c)
	}
	assert.Equal(t, 1, dials)
	open, idle := p.Stats()
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, idle)
}

func TestPoolBlocksAtLimit(t *testing.T) {
	addr := startServer(t)
	p := NewPool(1, func(ctx context.Context) (*Conn, error) {
		return Dial(ctx, addr, protocol.DefaultLimits())
	})
	defer p.Close()

	c, err := p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *Conn)
	go func() {
		c2, err := p.Get(context.Background())
		assert.NoError(t, err)
		got <- c2
	}()
	p.Put(c)
	select {
	case c2 := <-got:
		assert.Same(t, c, c2)
		p.Put(c2)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Put")
	}
}

func TestPoolDiscardsBroken(t *testing.T) {
	addr := startServer(t)
	p := NewPool(1, func(ctx context.Context) (*Conn, error) {
		return Dial(ctx, addr, protocol.DefaultLimits())
	})
	defer p.Close()

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, queue.FromBytes([]byte{100}))
	require.Error(t, err)
	p.Put(c)

	open, _ := p.Stats()
	assert.Equal(t, 0, open)
	c2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c, c2)
	p.Put(c2)
}

func TestPoolDialError(t *testing.T) {
	boom := errors.New("no route")
	p := NewPool(1, func(ctx context.Context) (*Conn, error) { return nil, boom })
	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, boom)
	open, _ := p.Stats()
	assert.Equal(t, 0, open, "failed dial frees its slot")
}

func TestPoolClosed(t *testing.T) {
	addr := startServer(t)
	p := NewPool(2, func(ctx context.Context) (*Conn, error) {
		return Dial(ctx, addr, protocol.DefaultLimits())
	})
	c, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Put(c)
	open, idle := p.Stats()
	assert.Equal(t, 0, open)
	assert.Equal(t, 0, idle)
}
