// Package transport is the client side of an lrpc connection.
//
// The protocol has no request ids, so a Conn carries one call at a time:
// write one frame, read one frame. Concurrency comes from a Pool of Conns to
// the same address.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/MechWipf/lrpc/protocol"
	"github.com/MechWipf/lrpc/queue"
)

var ErrBroken = errors.New("transport: connection broken")

// Conn is a client connection. Calls on one Conn are serialized.
type Conn struct {
	conn   net.Conn
	limits protocol.Limits
	buf    []byte

	mu  sync.Mutex
	err error // first failure; the stream position is unknown after it
}

// Dial connects to addr over TCP.
func Dial(ctx context.Context, addr string, limits protocol.Limits) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, limits), nil
}

func NewConn(nc net.Conn, limits protocol.Limits) *Conn {
	return &Conn{conn: nc, limits: limits, buf: make([]byte, protocol.DefaultReadBufferSize)}
}

// Call sends req as one frame and waits for the response frame. ctx bounds
// the whole round trip. Any failure leaves the Conn broken, since part of a
// frame may already be on the wire.
func (c *Conn) Call(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(err)
	}
	// Unblock the socket if ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := protocol.WriteFrame(c.conn, req); err != nil {
		return nil, c.fail(ctxErr(ctx, err))
	}
	resp, dropped, err := protocol.ReadFrame(c.conn, c.buf, c.limits)
	if err != nil {
		return nil, c.fail(ctxErr(ctx, err))
	}
	if dropped > 0 {
		// The peer sent more than one frame; the next read would start
		// mid-stream.
		c.fail(fmt.Errorf("%d bytes past response frame", dropped))
	}
	return resp, nil
}

// ctxErr attributes err to ctx when ctx caused it. The socket deadline can
// fire a moment before ctx itself reports expiry.
func ctxErr(ctx context.Context, err error) error {
	cerr := ctx.Err()
	if cerr == nil {
		if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
			cerr = context.DeadlineExceeded
		}
	}
	if cerr != nil {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}

// fail marks the Conn broken and closes the socket. c.mu must be held.
func (c *Conn) fail(err error) error {
	c.err = fmt.Errorf("%w: %w", ErrBroken, err)
	c.conn.Close()
	return c.err
}

// Broken reports whether a previous call failed.
func (c *Conn) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err != nil
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
