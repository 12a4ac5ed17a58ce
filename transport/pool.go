package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
)

var ErrPoolClosed = errors.New("transport: pool closed")

// Pool keeps up to maxConns connections to one address. Connections are
// created lazily; when all are in use Get blocks until one is returned or
// ctx is done.
type Pool struct {
	dial func(ctx context.Context) (*Conn, error)
	idle chan *Conn
	// slots holds one token per open connection.
	slots chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewPool(maxConns int, dial func(ctx context.Context) (*Conn, error)) *Pool {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Pool{
		dial:  dial,
		idle:  make(chan *Conn, maxConns),
		slots: make(chan struct{}, maxConns),
	}
}

// Get returns an idle connection, dials a new one while under the limit, or
// waits for one to be returned.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}

	select {
	case c := <-p.idle:
		return c, nil
	case p.slots <- struct{}{}:
		c, err := p.dial(ctx)
		if err != nil {
			<-p.slots
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put hands c back. Broken connections, and any connection returned after
// Close, are closed and free their slot.
func (p *Pool) Put(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || c.Broken() {
		c.Close()
		<-p.slots
		return
	}
	p.idle <- c
}

// Close closes the idle connections. Connections still in use are closed
// when they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	for {
		select {
		case c := <-p.idle:
			err = multierr.Append(err, c.Close())
			<-p.slots
		default:
			return err
		}
	}
}

// Stats reports the open and idle connection counts.
func (p *Pool) Stats() (open, idle int) {
	return len(p.slots), len(p.idle)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
