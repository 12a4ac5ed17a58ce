// Package middleware decorates invokers. A Middleware wraps a HandlerFunc and
// returns a new one; Chain composes them so the first middleware is the
// outermost layer.
package middleware

import (
	"context"

	"github.com/MechWipf/lrpc/queue"
)

// HandlerFunc turns a request payload into a response payload.
type HandlerFunc func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one: Chain(A, B)(h) runs A, then B, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
