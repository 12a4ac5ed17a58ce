package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/MechWipf/lrpc/message"
	"github.com/MechWipf/lrpc/queue"
)

const timeoutMessage = "request timed out"

// Timeout bounds each call. When the deadline passes first the caller gets a
// failure reply; the handler keeps running until it notices ctx is done.
// The handler runs on its own goroutine, so a panic there is recovered here
// and returned as ErrPanic.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *queue.ByteQueue
				err  error
			}
			done := make(chan result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- result{nil, fmt.Errorf("%w: %v", ErrPanic, r)}
					}
				}()
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return message.Failure(timeoutMessage), nil
			}
		}
	}
}
