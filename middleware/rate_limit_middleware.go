package middleware

import (
	"context"

	"github.com/MechWipf/lrpc/message"
	"github.com/MechWipf/lrpc/queue"
	"golang.org/x/time/rate"
)

const rateLimitMessage = "rate limit exceeded"

// RateLimit admits r calls per second with the given burst, token bucket
// style. Rejected calls get a failure reply without reaching the handler.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
			if !limiter.Allow() {
				return message.Failure(rateLimitMessage), nil
			}
			return next(ctx, req)
		}
	}
}
