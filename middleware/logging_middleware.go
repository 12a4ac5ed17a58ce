package middleware

import (
	"context"
	"time"

	"github.com/MechWipf/lrpc/queue"
	"go.uber.org/zap"
)

// Logging records the request size, response size and duration of every
// call. Failed calls are logged at warn level.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
			reqLen := req.Len()
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.Int("request_bytes", reqLen),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("invoke failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			if resp != nil {
				fields = append(fields, zap.Int("response_bytes", resp.Len()))
			}
			logger.Debug("invoke", fields...)
			return resp, nil
		}
	}
}
