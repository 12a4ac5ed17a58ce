package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/MechWipf/lrpc/queue"
	"go.uber.org/zap"
)

var ErrPanic = errors.New("invoker panicked")

// Recover converts a panic in the handler into ErrPanic.
func Recover(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *queue.ByteQueue) (resp *queue.ByteQueue, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("invoker panic", zap.Any("panic", r), zap.Stack("stack"))
					resp, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			return next(ctx, req)
		}
	}
}
