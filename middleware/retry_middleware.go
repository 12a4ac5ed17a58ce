package middleware

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/MechWipf/lrpc/queue"
	"go.uber.org/zap"
)

var ErrRetryable = errors.New("retryable")

// Retryable marks err so that Retry will try the call again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err}
}

type retryableError struct{ err error }

func (e retryableError) Error() string        { return e.err.Error() }
func (e retryableError) Unwrap() error        { return e.err }
func (e retryableError) Is(target error) bool { return target == ErrRetryable }

// IsRetryable reports whether err is worth another attempt: marked errors,
// network timeouts and refused connections.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Retry calls next up to maxRetries more times while it fails with a
// retryable error, doubling the delay each time. Every attempt reads its own
// copy of the request payload.
func Retry(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
			body := req.Bytes()
			resp, err := next(ctx, queue.FromBytes(body))
			for i := 0; i < maxRetries && IsRetryable(err); i++ {
				logger.Info("retrying call", zap.Int("attempt", i+1), zap.Error(err))
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				resp, err = next(ctx, queue.FromBytes(body))
			}
			return resp, err
		}
	}
}
