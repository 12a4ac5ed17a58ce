// Package message holds the envelope convention carried inside frame
// payloads. It is a convention between invokers and callers; the transport
// itself never looks inside a payload.
//
//	request:   [string method][args ...]
//	response:  [bool failed=false][results ...]
//	           [bool failed=true ][string error]
//
// All values go through codec.Default, so each one carries its presence flag.
package message

import (
	"errors"
	"fmt"

	"github.com/MechWipf/lrpc/codec"
	"github.com/MechWipf/lrpc/queue"
)

var ErrNoMethod = errors.New("message: request has no method name")

// RemoteError is a failure reported by the far side inside a response.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// NewRequest starts a request payload for method and appends args in order.
func NewRequest(method string, args ...any) (*queue.ByteQueue, error) {
	q := queue.New()
	if err := codec.Put(codec.Default, q, method); err != nil {
		return nil, err
	}
	for i, arg := range args {
		if err := codec.Default.Push(q, arg); err != nil {
			return nil, fmt.Errorf("message: arg %d of %s: %w", i, method, err)
		}
	}
	return q, nil
}

// ReadMethod pops the method name from the front of a request payload.
func ReadMethod(q *queue.ByteQueue) (string, error) {
	name, err := codec.Get[string](codec.Default, q)
	if err != nil {
		return "", err
	}
	if name == nil || *name == "" {
		return "", ErrNoMethod
	}
	return *name, nil
}

// NewReply starts a successful response payload and appends results in order.
func NewReply(results ...any) (*queue.ByteQueue, error) {
	q := queue.New()
	q.PushBool(true)
	q.PushBool(false)
	for i, res := range results {
		if err := codec.Default.Push(q, res); err != nil {
			return nil, fmt.Errorf("message: result %d: %w", i, err)
		}
	}
	return q, nil
}

// Failure builds a failed response payload carrying msg.
func Failure(msg string) *queue.ByteQueue {
	q := queue.New()
	q.PushBool(true)
	q.PushBool(true)
	if err := codec.Put(codec.Default, q, msg); err != nil {
		// Only invalid UTF-8 can fail; the store left nothing behind.
		q.PushBool(false)
	}
	return q
}

// Failuref is Failure with fmt formatting.
func Failuref(format string, args ...any) *queue.ByteQueue {
	return Failure(fmt.Sprintf(format, args...))
}

// ReadStatus pops the status flag from a response payload. A failed response
// is returned as a *RemoteError; otherwise the results follow in q.
func ReadStatus(q *queue.ByteQueue) error {
	failed, err := codec.Get[bool](codec.Default, q)
	if err != nil {
		return err
	}
	if failed == nil || !*failed {
		return nil
	}
	msg, err := codec.Get[string](codec.Default, q)
	if err != nil {
		return err
	}
	remote := &RemoteError{}
	if msg != nil {
		remote.Message = *msg
	}
	return remote
}
