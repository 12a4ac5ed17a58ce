package main

import (
	"context"
	"time"

	"github.com/MechWipf/lrpc/message"
	"github.com/MechWipf/lrpc/queue"
	"github.com/MechWipf/lrpc/server"
)

// builtinInvoker answers a few diagnostic procedures:
//
//	ping          → "pong"
//	echo [vals…]  → the argument bytes, unchanged
//	time          → server clock, unix nanoseconds (int64)
func builtinInvoker() server.Invoker {
	return server.InvokerFunc(func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
		method, err := message.ReadMethod(req)
		if err != nil {
			return message.Failure(err.Error()), nil
		}
		switch method {
		case "ping":
			return message.NewReply("pong")
		case "echo":
			resp, err := message.NewReply()
			if err != nil {
				return nil, err
			}
			resp.Append(req.Bytes())
			return resp, nil
		case "time":
			return message.NewReply(time.Now().UnixNano())
		}
		return message.Failuref("unknown method %q", method), nil
	})
}
