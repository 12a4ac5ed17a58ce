package test

import (
	"context"

	"github.com/MechWipf/lrpc/codec"
	"github.com/MechWipf/lrpc/message"
	"github.com/MechWipf/lrpc/queue"
	"github.com/MechWipf/lrpc/server"
)

type Args struct {
	A, B int64
}

func init() {
	s := codec.NewSchema[Args]()
	codec.Field(s, "A", func(a *Args) int64 { return a.A }, func(a *Args, v int64) { a.A = v })
	codec.Field(s, "B", func(a *Args) int64 { return a.B }, func(a *Args, v int64) { a.B = v })
	s.Register(codec.Default)
}

// arith dispatches "Arith.Add" and "Arith.Multiply" by hand; procedure
// lookup is the invoker's business, not the transport's.
var arith = server.InvokerFunc(func(ctx context.Context, req *queue.ByteQueue) (*queue.ByteQueue, error) {
	method, err := message.ReadMethod(req)
	if err != nil {
		return nil, err
	}
	args, err := codec.Get[Args](codec.Default, req)
	if err != nil {
		return message.Failure(err.Error()), nil
	}
	if args == nil {
		return message.Failure("missing args"), nil
	}
	switch method {
	case "Arith.Add":
		return message.NewReply(args.A + args.B)
	case "Arith.Multiply":
		return message.NewReply(args.A * args.B)
	}
	return message.Failuref("unknown method %q", method), nil
})
