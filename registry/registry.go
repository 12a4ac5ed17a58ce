// Package registry maps service names to the addresses serving them.
package registry

import (
	"context"
	"errors"

	"github.com/MechWipf/lrpc/codec"
	"github.com/MechWipf/lrpc/queue"
)

var ErrNoInstances = errors.New("registry: no instances")

type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	// Register announces instance under serviceName. Backends with leases
	// drop the entry ttl seconds after the process stops renewing it.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
	Close() error
}

var instanceSchema = codec.NewSchema[ServiceInstance]()

func init() {
	codec.Field(instanceSchema, "Addr",
		func(s *ServiceInstance) string { return s.Addr },
		func(s *ServiceInstance, v string) { s.Addr = v })
	codec.Field(instanceSchema, "Weight",
		func(s *ServiceInstance) int { return s.Weight },
		func(s *ServiceInstance, v int) { s.Weight = v })
	codec.Field(instanceSchema, "Version",
		func(s *ServiceInstance) string { return s.Version },
		func(s *ServiceInstance, v string) { s.Version = v })
	instanceSchema.Register(codec.Default)
}

// EncodeInstance serializes inst with the lrpc codec, the same encoding that
// travels in frames.
func EncodeInstance(inst ServiceInstance) ([]byte, error) {
	q := queue.New()
	if err := codec.Put(codec.Default, q, inst); err != nil {
		return nil, err
	}
	return q.Bytes(), nil
}

func DecodeInstance(b []byte) (ServiceInstance, error) {
	v, err := codec.Get[ServiceInstance](codec.Default, queue.FromBytes(b))
	if err != nil {
		return ServiceInstance{}, err
	}
	if v == nil {
		return ServiceInstance{}, errors.New("registry: empty instance record")
	}
	return *v, nil
}
