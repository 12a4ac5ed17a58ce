// Package loadbalance picks the instance that serves the next call.
//
//   - RoundRobin:      stateless services, equal-capacity instances
//   - WeightedRandom:  instances of different capacity
//   - ConsistentHash:  calls that should stick to one instance per key
package loadbalance

import "github.com/MechWipf/lrpc/registry"

// Balancer selects one instance out of the current list. Implementations are
// safe for concurrent use.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// KeyedBalancer routes by a caller-supplied key.
type KeyedBalancer interface {
	Balancer
	PickKey(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)
}

// ByName returns the balancer called name ("round_robin", "weighted_random"
// or "consistent_hash"). Unknown names fall back to round robin.
func ByName(name string) Balancer {
	switch name {
	case "weighted_random":
		return &WeightedRandom{}
	case "consistent_hash":
		return NewConsistentHash(0)
	default:
		return &RoundRobin{}
	}
}
