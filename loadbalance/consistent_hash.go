package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/MechWipf/lrpc/registry"
)

const defaultReplicas = 100

// ConsistentHash maps keys to instances on a hash ring. The same key maps to
// the same instance for as long as the instance list does not change, and a
// change only moves the keys of the instances that came or went.
//
// Each instance gets a number of virtual nodes, hashed from "{addr}#{i}", so
// that a few instances still spread evenly over the ring.
type ConsistentHash struct {
	replicas int

	mu        sync.Mutex
	signature string
	ring      []uint32
	nodes     map[uint32]registry.ServiceInstance
}

// NewConsistentHash builds an empty ring with replicas virtual nodes per
// instance; zero or less means 100.
func NewConsistentHash(replicas int) *ConsistentHash {
	if replicas <= 0 {
		replicas = defaultReplicas
	}
	return &ConsistentHash{replicas: replicas, nodes: make(map[uint32]registry.ServiceInstance)}
}

// Pick routes the empty key, which pins every unkeyed call to one instance.
func (b *ConsistentHash) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	return b.PickKey(instances, "")
}

// PickKey finds the first virtual node at or after the key's hash, wrapping
// around the ring. The ring is rebuilt when the instance list changes.
func (b *ConsistentHash) PickKey(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuild(instances)

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHash) rebuild(instances []registry.ServiceInstance) {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	sig := strings.Join(addrs, ",")
	if sig == b.signature && len(b.ring) > 0 {
		return
	}

	b.signature = sig
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	slices.Sort(b.ring)
}

func (b *ConsistentHash) Name() string {
	return "ConsistentHash"
}
