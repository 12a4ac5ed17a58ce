package loadbalance

import (
	"math/rand/v2"

	"github.com/MechWipf/lrpc/registry"
)

// WeightedRandom picks an instance with probability proportional to its
// Weight. Instances with no positive weight are picked only when every
// weight is zero, and then uniformly.
type WeightedRandom struct{}

func (b *WeightedRandom) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}
	total := 0
	for _, v := range instances {
		total += max(v.Weight, 0)
	}
	if total == 0 {
		return &instances[rand.IntN(len(instances))], nil
	}

	r := rand.IntN(total)
	for i := range instances {
		r -= max(instances[i].Weight, 0)
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}
