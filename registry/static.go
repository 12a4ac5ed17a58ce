package registry

import (
	"context"
	"slices"
	"sync"
)

// Static is an in-process Registry. TTLs are ignored. It serves tests and
// fixed deployments that list their servers in configuration.
type Static struct {
	mu       sync.Mutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStatic() *Static {
	return &Static{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (s *Static) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.services[serviceName]
	i := slices.IndexFunc(list, func(in ServiceInstance) bool { return in.Addr == instance.Addr })
	if i >= 0 {
		list[i] = instance
	} else {
		list = append(list, instance)
	}
	s.services[serviceName] = list
	s.notify(serviceName)
	return nil
}

func (s *Static) Deregister(_ context.Context, serviceName string, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[serviceName] = slices.DeleteFunc(s.services[serviceName], func(in ServiceInstance) bool {
		return in.Addr == addr
	})
	s.notify(serviceName)
	return nil
}

func (s *Static) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.services[serviceName]), nil
}

// Watch sends the current list right away, then again after every change.
// A watcher that falls behind only sees the newest list.
func (s *Static) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	s.mu.Lock()
	s.watchers[serviceName] = append(s.watchers[serviceName], ch)
	ch <- slices.Clone(s.services[serviceName])
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.watchers[serviceName] = slices.DeleteFunc(s.watchers[serviceName], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		close(ch)
	}()
	return ch
}

// notify must be called with s.mu held.
func (s *Static) notify(serviceName string) {
	for _, ch := range s.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(s.services[serviceName])
	}
}

func (s *Static) Close() error { return nil }
