package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// etcdEndpoints returns the endpoints in LRPC_ETCD_ENDPOINTS or skips.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	v := os.Getenv("LRPC_ETCD_ENDPOINTS")
	if v == "" {
		t.Skip("LRPC_ETCD_ENDPOINTS not set")
	}
	return strings.Split(v, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	service := "lrpc-test-" + t.Name()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}
	require.NoError(t, reg.Register(ctx, service, inst1, 10))
	require.NoError(t, reg.Register(ctx, service, inst2, 10))

	instances, err := reg.Discover(ctx, service)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ServiceInstance{inst1, inst2}, instances)

	require.NoError(t, reg.Deregister(ctx, service, inst1.Addr))
	instances, err = reg.Discover(ctx, service)
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{inst2}, instances)

	require.NoError(t, reg.Deregister(ctx, service, inst2.Addr))
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	service := "lrpc-test-" + t.Name()

	ch := reg.Watch(ctx, service)
	time.Sleep(100 * time.Millisecond)
	inst := ServiceInstance{Addr: "127.0.0.1:8003"}
	require.NoError(t, reg.Register(ctx, service, inst, 10))
	defer reg.Deregister(context.Background(), service, inst.Addr)

	select {
	case list := <-ch:
		assert.Contains(t, list, inst)
	case <-ctx.Done():
		t.Fatal("no watch event")
	}
}
