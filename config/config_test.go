package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lrpcd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 16<<20, cfg.Server.MaxFrameSize)
	assert.Equal(t, 1024, cfg.Server.ReadBufferSize)
}

func TestLoadOverlay(t *testing.T) {
	path := writeFile(t, `
[server]
port = 7000
shutdown_timeout = "3s"

[log]
level = "debug"
format = "json"

[registry]
endpoints = ["127.0.0.1:2379"]
advertise = "10.0.0.1:7000"

[limits]
timeout = "250ms"
rate = 100.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 1024, cfg.Server.ReadBufferSize, "untouched keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "lrpc", cfg.Registry.Service)
	assert.Equal(t, 250*time.Millisecond, cfg.Limits.Timeout)
	assert.Equal(t, 1, cfg.Limits.Burst, "burst filled in when a rate is set")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, writeFile(t, "[server]\nport = 7100\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "[server]\nprot = 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.prot")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	cfg.Log.Level = "loud"
	cfg.Registry.Endpoints = []string{"etcd:2379"}
	err := cfg.Validate()
	require.Error(t, err)
	// port, level and the missing advertise address
	assert.Len(t, multierr.Errors(err), 3)
}
