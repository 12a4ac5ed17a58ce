// Package config loads the lrpcd configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

// EnvConfigPath names the variable consulted when Load gets an empty path.
const EnvConfigPath = "LRPC_CONFIG"

// Config is the root configuration of lrpcd.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Registry RegistryConfig `toml:"registry"`
	Limits   LimitsConfig   `toml:"limits"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type ServerConfig struct {
	Port int `toml:"port"`
	// MaxFrameSize caps a single payload in bytes; 0 disables the cap.
	MaxFrameSize    int           `toml:"max_frame_size"`
	ReadBufferSize  int           `toml:"read_buffer_size"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `toml:"level"`
	// Format: console or json
	Format string `toml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `toml:"outputs"`
	Rotation    RotationConfig `toml:"rotation"`
	Development bool           `toml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `toml:"enable"`
	Filename   string `toml:"filename"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// RegistryConfig enables etcd service registration when Endpoints is set.
type RegistryConfig struct {
	Endpoints   []string      `toml:"endpoints"`
	Service     string        `toml:"service"`
	Advertise   string        `toml:"advertise"`
	TTL         int64         `toml:"ttl"`
	DialTimeout time.Duration `toml:"dial_timeout"`
}

// LimitsConfig configures the invoker middleware. Zero values disable the
// corresponding middleware.
type LimitsConfig struct {
	Timeout time.Duration `toml:"timeout"`
	Rate    float64       `toml:"rate"`
	Burst   int           `toml:"burst"`
}

type MetricsConfig struct {
	Enable   bool          `toml:"enable"`
	Service  string        `toml:"service"`
	Interval time.Duration `toml:"interval"`
	Retain   time.Duration `toml:"retain"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9090,
			MaxFrameSize:    16 << 20,
			ReadBufferSize:  1024,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				Filename:   "logs/lrpcd.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Registry: RegistryConfig{
			Service:     "lrpc",
			TTL:         10,
			DialTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enable:   true,
			Service:  "lrpcd",
			Interval: 10 * time.Second,
			Retain:   time.Minute,
		},
	}
}

// Load reads the file at path over the defaults. With an empty path it uses
// $LRPC_CONFIG, and with neither it returns the defaults. Unknown keys are
// rejected so typos do not pass silently.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and fills blanks that have an obvious value.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxFrameSize < 0 {
		errs = append(errs, fmt.Errorf("server.max_frame_size must not be negative: %d", c.Server.MaxFrameSize))
	}
	if c.Server.ReadBufferSize <= 0 {
		c.Server.ReadBufferSize = 1024
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if len(c.Registry.Endpoints) > 0 {
		if strings.TrimSpace(c.Registry.Service) == "" {
			errs = append(errs, errors.New("registry.service is required with registry.endpoints"))
		}
		if strings.TrimSpace(c.Registry.Advertise) == "" {
			errs = append(errs, errors.New("registry.advertise is required with registry.endpoints"))
		}
		if c.Registry.TTL <= 0 {
			errs = append(errs, fmt.Errorf("registry.ttl must be positive: %d", c.Registry.TTL))
		}
	}

	if c.Limits.Rate < 0 || c.Limits.Burst < 0 {
		errs = append(errs, errors.New("limits.rate and limits.burst must not be negative"))
	}
	if c.Limits.Rate > 0 && c.Limits.Burst == 0 {
		c.Limits.Burst = 1
	}
	return multierr.Combine(errs...)
}
