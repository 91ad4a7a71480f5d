// Package config loads runtime configuration from environment variables,
// with an optional .env file for local development, the same pattern the
// teacher's server variants use.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the proxy.
type Config struct {
	// Addr is the data-plane, control-plane, and status-plane listen address.
	Addr string `env:"STREAMPROXY_ADDR" envDefault:"0.0.0.0:8888"`

	// MetricsAddr serves /metrics on its own listener, matching the teacher's
	// separate metrics HTTP server.
	MetricsAddr string `env:"STREAMPROXY_METRICS_ADDR" envDefault:":9090"`

	// BroadcastBufferSize is the number of chunk slots in each channel's
	// broadcast ring.
	BroadcastBufferSize int `env:"STREAMPROXY_BROADCAST_BUFFER_SIZE" envDefault:"64"`

	// FailoverCap bounds the upstream failures a channel's Upstream Engine
	// tolerates over its lifetime before it exits.
	FailoverCap int `env:"STREAMPROXY_FAILOVER_CAP" envDefault:"10"`

	// KeepaliveInterval is the cadence of the TS null keepalive packet.
	KeepaliveInterval time.Duration `env:"STREAMPROXY_KEEPALIVE_INTERVAL" envDefault:"500ms"`

	// ShutdownDrainPeriod bounds how long graceful shutdown waits for
	// in-flight client sessions to finish before force-closing them. This is
	// a process-lifecycle knob, distinct from TeardownGracePeriod below.
	ShutdownDrainPeriod time.Duration `env:"STREAMPROXY_SHUTDOWN_DRAIN_PERIOD" envDefault:"30s"`

	// TeardownGracePeriod is parsed and validated as a duration but is not
	// consulted anywhere: an Upstream Engine is stopped as soon as its last
	// client detaches, whatever this is set to (see DESIGN.md).
	TeardownGracePeriod time.Duration `env:"STREAMPROXY_TEARDOWN_GRACE_PERIOD" envDefault:"0s"`

	// UpstreamReadBufferSize is parsed but not passed to the Upstream Engine,
	// which always reads up to 32KiB per Read() call, independent of the
	// 188KiB publish chunk.
	UpstreamReadBufferSize int `env:"STREAMPROXY_UPSTREAM_READ_BUFFER_SIZE" envDefault:"32768"`

	HTTPReadTimeout  time.Duration `env:"STREAMPROXY_HTTP_READ_TIMEOUT" envDefault:"10s"`
	HTTPWriteTimeout time.Duration `env:"STREAMPROXY_HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	HTTPIdleTimeout  time.Duration `env:"STREAMPROXY_HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	ResourceSampleInterval time.Duration `env:"STREAMPROXY_RESOURCE_SAMPLE_INTERVAL" envDefault:"15s"`

	LogLevel  string `env:"STREAMPROXY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STREAMPROXY_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and the process
// environment. Environment variables always win over .env file contents.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("STREAMPROXY_ADDR is required")
	}
	if c.BroadcastBufferSize < 1 {
		return fmt.Errorf("STREAMPROXY_BROADCAST_BUFFER_SIZE must be >= 1, got %d", c.BroadcastBufferSize)
	}
	if c.FailoverCap < 1 {
		return fmt.Errorf("STREAMPROXY_FAILOVER_CAP must be >= 1, got %d", c.FailoverCap)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("STREAMPROXY_LOG_LEVEL must be one of debug,info,warn,error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("STREAMPROXY_LOG_FORMAT must be one of json,pretty, got %q", c.LogFormat)
	}
	return nil
}
