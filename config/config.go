// Package config loads the proxy configuration from a YAML file. A missing
// or unparseable file is fatal at startup — the proxy never runs on guessed
// settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the proxy's listening port when the file does not set one.
const DefaultPort = 60000

// Config is the full on-disk configuration.
type Config struct {
	Proxy struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"proxy"`

	Heartbeat struct {
		// Interval is a Go duration string, e.g. "5s". Empty selects the
		// membership manager's default.
		Interval string `yaml:"interval"`
	} `yaml:"heartbeat"`

	// Backends seeds the pool with replicas provisioned ahead of the
	// proxy, as host:port strings. Optional — replicas normally
	// self-register over the wire.
	Backends []string `yaml:"backends"`

	Etcd struct {
		Endpoints []string `yaml:"endpoints"`
	} `yaml:"etcd"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Proxy.Host == "" {
		cfg.Proxy.Host = "0.0.0.0"
	}
	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = DefaultPort
	}
	if cfg.Proxy.Port < 1 || cfg.Proxy.Port > 65535 {
		return nil, fmt.Errorf("config %s: invalid proxy.port %d", path, cfg.Proxy.Port)
	}
	if cfg.Heartbeat.Interval != "" {
		if _, err := time.ParseDuration(cfg.Heartbeat.Interval); err != nil {
			return nil, fmt.Errorf("config %s: invalid heartbeat.interval: %w", path, err)
		}
	}
	return cfg, nil
}

// HeartbeatInterval returns the parsed sweep interval, 0 when unset.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.Heartbeat.Interval == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Heartbeat.Interval)
	return d
}

// ListenAddr returns the proxy's host:port listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Proxy.Host, c.Proxy.Port)
}
