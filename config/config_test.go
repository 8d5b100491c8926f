package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msgproxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
proxy:
  host: 127.0.0.1
  port: 61000
heartbeat:
  interval: 2s
backends:
  - 127.0.0.1:9001
  - 127.0.0.1:9002
etcd:
  endpoints:
    - 127.0.0.1:2379
metrics:
  addr: :9100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr() != "127.0.0.1:61000" {
		t.Fatalf("expect 127.0.0.1:61000, got %s", cfg.ListenAddr())
	}
	if cfg.HeartbeatInterval() != 2*time.Second {
		t.Fatalf("expect 2s interval, got %v", cfg.HeartbeatInterval())
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("expect 2 seed backends, got %d", len(cfg.Backends))
	}
	if len(cfg.Etcd.Endpoints) != 1 {
		t.Fatalf("expect 1 etcd endpoint, got %d", len(cfg.Etcd.Endpoints))
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expect :9100, got %s", cfg.Metrics.Addr)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr() != "0.0.0.0:60000" {
		t.Fatalf("expect default listen address, got %s", cfg.ListenAddr())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expect error for missing config")
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeConfig(t, "proxy: [not a mapping")); err == nil {
		t.Fatal("expect error for malformed yaml")
	}
}

func TestLoadInvalidInterval(t *testing.T) {
	if _, err := Load(writeConfig(t, "heartbeat:\n  interval: soonish\n")); err == nil {
		t.Fatal("expect error for unparseable interval")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	if _, err := Load(writeConfig(t, "proxy:\n  port: 70000\n")); err == nil {
		t.Fatal("expect error for out-of-range port")
	}
}
