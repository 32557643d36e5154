// ABOUTME: Tests for TOML config loading
// ABOUTME: Tests defaults, overrides, and validation failures
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
[link]
gateway = "192.168.4.1:8927"
network = "lab"
secret = "hunter2"

[beacon]
group = "239.1.1.1"
port = 5000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Link.Gateway != "192.168.4.1:8927" {
		t.Errorf("unexpected gateway: %q", cfg.Link.Gateway)
	}
	if cfg.Link.MaxConnectRetries != 5 {
		t.Errorf("expected default retries 5, got %d", cfg.Link.MaxConnectRetries)
	}
	if cfg.TimeSync.MaxPolls != 15 {
		t.Errorf("expected default max polls 15, got %d", cfg.TimeSync.MaxPolls)
	}
	if cfg.TimeSync.PollInterval() != 2*time.Second {
		t.Errorf("expected default poll interval 2s, got %v", cfg.TimeSync.PollInterval())
	}
	if len(cfg.TimeSync.Servers) != 1 || cfg.TimeSync.Servers[0] != "pool.ntp.org" {
		t.Errorf("unexpected default servers: %v", cfg.TimeSync.Servers)
	}
	if !cfg.Beacon.Multicast {
		t.Error("expected multicast enabled by default")
	}
	if cfg.Beacon.Addr() != "239.1.1.1:5000" {
		t.Errorf("unexpected beacon addr: %q", cfg.Beacon.Addr())
	}
}

func TestLoadServerFallbackOrder(t *testing.T) {
	path := writeConfig(t, `
[timesync]
servers = ["time.local", "pool.ntp.org", "time.google.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TimeSync.Servers[0] != "time.local" {
		t.Errorf("expected primary server first, got %v", cfg.TimeSync.Servers)
	}
	if len(cfg.TimeSync.Servers) != 3 {
		t.Errorf("expected 3 servers, got %d", len(cfg.TimeSync.Servers))
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero retries", "[link]\nmax_connect_retries = 0\n"},
		{"no servers", "[timesync]\nservers = []\n"},
		{"zero poll interval", "[timesync]\npoll_interval_ms = 0\n"},
		{"bad group", "[beacon]\ngroup = \"not-an-ip\"\n"},
		{"unicast group marked multicast", "[beacon]\ngroup = \"10.0.0.1\"\nmulticast = true\n"},
		{"bad port", "[beacon]\nport = 70000\n"},
	}

	for _, tc := range cases {
		path := writeConfig(t, tc.body)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
