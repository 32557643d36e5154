// ABOUTME: TOML configuration for the timing beacon node
// ABOUTME: Loaded once at startup, immutable afterwards, shared by reference
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config aggregates all node configuration. It is constructed once by
// Load and never mutated afterwards; every component reads it only.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Link     LinkConfig     `toml:"link"`
	TimeSync TimeSyncConfig `toml:"timesync"`
	Beacon   BeaconConfig   `toml:"beacon"`
}

// NodeConfig holds node identity and local state settings
type NodeConfig struct {
	Name     string `toml:"name"`
	StateDir string `toml:"state_dir"`
}

// LinkConfig holds gateway association settings
type LinkConfig struct {
	Gateway           string `toml:"gateway"` // host:port, empty means discover via mDNS
	Network           string `toml:"network"`
	Secret            string `toml:"secret"`
	MaxConnectRetries int    `toml:"max_connect_retries"`
	RetryIntervalMs   int    `toml:"retry_interval_ms"`
}

// RetryInterval returns the pause between connect attempts
func (l LinkConfig) RetryInterval() time.Duration {
	return time.Duration(l.RetryIntervalMs) * time.Millisecond
}

// TimeSyncConfig holds SNTP client settings. Servers are tried in
// order: the first entry is primary, the rest are fallbacks.
type TimeSyncConfig struct {
	Servers        []string `toml:"servers"`
	PollIntervalMs int      `toml:"poll_interval_ms"`
	MaxPolls       int      `toml:"max_polls"`
	QueryTimeoutMs int      `toml:"query_timeout_ms"`
}

// PollInterval returns the fixed spacing between sync status polls
func (t TimeSyncConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// QueryTimeout returns the per-server SNTP query deadline
func (t TimeSyncConfig) QueryTimeout() time.Duration {
	return time.Duration(t.QueryTimeoutMs) * time.Millisecond
}

// BeaconConfig describes the multicast destination and socket options
type BeaconConfig struct {
	Group     string `toml:"group"`
	Port      int    `toml:"port"`
	Multicast bool   `toml:"multicast"`
	TTL       int    `toml:"ttl"`
	Loopback  bool   `toml:"loopback"`
}

// Addr returns the destination as host:port
func (b BeaconConfig) Addr() string {
	return net.JoinHostPort(b.Group, fmt.Sprintf("%d", b.Port))
}

// Default returns the built-in configuration, matching the values the
// node ships with when no config file is given.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			StateDir: ".",
		},
		Link: LinkConfig{
			MaxConnectRetries: 5,
			RetryIntervalMs:   1000,
		},
		TimeSync: TimeSyncConfig{
			Servers:        []string{"pool.ntp.org"},
			PollIntervalMs: 2000,
			MaxPolls:       15,
			QueryTimeoutMs: 5000,
		},
		Beacon: BeaconConfig{
			Group:     "239.1.1.1",
			Port:      5000,
			Multicast: true,
			TTL:       1,
			Loopback:  false,
		},
	}
}

// Load reads a TOML config file, applies defaults for unset fields,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the node cannot run with
func (c *Config) Validate() error {
	if c.Link.MaxConnectRetries < 1 {
		return fmt.Errorf("link.max_connect_retries must be >= 1, got %d", c.Link.MaxConnectRetries)
	}
	if c.Link.RetryIntervalMs < 0 {
		return fmt.Errorf("link.retry_interval_ms must not be negative, got %d", c.Link.RetryIntervalMs)
	}
	if len(c.TimeSync.Servers) == 0 {
		return fmt.Errorf("timesync.servers must list at least one server")
	}
	if c.TimeSync.MaxPolls < 1 {
		return fmt.Errorf("timesync.max_polls must be >= 1, got %d", c.TimeSync.MaxPolls)
	}
	if c.TimeSync.PollIntervalMs <= 0 {
		return fmt.Errorf("timesync.poll_interval_ms must be > 0, got %d", c.TimeSync.PollIntervalMs)
	}
	ip := net.ParseIP(c.Beacon.Group)
	if ip == nil {
		return fmt.Errorf("beacon.group is not a valid IP address: %q", c.Beacon.Group)
	}
	if c.Beacon.Multicast && !ip.IsMulticast() {
		return fmt.Errorf("beacon.group %s is not a multicast address", c.Beacon.Group)
	}
	if c.Beacon.Port < 1 || c.Beacon.Port > 65535 {
		return fmt.Errorf("beacon.port out of range: %d", c.Beacon.Port)
	}
	if c.Beacon.TTL < 0 || c.Beacon.TTL > 255 {
		return fmt.Errorf("beacon.ttl out of range: %d", c.Beacon.TTL)
	}
	return nil
}
