// Package netconfig loads a MAVLink network topology from YAML: the
// system identity, heartbeat and peer-timeout behavior, retry strategy,
// and the list of endpoints to connect, translating each into the
// gomavlib types that build a Node or a Network.
package netconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flightwire/gomavlib"
	"github.com/flightwire/gomavlib/pkg/dialects/minimal"
)

// Config describes a network of MAVLink endpoints.
type Config struct {
	System         SystemConfig     `yaml:"system"`
	Heartbeat      HeartbeatConfig  `yaml:"heartbeat"`
	Peer           PeerConfig       `yaml:"peer"`
	Retry          RetryConfig      `yaml:"retry"`
	StopOnNodeDown bool             `yaml:"stop_on_node_down"`
	Endpoints      []EndpointConfig `yaml:"endpoints"`
}

// SystemConfig identifies this node on the MAVLink network.
type SystemConfig struct {
	SystemID    uint8 `yaml:"system_id"`
	ComponentID uint8 `yaml:"component_id"`
}

// HeartbeatConfig controls periodic HEARTBEAT emission.
type HeartbeatConfig struct {
	Enabled     bool    `yaml:"enabled"`
	IntervalSec float64 `yaml:"interval_sec"`
}

// PeerConfig controls how long a peer may go silent before it is
// considered lost.
type PeerConfig struct {
	TimeoutSec float64 `yaml:"timeout_sec"`
	Tolerance  float64 `yaml:"tolerance"`
}

// RetryConfig controls whether a Network reconnects a sub-node whose
// transport has gone down. Strategy is one of "never", "attempts",
// "always".
type RetryConfig struct {
	Strategy    string  `yaml:"strategy"`
	Attempts    int     `yaml:"attempts"`
	IntervalSec float64 `yaml:"interval_sec"`
}

// EndpointConfig describes one transport to connect. Kind is one of
// "tcp_server", "tcp_client", "serial".
type EndpointConfig struct {
	Kind     string `yaml:"kind"`
	Address  string `yaml:"address"`
	Path     string `yaml:"path"`
	BaudRate uint32 `yaml:"baud_rate"`
}

// Load reads, defaults, and validates a Config from a YAML file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("netconfig: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("netconfig: parse %s: %w", filename, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("netconfig: invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.System.ComponentID == 0 {
		c.System.ComponentID = 1
	}
	if c.Heartbeat.IntervalSec <= 0 {
		c.Heartbeat.IntervalSec = 1
	}
	if c.Peer.TimeoutSec <= 0 {
		c.Peer.TimeoutSec = 10
	}
	if c.Peer.Tolerance <= 0 {
		c.Peer.Tolerance = 2.5
	}
	if c.Retry.Strategy == "" {
		c.Retry.Strategy = "never"
	}
}

// Validate checks that Config describes a connectable network.
func (c *Config) Validate() error {
	if c.System.SystemID == 0 {
		return fmt.Errorf("system.system_id must be set")
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for i, ep := range c.Endpoints {
		if err := ep.validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
	}
	switch c.Retry.Strategy {
	case "never", "attempts", "always":
	default:
		return fmt.Errorf("retry.strategy must be one of never, attempts, always")
	}
	return nil
}

func (e EndpointConfig) validate() error {
	switch e.Kind {
	case "tcp_server", "tcp_client":
		if e.Address == "" {
			return fmt.Errorf("address is required for %s endpoints", e.Kind)
		}
	case "serial":
		if e.Path == "" {
			return fmt.Errorf("path is required for serial endpoints")
		}
		if e.BaudRate == 0 {
			return fmt.Errorf("baud_rate is required for serial endpoints")
		}
	default:
		return fmt.Errorf("unknown endpoint kind %q", e.Kind)
	}
	return nil
}

// Save writes Config back to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("netconfig: marshal: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("netconfig: write %s: %w", filename, err)
	}
	return nil
}

// Endpoint builds the gomavlib.EndpointConf this entry describes.
func (e EndpointConfig) Endpoint() (gomavlib.EndpointConf, error) {
	switch e.Kind {
	case "tcp_server":
		return gomavlib.EndpointTCPServer{Address: e.Address}, nil
	case "tcp_client":
		return gomavlib.EndpointTCPClient{Address: e.Address}, nil
	case "serial":
		return gomavlib.EndpointSerial{Path: e.Path, BaudRate: e.BaudRate}, nil
	default:
		return nil, fmt.Errorf("netconfig: unknown endpoint kind %q", e.Kind)
	}
}

// Endpoints builds every gomavlib.EndpointConf described by Config.
func (c *Config) Endpoints() ([]gomavlib.EndpointConf, error) {
	out := make([]gomavlib.EndpointConf, 0, len(c.Endpoints))
	for _, e := range c.Endpoints {
		ep, err := e.Endpoint()
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

// RetryStrategy builds the gomavlib.RetryStrategy described by Retry.
func (c *Config) RetryStrategy() gomavlib.RetryStrategy {
	interval := time.Duration(c.Retry.IntervalSec * float64(time.Second))
	switch c.Retry.Strategy {
	case "attempts":
		return gomavlib.RetryAttempts(c.Retry.Attempts, interval)
	case "always":
		return gomavlib.RetryAlways(interval)
	default:
		return gomavlib.RetryNever()
	}
}

// NodeConf builds the gomavlib.NodeConf this Config describes, for a
// single standalone Edge node.
func (c *Config) NodeConf() gomavlib.NodeConf {
	return gomavlib.NodeConf{
		SystemID:      c.System.SystemID,
		ComponentID:   c.System.ComponentID,
		Kind:          gomavlib.NodeEdge,
		PeerTimeout:   time.Duration(c.Peer.TimeoutSec * float64(time.Second)),
		PeerTolerance: c.Peer.Tolerance,
		Heartbeat: gomavlib.HeartbeatConf{
			Enabled:      c.Heartbeat.Enabled,
			Interval:     time.Duration(c.Heartbeat.IntervalSec * float64(time.Second)),
			Autopilot:    minimal.MavAutopilotInvalid,
			MavType:      minimal.MavTypeGCS,
			SystemStatus: minimal.MavStateActive,
		},
	}
}

// NetworkConf builds the gomavlib.NetworkConf this Config describes, for
// aggregating every endpoint under one Network. An entry whose kind
// Endpoint cannot build is left out; Validate rejects such entries.
func (c *Config) NetworkConf() gomavlib.NetworkConf {
	endpoints := make([]gomavlib.EndpointConf, 0, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if ep, err := e.Endpoint(); err == nil {
			endpoints = append(endpoints, ep)
		}
	}
	return gomavlib.NetworkConf{
		Retry:          c.RetryStrategy(),
		StopOnNodeDown: c.StopOnNodeDown,
		Endpoints:      endpoints,
		NodeConf: gomavlib.NodeConf{
			SystemID:      c.System.SystemID,
			ComponentID:   c.System.ComponentID,
			PeerTimeout:   time.Duration(c.Peer.TimeoutSec * float64(time.Second)),
			PeerTolerance: c.Peer.Tolerance,
		},
	}
}
