// Package loader - Configuration Types
//
// Defines the YAML configuration structure for treemond.
//
//	node:           identity, overlay listener, tick, counter table
//	topology:       fan-out, static participant list, expected ranks
//	liveness:       child timeout multiplier, parent reconnect backoff
//	transport:      dial timeout, control queue
//	policies:       default and per-name merge policies
//	distributions:  per-name value sketches
//	observer:       HTTP read API (root only)
//	discovery:      etcd rank registry
//	log:            level and format
package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/discovery"
	"github.com/xtxerr/treemon/internal/wire"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for treemond.
type Config struct {
	Node          NodeConfig          `yaml:"node"`
	Topology      TopologyConfig      `yaml:"topology"`
	Liveness      LivenessConfig      `yaml:"liveness"`
	Transport     TransportConfig     `yaml:"transport"`
	Policies      PoliciesConfig      `yaml:"policies"`
	Distributions DistributionsConfig `yaml:"distributions"`
	Observer      ObserverConfig      `yaml:"observer"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Log           LogConfig           `yaml:"log"`
}

// =============================================================================
// Sections
// =============================================================================

// NodeConfig describes this rank.
type NodeConfig struct {
	// ID is the participant ID. Defaults to the hostname.
	ID string `yaml:"id"`

	// Listen is the overlay listen address.
	// Default: "0.0.0.0:7946"
	Listen string `yaml:"listen"`

	// Advertise is the address other ranks dial. Defaults to Listen.
	Advertise string `yaml:"advertise"`

	// TickInterval is the propagation period.
	// Default: 1s
	TickInterval Duration `yaml:"tick_interval"`

	// CounterCap limits distinct counter names per node.
	// Default: 4096
	CounterCap int `yaml:"counter_cap"`

	// Eviction is "reject" or "lru".
	// Default: "reject"
	Eviction string `yaml:"eviction"`

	// MaxMessageSize limits one framed message.
	// Default: 16MB
	MaxMessageSize ByteSize `yaml:"max_message_size"`

	// DrainTimeout bounds the final flush on shutdown.
	// Default: 5s
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// TopologyConfig describes the tree.
type TopologyConfig struct {
	// FanOut is the maximum number of children per node.
	// Default: 16
	FanOut int `yaml:"fan_out"`

	// Participants is the static, ordered member list. The first entry is
	// the root. Each item is "id=addr".
	Participants []string `yaml:"participants"`

	// Expect is how many ranks besides itself the root waits for before
	// serving observers. 0 serves immediately.
	Expect int `yaml:"expect"`
}

// LivenessConfig configures failure detection.
type LivenessConfig struct {
	// K is the child timeout multiplier: timeout = K * tick_interval.
	// Default: 3
	K int `yaml:"k"`

	// ReconnectBase is the first reconnect delay.
	// Default: 100ms
	ReconnectBase Duration `yaml:"reconnect_base"`

	// ReconnectMax caps the reconnect delay.
	// Default: 10s
	ReconnectMax Duration `yaml:"reconnect_max"`

	// MaxReconnectAttempts before the node becomes a disconnected sub-root.
	// Default: 5
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// TransportConfig configures peer connections.
type TransportConfig struct {
	// DialTimeout bounds one connection attempt.
	// Default: 2s
	DialTimeout Duration `yaml:"dial_timeout"`

	// ControlQueueSize bounds queued control messages per peer.
	// Default: 64
	ControlQueueSize int `yaml:"control_queue_size"`
}

// PoliciesConfig configures merge policies.
type PoliciesConfig struct {
	// Default applies to names without a binding.
	// Default: "sum"
	Default string `yaml:"default"`

	// Names binds counter names to policies (sum, min, max, last, count).
	Names map[string]string `yaml:"names"`
}

// DistributionsConfig configures value sketches.
type DistributionsConfig struct {
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy of quantiles.
	// Default: 0.01
	Accuracy float64 `yaml:"accuracy"`
}

// ObserverConfig configures the HTTP read API.
type ObserverConfig struct {
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Listen is the observer address.
	// Default: "0.0.0.0:1871"
	Listen string `yaml:"listen"`
}

// DiscoveryConfig configures the etcd rank registry. Discovery is off
// unless Endpoints is set.
type DiscoveryConfig struct {
	Endpoints []string `yaml:"endpoints"`

	// Prefix is the key prefix.
	// Default: "/treemon"
	Prefix string `yaml:"prefix"`

	// Rank orders this process among registered ranks. Rank 0 is the root.
	Rank int `yaml:"rank"`

	// LeaseTTL in seconds.
	// Default: 10
	LeaseTTL int64 `yaml:"lease_ttl"`
}

// Enabled reports whether etcd discovery is configured.
func (d DiscoveryConfig) Enabled() bool {
	return len(d.Endpoints) > 0
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "text", "json" or "auto" (json when stderr is not a
	// terminal).
	// Default: "auto"
	Format string `yaml:"format"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Listen:         config.DefaultListenAddress,
			TickInterval:   Duration(config.DefaultTickInterval),
			CounterCap:     config.DefaultCounterCap,
			Eviction:       config.DefaultEvictionPolicy,
			MaxMessageSize: ByteSize(config.DefaultMaxMessageSize),
			DrainTimeout:   Duration(config.DefaultDrainTimeout),
		},
		Topology: TopologyConfig{
			FanOut: config.DefaultFanOut,
		},
		Liveness: LivenessConfig{
			K:                    config.DefaultLivenessMultiplier,
			ReconnectBase:        Duration(config.DefaultReconnectBase),
			ReconnectMax:         Duration(config.DefaultReconnectMax),
			MaxReconnectAttempts: config.DefaultMaxReconnectAttempts,
		},
		Transport: TransportConfig{
			DialTimeout:      Duration(config.DefaultDialTimeout),
			ControlQueueSize: config.DefaultControlQueueSize,
		},
		Policies: PoliciesConfig{
			Default: config.DefaultMergePolicy,
		},
		Distributions: DistributionsConfig{
			Enabled:  config.DefaultDistributions,
			Accuracy: config.DefaultSketchAccuracy,
		},
		Observer: ObserverConfig{
			Enabled: true,
			Listen:  config.DefaultObserverAddress,
		},
		Discovery: DiscoveryConfig{
			Prefix:   config.DefaultEtcdPrefix,
			LeaseTTL: config.DefaultEtcdLeaseTTL,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	// Plain numbers are seconds.
	if secs, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "16MB", "1GB", "500KB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// parseByteSize parses a size string like "16MB" or "1GB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	// Longest suffixes first so "MB" is not read as "B".
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.multiplier, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// =============================================================================
// Helper Functions
// =============================================================================

// ParticipantList parses the static participant list.
func (c *Config) ParticipantList() ([]wire.Participant, error) {
	out := make([]wire.Participant, 0, len(c.Topology.Participants))
	for i, s := range c.Topology.Participants {
		p, err := discovery.DecodeParticipant(s)
		if err != nil {
			return nil, fmt.Errorf("topology.participants[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
