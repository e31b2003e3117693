// Package loader handles configuration file loading, validation, and
// conversion to runtime options.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Applying command-line overrides
//   - Converting the configuration into node and transport options
package loader

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/counter"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/transport"
	"github.com/xtxerr/treemon/internal/validation"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration on top of the defaults. ${VAR} references
// are expanded from the environment first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %v: %w", err, errors.ErrInvalidConfig)
	}
	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Node.ID != "" {
		if err := validation.ParticipantID(cfg.Node.ID); err != nil {
			errs.AddField("node.id", err.Error())
		}
	}
	if cfg.Node.Listen == "" {
		errs.AddField("node.listen", "cannot be empty")
	}
	if cfg.Node.TickInterval.Duration() <= 0 {
		errs.AddField("node.tick_interval", "must be positive")
	}
	if cfg.Node.CounterCap < 0 {
		errs.AddField("node.counter_cap", "cannot be negative")
	}
	if _, err := counter.ParseEvictionPolicy(cfg.Node.Eviction); err != nil {
		errs.AddField("node.eviction", fmt.Sprintf("unknown policy %q", cfg.Node.Eviction))
	}
	if cfg.Node.MaxMessageSize.Bytes() <= 0 {
		errs.AddField("node.max_message_size", "must be positive")
	}

	if cfg.Topology.FanOut < config.MinFanOut {
		errs.Add(fmt.Errorf("topology.fan_out: %d: %w", cfg.Topology.FanOut, errors.ErrInvalidFanOut))
	}
	if cfg.Topology.Expect < 0 {
		errs.AddField("topology.expect", "cannot be negative")
	}
	if ps, err := cfg.ParticipantList(); err != nil {
		errs.AddField("topology.participants", err.Error())
	} else {
		seen := make(map[string]bool, len(ps))
		for _, p := range ps {
			if seen[p.ID] {
				errs.AddField("topology.participants", fmt.Sprintf("duplicate id %q", p.ID))
			}
			seen[p.ID] = true
		}
	}

	if cfg.Liveness.K < 1 {
		errs.AddField("liveness.k", "must be at least 1")
	}
	if cfg.Liveness.ReconnectBase.Duration() <= 0 {
		errs.AddField("liveness.reconnect_base", "must be positive")
	}
	if cfg.Liveness.ReconnectMax < cfg.Liveness.ReconnectBase {
		errs.AddField("liveness.reconnect_max", "must not be below reconnect_base")
	}
	if cfg.Liveness.MaxReconnectAttempts < 1 {
		errs.AddField("liveness.max_reconnect_attempts", "must be at least 1")
	}

	if _, err := aggregate.ParsePolicy(cfg.Policies.Default); err != nil {
		errs.AddField("policies.default", fmt.Sprintf("unknown policy %q", cfg.Policies.Default))
	}
	for name, p := range cfg.Policies.Names {
		if name == "" {
			errs.AddField("policies.names", "name cannot be empty")
			continue
		}
		if _, err := aggregate.ParsePolicy(p); err != nil {
			errs.AddField("policies.names."+name, fmt.Sprintf("unknown policy %q", p))
		}
	}

	if cfg.Distributions.Enabled && (cfg.Distributions.Accuracy <= 0 || cfg.Distributions.Accuracy >= 1) {
		errs.AddField("distributions.accuracy", "must be in (0, 1)")
	}

	if cfg.Observer.Enabled && cfg.Observer.Listen == "" {
		errs.AddField("observer.listen", "cannot be empty when enabled")
	}

	if cfg.Discovery.Enabled() {
		if cfg.Discovery.Rank < 0 {
			errs.AddField("discovery.rank", "cannot be negative")
		}
		if cfg.Discovery.LeaseTTL <= 0 {
			errs.AddField("discovery.lease_ttl", "must be positive")
		}
	}

	switch cfg.Log.Format {
	case "", "auto", "text", "json":
	default:
		errs.AddField("log.format", fmt.Sprintf("unknown format %q", cfg.Log.Format))
	}

	return errs.Err()
}

// =============================================================================
// Command-line overrides
// =============================================================================

// Flags holds command-line overrides. Only flags that were set on the
// command line replace configuration values.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath string

	id           string
	listen       string
	advertise    string
	participants string
	fanOut       int
	expect       int
	tick         time.Duration
	k            int
	observer     string
	noObserver   bool
	etcd         []string
	rank         int
	logLevel     string
	logFormat    string
}

// RegisterFlags registers the override flags on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to YAML configuration")
	fs.StringVar(&f.id, "id", "", "participant ID (default: hostname)")
	fs.StringVar(&f.listen, "listen", "", "overlay listen address")
	fs.StringVar(&f.advertise, "advertise", "", "address other ranks dial")
	fs.StringVar(&f.participants, "participants", "", "static participant list id=addr,... (first is root)")
	fs.IntVarP(&f.fanOut, "fan-out", "f", 0, "maximum children per node")
	fs.IntVarP(&f.expect, "expect", "n", 0, "ranks the root waits for before serving observers")
	fs.DurationVar(&f.tick, "tick", 0, "propagation interval")
	fs.IntVar(&f.k, "liveness-k", 0, "child timeout multiplier")
	fs.StringVar(&f.observer, "observer", "", "observer listen address")
	fs.BoolVar(&f.noObserver, "no-observer", false, "disable the observer API")
	fs.StringSliceVar(&f.etcd, "etcd", nil, "etcd endpoints for rank discovery")
	fs.IntVar(&f.rank, "rank", 0, "rank in etcd discovery (0 is the root)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "log format (auto, text, json)")
	return f
}

// Apply copies the flags that were set into cfg.
func (f *Flags) Apply(cfg *Config) {
	changed := f.fs.Changed

	if changed("id") {
		cfg.Node.ID = f.id
	}
	if changed("listen") {
		cfg.Node.Listen = f.listen
	}
	if changed("advertise") {
		cfg.Node.Advertise = f.advertise
	}
	if changed("participants") {
		cfg.Topology.Participants = splitList(f.participants)
	}
	if changed("fan-out") {
		cfg.Topology.FanOut = f.fanOut
	}
	if changed("expect") {
		cfg.Topology.Expect = f.expect
	}
	if changed("tick") {
		cfg.Node.TickInterval = Duration(f.tick)
	}
	if changed("liveness-k") {
		cfg.Liveness.K = f.k
	}
	if changed("observer") {
		cfg.Observer.Listen = f.observer
	}
	if changed("no-observer") {
		cfg.Observer.Enabled = !f.noObserver
	}
	if changed("etcd") {
		cfg.Discovery.Endpoints = f.etcd
	}
	if changed("rank") {
		cfg.Discovery.Rank = f.rank
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
}

func splitList(s string) []string {
	var out []string
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

// =============================================================================
// Conversion
// =============================================================================

// NodeOptions converts the configuration into overlay node options using tr
// as transport. The configuration must have passed Validate.
func NodeOptions(cfg *Config, tr transport.Transport) (overlay.Options, error) {
	eviction, err := counter.ParseEvictionPolicy(cfg.Node.Eviction)
	if err != nil {
		return overlay.Options{}, err
	}
	def, err := aggregate.ParsePolicy(cfg.Policies.Default)
	if err != nil {
		return overlay.Options{}, err
	}
	policies := make(map[string]aggregate.Policy, len(cfg.Policies.Names))
	for name, s := range cfg.Policies.Names {
		p, err := aggregate.ParsePolicy(s)
		if err != nil {
			return overlay.Options{}, fmt.Errorf("policies.names.%s: %w", name, err)
		}
		policies[name] = p
	}

	backoff := liveness.DefaultBackoff()
	backoff.Base = cfg.Liveness.ReconnectBase.Duration()
	backoff.Max = cfg.Liveness.ReconnectMax.Duration()

	return overlay.Options{
		Transport:            tr,
		TickInterval:         cfg.Node.TickInterval.Duration(),
		LivenessMultiplier:   cfg.Liveness.K,
		CounterCap:           cfg.Node.CounterCap,
		Eviction:             eviction,
		Policies:             policies,
		DefaultPolicy:        def,
		Distributions:        cfg.Distributions.Enabled,
		SketchAccuracy:       cfg.Distributions.Accuracy,
		Backoff:              backoff,
		MaxReconnectAttempts: cfg.Liveness.MaxReconnectAttempts,
	}, nil
}

// TCPConfig converts the configuration into TCP transport settings for id.
func TCPConfig(cfg *Config, id string) transport.TCPConfig {
	return transport.TCPConfig{
		ID:             id,
		ListenAddr:     cfg.Node.Listen,
		AdvertiseAddr:  cfg.Node.Advertise,
		MaxMessageSize: int(cfg.Node.MaxMessageSize.Bytes()),
		DialTimeout:    cfg.Transport.DialTimeout.Duration(),
		ControlQueue:   cfg.Transport.ControlQueueSize,
	}
}
