// Package config provides configuration defaults and utilities
// for the treemon daemon.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default overlay listen address.
	// Override via config: node.listen
	DefaultListenAddress = "0.0.0.0:7946"

	// DefaultObserverAddress is where the root serves the observer API.
	// Override via config: observer.listen
	DefaultObserverAddress = "0.0.0.0:1871"

	// DefaultMaxMessageSize limits a single framed message to prevent OOM.
	// An aggregate with tens of thousands of names stays well below this.
	// Override via config: node.max_message_size
	DefaultMaxMessageSize = 16 * 1024 * 1024

	// DefaultDialTimeout bounds a single connection attempt to a peer.
	// Override via config: transport.dial_timeout
	DefaultDialTimeout = 2 * time.Second

	// DefaultControlQueueSize is the per-peer capacity for control messages
	// (reconfigure, member-dead, join). Aggregates use a one-slot mailbox.
	// Override via config: transport.control_queue_size
	DefaultControlQueueSize = 64
)

// =============================================================================
// Topology Defaults
// =============================================================================

const (
	// DefaultFanOut is the maximum number of children per overlay node.
	// 16 matches the historical join limit per parent.
	// Override via config: topology.fan_out
	DefaultFanOut = 16

	// MinFanOut is the smallest fan-out that still forms a tree.
	MinFanOut = 2
)

// =============================================================================
// Propagation Defaults
// =============================================================================

const (
	// DefaultTickInterval is how often a node recomputes and pushes its
	// aggregate to its parent.
	// Override via config: node.tick_interval
	DefaultTickInterval = time.Second

	// DefaultCounterCap is the per-node cap on distinct counter names.
	// Override via config: node.counter_cap
	DefaultCounterCap = 4096

	// DefaultEvictionPolicy decides what happens when the cap is hit.
	// "reject" surfaces ResourceExhausted, "lru" evicts the least recently
	// updated name.
	// Override via config: node.eviction
	DefaultEvictionPolicy = "reject"

	// DefaultMergePolicy applies to names with no configured policy and no
	// policy carried by their first observation.
	// Override via config: policies.default
	DefaultMergePolicy = "sum"
)

// =============================================================================
// Distribution Defaults
// =============================================================================

const (
	// DefaultDistributions enables per-name DDSketch distributions.
	// Override via config: distributions.enabled
	DefaultDistributions = true

	// DefaultSketchAccuracy is the relative accuracy of value distributions.
	// Override via config: distributions.accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Liveness Defaults
// =============================================================================

const (
	// DefaultLivenessMultiplier is k in timeout = k * tick_interval.
	// Override via config: liveness.k
	DefaultLivenessMultiplier = 3

	// DefaultReconnectBase is the first delay of the parent reconnect backoff.
	// Override via config: liveness.reconnect_base
	DefaultReconnectBase = 100 * time.Millisecond

	// DefaultReconnectMax caps the reconnect backoff.
	// Override via config: liveness.reconnect_max
	DefaultReconnectMax = 10 * time.Second

	// DefaultMaxReconnectAttempts is how many consecutive failed reconnects
	// turn a node into a disconnected sub-root. Attempts continue at the
	// capped delay afterwards.
	// Override via config: liveness.max_reconnect_attempts
	DefaultMaxReconnectAttempts = 5
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long Close waits for the final flush.
	// Override via config: node.drain_timeout
	DefaultDrainTimeout = 5 * time.Second
)

// =============================================================================
// Discovery Defaults
// =============================================================================

const (
	// DefaultEtcdPrefix is the key prefix for rank registrations.
	// Override via config: discovery.prefix
	DefaultEtcdPrefix = "/treemon"

	// DefaultEtcdLeaseTTL is the registration lease TTL in seconds.
	// Override via config: discovery.lease_ttl
	DefaultEtcdLeaseTTL = 10

	// DefaultEtcdDialTimeout bounds the initial etcd connection.
	DefaultEtcdDialTimeout = 5 * time.Second
)

// RootEnvVar carries the root's overlay address to spawned ranks.
const RootEnvVar = "TREEMON_ROOT"
