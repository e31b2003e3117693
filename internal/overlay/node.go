// Package overlay implements a node of the tree-based overlay network.
//
// A node owns a counter table, keeps the latest aggregate table reported by
// each child, and on every tick merges both into its own aggregate table,
// which it publishes locally and sends to its parent. The root's table is
// the aggregate of the whole tree.
//
// Node states:
//
//	INITIALIZING --attach--> ACTIVE --rebuild--> DRAINING --switch--> ACTIVE
//	      any state --Close--> CLOSED
package overlay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/counter"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/telemetry"
	"github.com/xtxerr/treemon/internal/topology"
	"github.com/xtxerr/treemon/internal/transport"
	"github.com/xtxerr/treemon/internal/validation"
	"github.com/xtxerr/treemon/internal/wire"
)

var log = logging.Component("overlay")

// =============================================================================
// Types
// =============================================================================

// State is the lifecycle state of a node.
type State uint32

const (
	StateInitializing State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Membership receives membership changes at the root.
type Membership interface {
	ReportDead(ctx context.Context, ids ...string) error
	Join(ctx context.Context, p wire.Participant) error
}

// Options configures a node. Zero values take the defaults from the config
// package.
type Options struct {
	Transport transport.Transport

	TickInterval       time.Duration
	LivenessMultiplier int

	CounterCap int
	Eviction   counter.EvictionPolicy

	// Policies binds names to merge policies up front.
	Policies      map[string]aggregate.Policy
	DefaultPolicy aggregate.Policy

	Distributions  bool
	SketchAccuracy float64

	Backoff              liveness.Backoff
	MaxReconnectAttempts int

	// Now and Sleep are replaced by tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = config.DefaultTickInterval
	}
	if o.LivenessMultiplier <= 0 {
		o.LivenessMultiplier = config.DefaultLivenessMultiplier
	}
	if o.Eviction == "" {
		o.Eviction = counter.EvictReject
	}
	if !o.DefaultPolicy.Valid() {
		o.DefaultPolicy = aggregate.PolicySum
	}
	if o.SketchAccuracy <= 0 {
		o.SketchAccuracy = config.DefaultSketchAccuracy
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = config.DefaultMaxReconnectAttempts
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Node is one participant of the overlay.
type Node struct {
	id   string
	opts Options
	tr   transport.Transport

	clock    *counter.VersionClock
	table    *counter.Table
	registry *aggregate.Registry
	history  *aggregate.History
	children *liveness.ChildMonitor
	parent   *liveness.ParentLink

	state atomic.Uint32

	// reconfMu serializes Reconfigure calls.
	reconfMu sync.Mutex

	// pubMu orders merge, publish and send, so aggregates leave with
	// versions in the order their tables were published.
	pubMu sync.Mutex

	mu            sync.Mutex
	topo          *topology.Topology
	participants  map[string]string
	childTables   map[string]aggregate.Table
	childVersions map[string]uint64
	dirty         bool
	lastOwnGen    uint64
	membership    Membership

	current atomic.Pointer[aggregate.Table]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// =============================================================================
// Construction
// =============================================================================

// InitRoot creates the root node. It is attached to a single-node topology
// at epoch 0 and active immediately; participants are added by Attach or
// Reconfigure.
func InitRoot(id string, opts Options) (*Node, error) {
	n, err := newNode(id, opts)
	if err != nil {
		return nil, err
	}
	topo, err := topology.BuildEpoch([]string{id}, config.DefaultFanOut, 0)
	if err != nil {
		return nil, err
	}
	if err := n.Attach(topo); err != nil {
		return nil, err
	}
	return n, nil
}

// InitLeaf creates a node that waits in INITIALIZING until it is attached
// to a topology. Counters set before then are buffered in its table.
func InitLeaf(id string, opts Options) (*Node, error) {
	return newNode(id, opts)
}

func newNode(id string, opts Options) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("node id: %w", errors.ErrMissingField)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("node %s transport: %w", id, errors.ErrMissingField)
	}
	opts = opts.withDefaults()

	clock := counter.NewVersionClock(opts.Now)
	n := &Node{
		id:    id,
		opts:  opts,
		tr:    opts.Transport,
		clock: clock,
		table: counter.NewTable(counter.Config{
			Origin:   id,
			Cap:      opts.CounterCap,
			Eviction: opts.Eviction,
			Clock:    clock,
		}),
		registry: aggregate.NewRegistry(opts.Policies, opts.DefaultPolicy),
		history:  aggregate.NewHistory(),
		children: liveness.NewChildMonitor(liveness.ChildConfig{
			Interval:   opts.TickInterval,
			Multiplier: opts.LivenessMultiplier,
			Now:        opts.Now,
		}),
		parent: liveness.NewParentLink(liveness.ParentConfig{
			Backoff:     opts.Backoff,
			MaxAttempts: opts.MaxReconnectAttempts,
			Sleep:       opts.Sleep,
		}),
		participants:  make(map[string]string),
		childTables:   make(map[string]aggregate.Table),
		childVersions: make(map[string]uint64),
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.state.Store(uint32(StateInitializing))

	empty := aggregate.Table{}
	n.current.Store(&empty)

	n.tr.OnReceive(func(from string, m *wire.Message) {
		if err := n.HandleMessage(n.ctx, from, m); err != nil {
			log.Debug("message rejected", "node", n.id, "from", from, "kind", m.Kind.String(), "error", err)
		}
	})
	return n, nil
}

// SetMembership installs the handler for dead and joining members. Only the
// root uses it.
func (n *Node) SetMembership(m Membership) {
	n.mu.Lock()
	n.membership = m
	n.mu.Unlock()
}

// =============================================================================
// Accessors
// =============================================================================

// ID returns the node's participant ID.
func (n *Node) ID() string { return n.id }

// State returns the lifecycle state.
func (n *Node) State() State { return State(n.state.Load()) }

// Role returns the node's role in the current topology.
func (n *Node) Role() topology.Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.topo == nil {
		return topology.RoleUnknown
	}
	return n.topo.Role(n.id)
}

// Topology returns the topology the node is attached to, nil before attach.
func (n *Node) Topology() *topology.Topology {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.topo
}

// Registry returns the node's merge policy registry.
func (n *Node) Registry() *aggregate.Registry { return n.registry }

// CurrentAggregates returns the latest published aggregate table. It never
// blocks; the returned table must not be modified.
func (n *Node) CurrentAggregates() aggregate.Table {
	return *n.current.Load()
}

// Counters returns a snapshot of the node's own counters.
func (n *Node) Counters() counter.Snapshot {
	return n.table.Snapshot()
}

// =============================================================================
// Counter API
// =============================================================================

// SetCounter sets one of the node's own counters. It never sends; the value
// propagates on the next tick. Counters set before the node is attached are
// buffered.
func (n *Node) SetCounter(name string, value uint64) error {
	err := n.setCounter(name, value)
	telemetry.CounterSets.WithLabelValues(n.id, telemetry.Result(err)).Inc()
	return err
}

// SetCounterWithPolicy sets a counter and binds its merge policy. It fails
// with ErrPolicyConflict when the name is already bound to another policy.
func (n *Node) SetCounterWithPolicy(name string, value uint64, policy aggregate.Policy) error {
	if err := n.checkWritable(); err != nil {
		return err
	}
	if err := validation.CounterName(name); err != nil {
		return err
	}
	if err := n.registry.Bind(name, policy); err != nil {
		telemetry.CounterSets.WithLabelValues(n.id, "conflict").Inc()
		return err
	}
	return n.SetCounter(name, value)
}

func (n *Node) setCounter(name string, value uint64) error {
	if err := n.checkWritable(); err != nil {
		return err
	}
	_, err := n.table.Set(name, value)
	return err
}

func (n *Node) checkWritable() error {
	switch n.State() {
	case StateDraining:
		return fmt.Errorf("node %s: %w", n.id, errors.ErrDraining)
	case StateClosed:
		return fmt.Errorf("node %s closed: %w", n.id, errors.ErrInvalidState)
	}
	return nil
}

// =============================================================================
// Status
// =============================================================================

// Status is a point-in-time description of a node.
type Status struct {
	ID             string                 `json:"id"`
	Role           topology.Role          `json:"role"`
	State          State                  `json:"state"`
	Epoch          uint64                 `json:"epoch"`
	Parent         string                 `json:"parent,omitempty"`
	ParentLink     liveness.LinkState     `json:"parent_link"`
	ParentAttempts int                    `json:"parent_attempts,omitempty"`
	Children       []liveness.ChildHealth `json:"children"`
	Counters       int                    `json:"counters"`
	Aggregates     int                    `json:"aggregates"`
	Evictions      int64                  `json:"evictions,omitempty"`
	Rejections     int64                  `json:"rejections,omitempty"`
}

// Status returns the node's current status.
func (n *Node) Status() Status {
	n.mu.Lock()
	topo := n.topo
	n.mu.Unlock()

	evictions, rejections := n.table.Stats()
	s := Status{
		ID:             n.id,
		State:          n.State(),
		Parent:         n.parent.Parent(),
		ParentLink:     n.parent.State(),
		ParentAttempts: n.parent.Attempts(),
		Children:       n.children.Health(),
		Counters:       n.table.Len(),
		Aggregates:     len(n.CurrentAggregates()),
		Evictions:      evictions,
		Rejections:     rejections,
	}
	if topo != nil {
		s.Role = topo.Role(n.id)
		s.Epoch = topo.Epoch()
	}
	return s
}
