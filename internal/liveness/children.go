// Package liveness tracks whether children keep reporting and whether the
// parent link is up.
//
// A child is expected to deliver an update every tick interval. Past
// timeout = k x interval it is SUSPECT; one more interval without an update
// makes it DEAD. DEAD is final until the child is removed from the monitor.
package liveness

import (
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/logging"
)

var log = logging.Component("liveness")

// State is a child's liveness.
type State uint8

const (
	StateAlive State = iota
	StateSuspect
	StateDead
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateSuspect:
		return "suspect"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition is a change of a child's state reported by Sweep.
type Transition struct {
	Child    string
	From, To State
	Silent   time.Duration
}

// ChildHealth is the status of one child.
type ChildHealth struct {
	ID       string    `json:"id"`
	State    State     `json:"state"`
	LastSeen time.Time `json:"last_seen"`
	Updates  uint64    `json:"updates"`
}

// ChildConfig configures a ChildMonitor.
type ChildConfig struct {
	Interval   time.Duration
	Multiplier int
	Now        func() time.Time
}

// ChildMonitor tracks the children of one node.
// It is safe for concurrent use.
type ChildMonitor struct {
	mu       sync.Mutex
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	children map[string]*ChildHealth
}

// NewChildMonitor creates a monitor with no children.
func NewChildMonitor(cfg ChildConfig) *ChildMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultTickInterval
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = config.DefaultLivenessMultiplier
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ChildMonitor{
		interval: cfg.Interval,
		timeout:  time.Duration(cfg.Multiplier) * cfg.Interval,
		now:      cfg.Now,
		children: make(map[string]*ChildHealth),
	}
}

// Timeout returns k x interval.
func (m *ChildMonitor) Timeout() time.Duration { return m.timeout }

// Reset replaces the monitored set. Children kept from the previous set keep
// their history; new children start alive as of now.
func (m *ChildMonitor) Reset(children []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	next := make(map[string]*ChildHealth, len(children))
	for _, id := range children {
		if h, ok := m.children[id]; ok && h.State != StateDead {
			next[id] = h
			continue
		}
		next[id] = &ChildHealth{ID: id, State: StateAlive, LastSeen: now}
	}
	m.children = next
}

// Seen records an update from child. It reports false for unknown children.
func (m *ChildMonitor) Seen(child string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.children[child]
	if !ok {
		return false
	}
	if h.State == StateSuspect {
		log.Info("child recovered", "child", child)
	}
	if h.State != StateDead {
		h.State = StateAlive
	}
	h.LastSeen = m.now()
	h.Updates++
	return true
}

// Remove stops tracking child.
func (m *ChildMonitor) Remove(child string) {
	m.mu.Lock()
	delete(m.children, child)
	m.mu.Unlock()
}

// Sweep advances every child's state and returns the transitions in child
// order.
func (m *ChildMonitor) Sweep() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Transition
	for _, h := range m.children {
		if h.State == StateDead {
			continue
		}
		silent := now.Sub(h.LastSeen)

		next := StateAlive
		switch {
		case silent > m.timeout+m.interval:
			next = StateDead
		case silent > m.timeout:
			next = StateSuspect
		}
		if next == h.State || next == StateAlive {
			continue
		}
		out = append(out, Transition{Child: h.ID, From: h.State, To: next, Silent: silent})
		h.State = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Child < out[j].Child })
	return out
}

// State returns child's state.
func (m *ChildMonitor) State(child string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.children[child]
	if !ok {
		return StateAlive, false
	}
	return h.State, true
}

// Health returns every child's status sorted by ID.
func (m *ChildMonitor) Health() []ChildHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ChildHealth, 0, len(m.children))
	for _, h := range m.children {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
