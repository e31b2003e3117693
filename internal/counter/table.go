// Package counter implements the per-node Counter Table.
//
// A Table holds the values a node set itself, one entry per name, each
// stamped with a version that is strictly increasing per node. Writers are
// serialized by a mutex; Snapshot copies under the read lock so readers never
// hold writers for longer than the copy.
package counter

import (
	"container/list"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/validation"
)

var log = logging.Component("counter")

// EvictionPolicy decides what Set does when the name cap is reached.
type EvictionPolicy string

const (
	// EvictReject refuses the new name with ErrResourceExhausted.
	EvictReject EvictionPolicy = "reject"

	// EvictLRU drops the least recently updated name and accepts the new one.
	EvictLRU EvictionPolicy = "lru"
)

// ParseEvictionPolicy parses a configured eviction policy.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch EvictionPolicy(s) {
	case EvictReject, "":
		return EvictReject, nil
	case EvictLRU:
		return EvictLRU, nil
	default:
		return "", fmt.Errorf("eviction %q: %w", s, errors.ErrInvalidConfig)
	}
}

// Counter is a single named value as set by one origin.
type Counter struct {
	Name    string
	Value   uint64
	Version uint64
	Origin  string
}

// Snapshot is an immutable copy of a Table.
type Snapshot struct {
	Origin     string
	Generation uint64
	Counters   map[string]Counter
}

// Names returns the snapshot's names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of counters in the snapshot.
func (s Snapshot) Len() int { return len(s.Counters) }

// Config holds Table configuration.
type Config struct {
	// Origin identifies the node owning the table.
	Origin string

	// Cap is the maximum number of distinct names. Zero means unbounded.
	Cap int

	// Eviction selects the behavior when Cap is reached.
	Eviction EvictionPolicy

	// Clock mints versions. A new clock is created when nil.
	Clock *VersionClock
}

// Table is the Counter Table of a single node.
//
// Table is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	data  map[string]*list.Element
	ll    *list.List // front = most recently updated
	cfg   Config
	clock *VersionClock

	generation atomic.Uint64
	evictions  atomic.Int64
	rejections atomic.Int64

	onEvict func(name string)
}

// NewTable creates an empty Table.
func NewTable(cfg Config) *Table {
	if cfg.Eviction == "" {
		cfg.Eviction = EvictReject
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewVersionClock(nil)
	}
	return &Table{
		data:  make(map[string]*list.Element),
		ll:    list.New(),
		cfg:   cfg,
		clock: clock,
	}
}

// SetOnEvict registers a callback invoked (outside the lock) for every
// evicted name.
func (t *Table) SetOnEvict(fn func(name string)) {
	t.mu.Lock()
	t.onEvict = fn
	t.mu.Unlock()
}

// Set inserts or overwrites name with a freshly minted version.
//
// When the name is new and the cap is reached, Set either evicts the least
// recently updated name (EvictLRU) or fails with ErrResourceExhausted
// (EvictReject). A rejected write never changes the table.
func (t *Table) Set(name string, value uint64) (Counter, error) {
	if err := validation.CounterName(name); err != nil {
		return Counter{}, err
	}

	t.mu.Lock()
	c := Counter{Name: name, Value: value, Version: t.clock.Next(), Origin: t.cfg.Origin}
	evicted, err := t.storeLocked(c)
	onEvict := t.onEvict
	t.mu.Unlock()

	if err != nil {
		return Counter{}, err
	}
	if evicted != "" {
		log.Warn("counter cap reached, evicted least recently updated name",
			"origin", t.cfg.Origin, "evicted", evicted, "name", name, "cap", t.cfg.Cap)
		if onEvict != nil {
			onEvict(evicted)
		}
	}
	return c, nil
}

// Apply stores an externally versioned counter, keeping only the highest
// version per name. It reports whether the counter was applied; stale and
// equal versions are ignored.
func (t *Table) Apply(c Counter) (bool, error) {
	if c.Name == "" {
		return false, errors.ErrInvalidName
	}
	if c.Origin == "" {
		c.Origin = t.cfg.Origin
	}

	t.mu.Lock()
	if el, ok := t.data[c.Name]; ok {
		if el.Value.(*Counter).Version >= c.Version {
			t.mu.Unlock()
			return false, nil
		}
	}
	t.clock.Observe(c.Version)
	evicted, err := t.storeLocked(c)
	onEvict := t.onEvict
	t.mu.Unlock()

	if err != nil {
		return false, err
	}
	if evicted != "" && onEvict != nil {
		onEvict(evicted)
	}
	return true, nil
}

func (t *Table) storeLocked(c Counter) (evicted string, err error) {
	if el, ok := t.data[c.Name]; ok {
		*el.Value.(*Counter) = c
		t.ll.MoveToFront(el)
		t.generation.Add(1)
		return "", nil
	}

	if t.cfg.Cap > 0 && len(t.data) >= t.cfg.Cap {
		if t.cfg.Eviction != EvictLRU {
			t.rejections.Add(1)
			return "", fmt.Errorf("counter %q: %d names at node %s: %w",
				c.Name, t.cfg.Cap, t.cfg.Origin, errors.ErrResourceExhausted)
		}
		oldest := t.ll.Back()
		victim := oldest.Value.(*Counter)
		delete(t.data, victim.Name)
		t.ll.Remove(oldest)
		t.evictions.Add(1)
		evicted = victim.Name
	}

	stored := c
	t.data[c.Name] = t.ll.PushFront(&stored)
	t.generation.Add(1)
	return evicted, nil
}

// Get returns the current counter for name.
func (t *Table) Get(name string) (Counter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	el, ok := t.data[name]
	if !ok {
		return Counter{}, false
	}
	return *el.Value.(*Counter), true
}

// Snapshot returns an immutable copy of every entry.
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Counter, len(t.data))
	for name, el := range t.data {
		out[name] = *el.Value.(*Counter)
	}
	return Snapshot{
		Origin:     t.cfg.Origin,
		Generation: t.generation.Load(),
		Counters:   out,
	}
}

// Len returns the number of names in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// Generation increases on every accepted write.
func (t *Table) Generation() uint64 {
	return t.generation.Load()
}

// Stats returns eviction and rejection counts.
func (t *Table) Stats() (evictions, rejections int64) {
	return t.evictions.Load(), t.rejections.Load()
}
