// Package topology builds the overlay tree from an ordered participant list.
//
// The tree is an arena: participants live in one ordered slice and every
// parent/child relation is computed from slice positions. The first
// participant is the root; the rest are assigned breadth-first in blocks of
// fan-out children per node, so the participant at position i has its
// children at positions F*i+1 .. F*i+F.
//
// A Topology is immutable. Membership changes produce a new Topology with a
// higher epoch via Without and With.
package topology

import (
	"fmt"
	"strings"

	"github.com/xtxerr/treemon/internal/errors"
)

// Role is a node's position in the tree.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleRoot
	RoleInternal
	RoleLeaf
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleInternal:
		return "internal"
	case RoleLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "root":
		*r = RoleRoot
	case "internal":
		*r = RoleInternal
	case "leaf":
		*r = RoleLeaf
	default:
		*r = RoleUnknown
	}
	return nil
}

// Topology is a tree over participant IDs.
type Topology struct {
	epoch  uint64
	fanOut int
	ids    []string
	index  map[string]int
}

// Build builds the tree for ids with the given fan-out at epoch 1.
func Build(ids []string, fanOut int) (*Topology, error) {
	return BuildEpoch(ids, fanOut, 1)
}

// BuildEpoch builds the tree for ids at an explicit epoch. Nodes receiving a
// reconfiguration use it to reproduce the sender's tree.
func BuildEpoch(ids []string, fanOut int, epoch uint64) (*Topology, error) {
	if fanOut < 2 {
		return nil, fmt.Errorf("fan-out %d: %w", fanOut, errors.ErrInvalidFanOut)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no participants: %w", errors.ErrTopologyInconsistent)
	}

	t := &Topology{
		epoch:  epoch,
		fanOut: fanOut,
		ids:    make([]string, len(ids)),
		index:  make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("empty participant at position %d: %w", i, errors.ErrTopologyInconsistent)
		}
		if prev, dup := t.index[id]; dup {
			return nil, fmt.Errorf("participant %q at positions %d and %d: %w",
				id, prev, i, errors.ErrTopologyInconsistent)
		}
		t.ids[i] = id
		t.index[id] = i
	}
	return t, nil
}

// Epoch returns the topology generation.
func (t *Topology) Epoch() uint64 { return t.epoch }

// FanOut returns the maximum number of children per node.
func (t *Topology) FanOut() int { return t.fanOut }

// Len returns the number of participants.
func (t *Topology) Len() int { return len(t.ids) }

// Root returns the root's ID.
func (t *Topology) Root() string { return t.ids[0] }

// Members returns the ordered participant list.
func (t *Topology) Members() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Contains reports whether id is a participant.
func (t *Topology) Contains(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Index returns id's position in the participant list.
func (t *Topology) Index(id string) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Parent returns id's parent. ok is false for the root and unknown IDs.
func (t *Topology) Parent(id string) (parent string, ok bool) {
	i, known := t.index[id]
	if !known || i == 0 {
		return "", false
	}
	return t.ids[(i-1)/t.fanOut], true
}

// Children returns id's children in order.
func (t *Topology) Children(id string) []string {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	first := t.fanOut*i + 1
	if first >= len(t.ids) {
		return nil
	}
	last := min(first+t.fanOut, len(t.ids))
	out := make([]string, last-first)
	copy(out, t.ids[first:last])
	return out
}

// Role returns id's role, RoleUnknown if id is not a participant.
func (t *Topology) Role(id string) Role {
	i, ok := t.index[id]
	switch {
	case !ok:
		return RoleUnknown
	case i == 0:
		return RoleRoot
	case t.fanOut*i+1 < len(t.ids):
		return RoleInternal
	default:
		return RoleLeaf
	}
}

// Level returns the number of edges between id and the root.
func (t *Topology) Level(id string) int {
	i, ok := t.index[id]
	if !ok {
		return -1
	}
	level := 0
	for i > 0 {
		i = (i - 1) / t.fanOut
		level++
	}
	return level
}

// Depth returns the height of the tree in edges. It never exceeds
// DepthBound(Len(), FanOut()).
func (t *Topology) Depth() int {
	return t.Level(t.ids[len(t.ids)-1])
}

// Subtree returns id and all of its descendants in level order.
func (t *Topology) Subtree(id string) []string {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []string
	queue := []int{i}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, t.ids[n])
		for c := t.fanOut*n + 1; c <= t.fanOut*n+t.fanOut && c < len(t.ids); c++ {
			queue = append(queue, c)
		}
	}
	return out
}

// Without returns the tree rebuilt over the participant list minus dead,
// at the next epoch. Unknown IDs are ignored.
func (t *Topology) Without(dead ...string) (*Topology, error) {
	drop := make(map[string]bool, len(dead))
	for _, id := range dead {
		drop[id] = true
	}
	ids := make([]string, 0, len(t.ids))
	for _, id := range t.ids {
		if !drop[id] {
			ids = append(ids, id)
		}
	}
	return BuildEpoch(ids, t.fanOut, t.epoch+1)
}

// With returns the tree rebuilt with joined appended, at the next epoch.
// Joining an existing participant fails with ErrTopologyInconsistent.
func (t *Topology) With(joined ...string) (*Topology, error) {
	ids := make([]string, 0, len(t.ids)+len(joined))
	ids = append(ids, t.ids...)
	ids = append(ids, joined...)
	return BuildEpoch(ids, t.fanOut, t.epoch+1)
}

// Validate re-checks the tree invariants: one root, one parent per non-root,
// every node reachable from the root, and no node listed twice.
func (t *Topology) Validate() error {
	if len(t.ids) == 0 || t.fanOut < 2 {
		return errors.ErrTopologyInconsistent
	}
	seen := make(map[string]bool, len(t.ids))
	for _, id := range t.Subtree(t.Root()) {
		if seen[id] {
			return fmt.Errorf("participant %q reached twice: %w", id, errors.ErrTopologyInconsistent)
		}
		seen[id] = true
	}
	if len(seen) != len(t.ids) {
		return fmt.Errorf("%d of %d participants reachable: %w",
			len(seen), len(t.ids), errors.ErrTopologyInconsistent)
	}
	roots := 0
	for _, id := range t.ids {
		if _, ok := t.Parent(id); !ok {
			roots++
		}
	}
	if roots != 1 {
		return fmt.Errorf("%d roots: %w", roots, errors.ErrTopologyInconsistent)
	}
	return nil
}

// String renders the tree one node per line, indented by level.
func (t *Topology) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "epoch %d fan-out %d\n", t.epoch, t.fanOut)
	for _, id := range t.Subtree(t.Root()) {
		fmt.Fprintf(&b, "%s%s (%s)\n", strings.Repeat("  ", t.Level(id)), id, t.Role(id))
	}
	return b.String()
}

// DepthBound returns ceil(log_fanOut(n)), the height limit of a tree over n
// participants.
func DepthBound(n, fanOut int) int {
	if n <= 1 || fanOut < 2 {
		return 0
	}
	depth := 0
	for capacity := 1; capacity < n; capacity *= fanOut {
		depth++
	}
	return depth
}
