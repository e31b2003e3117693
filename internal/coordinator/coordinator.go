// Package coordinator owns the authoritative membership at the root.
//
// The coordinator keeps the ordered participant list, rebuilds the topology
// when members die or join, applies it to the root node and lets the root
// broadcast it down the new tree. Every node rebuilds the same tree from the
// participant list it receives.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/telemetry"
	"github.com/xtxerr/treemon/internal/topology"
	"github.com/xtxerr/treemon/internal/wire"
)

var log = logging.Component("coordinator")

// Coordinator is the membership authority of one tree.
// It is safe for concurrent use.
type Coordinator struct {
	root   *overlay.Node
	fanOut int

	mu      sync.Mutex
	members []wire.Participant
	topo    *topology.Topology
	changed chan struct{}
}

// New creates a coordinator for the tree rooted at root and installs itself
// as the root's membership handler. self is the root's own participant
// entry.
func New(root *overlay.Node, self wire.Participant, fanOut int) (*Coordinator, error) {
	if self.ID != root.ID() {
		return nil, fmt.Errorf("participant %q is not root %q: %w", self.ID, root.ID(), errors.ErrInvalidConfig)
	}
	topo, err := topology.Build([]string{self.ID}, fanOut)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		root:    root,
		fanOut:  fanOut,
		members: []wire.Participant{self},
		topo:    topo,
		changed: make(chan struct{}),
	}
	if err := root.Reconfigure(context.Background(), topo, c.members); err != nil {
		return nil, err
	}
	root.SetMembership(c)
	telemetry.Participants.Set(1)
	return c, nil
}

// Topology returns the current topology.
func (c *Coordinator) Topology() *topology.Topology {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topo
}

// Participants returns the ordered participant list.
func (c *Coordinator) Participants() []wire.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Participant, len(c.members))
	copy(out, c.members)
	return out
}

// Len returns the number of participants.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// SetParticipants replaces the participant list. The root is moved to the
// front if it is listed elsewhere and added if missing.
func (c *Coordinator) SetParticipants(ctx context.Context, ps []wire.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rootID := c.root.ID()
	next := []wire.Participant{c.members[0]}
	seen := map[string]bool{rootID: true}
	for _, p := range ps {
		if p.ID == rootID {
			if p.Addr != "" {
				next[0] = p
			}
			continue
		}
		if seen[p.ID] {
			return fmt.Errorf("participant %q listed twice: %w", p.ID, errors.ErrTopologyInconsistent)
		}
		seen[p.ID] = true
		next = append(next, p)
	}
	return c.rebuildLocked(ctx, next, "set")
}

// Join appends a new participant. Joining an existing member fails with
// ErrTopologyInconsistent and leaves the membership unchanged.
func (c *Coordinator) Join(ctx context.Context, p wire.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.members {
		if m.ID == p.ID {
			log.Warn("duplicate join ignored", "participant", p.ID, "addr", p.Addr)
			return fmt.Errorf("join %q: %w", p.ID, errors.ErrTopologyInconsistent)
		}
	}

	next := make([]wire.Participant, 0, len(c.members)+1)
	next = append(next, c.members...)
	next = append(next, p)
	log.Info("participant joined", "participant", p.ID, "addr", p.Addr, "members", len(next))
	return c.rebuildLocked(ctx, next, "join")
}

// ReportDead removes dead participants. Unknown IDs are ignored; the root
// cannot be removed.
func (c *Coordinator) ReportDead(ctx context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dead := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == c.root.ID() {
			log.Error("root reported dead, ignoring", "root", id)
			continue
		}
		dead[id] = true
	}

	next := make([]wire.Participant, 0, len(c.members))
	for _, m := range c.members {
		if !dead[m.ID] {
			next = append(next, m)
		}
	}
	if len(next) == len(c.members) {
		return nil
	}
	log.Warn("removing dead participants", "dead", ids, "members", len(next))
	return c.rebuildLocked(ctx, next, "dead")
}

// WaitForMembers blocks until the tree has at least n participants,
// including the root.
func (c *Coordinator) WaitForMembers(ctx context.Context, n int) error {
	for {
		c.mu.Lock()
		have := len(c.members)
		changed := c.changed
		c.mu.Unlock()

		if have >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d members, have %d: %w", n, have, ctx.Err())
		case <-changed:
		}
	}
}

func (c *Coordinator) rebuildLocked(ctx context.Context, members []wire.Participant, cause string) error {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	topo, err := topology.BuildEpoch(ids, c.fanOut, c.topo.Epoch()+1)
	if err != nil {
		return err
	}
	if err := c.root.Reconfigure(ctx, topo, members); err != nil {
		return fmt.Errorf("apply epoch %d: %w", topo.Epoch(), err)
	}

	c.members = members
	c.topo = topo
	close(c.changed)
	c.changed = make(chan struct{})

	telemetry.Participants.Set(float64(len(members)))
	telemetry.Rebuilds.WithLabelValues(cause).Inc()
	log.Info("topology rebuilt", "cause", cause, "epoch", topo.Epoch(),
		"members", topo.Len(), "depth", topo.Depth())
	return nil
}
