package overlay

import (
	"context"
	"fmt"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/telemetry"
	"github.com/xtxerr/treemon/internal/topology"
	"github.com/xtxerr/treemon/internal/wire"
)

// HandleMessage dispatches an inbound message. from is the transport-level
// peer and must match the message sender when set.
func (n *Node) HandleMessage(ctx context.Context, from string, m *wire.Message) (err error) {
	defer func() {
		result := "ok"
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrStaleUpdate):
			result = "stale"
		case errors.Is(err, errors.ErrUnknownChild):
			result = "unknown_child"
		case errors.IsProtocolError(err):
			result = "protocol_violation"
		case errors.IsLivenessError(err):
			result = "dead_child"
		case errors.IsStateError(err):
			result = "invalid_state"
		default:
			result = "error"
		}
		telemetry.MessagesReceived.WithLabelValues(n.id, m.Kind.String(), result).Inc()
	}()

	if n.State() == StateClosed {
		return fmt.Errorf("node %s: %w", n.id, errors.ErrInvalidState)
	}
	if from != "" && m.Sender != from {
		n.tr.Drop(from)
		return fmt.Errorf("sender %q on link from %q: %w", m.Sender, from, errors.ErrProtocolViolation)
	}

	switch m.Kind {
	case wire.KindAggregate:
		return n.OnChildUpdate(m.Sender, m)
	case wire.KindMemberDead:
		return n.onMemberDead(ctx, m)
	case wire.KindReconfigure:
		return n.onReconfigure(ctx, m)
	case wire.KindJoin:
		return n.onJoin(ctx, m)
	case wire.KindHello:
		return nil
	default:
		return fmt.Errorf("message kind %s: %w", m.Kind, errors.ErrProtocolViolation)
	}
}

// OnChildUpdate records an aggregate reported by a child. Updates from
// nodes that are not children fail with ErrUnknownChild and the link to
// the sender is dropped. Updates not newer than the last accepted one from
// the same child, or sent under an older topology epoch, are discarded with
// ErrStaleUpdate.
func (n *Node) OnChildUpdate(child string, m *wire.Message) error {
	n.mu.Lock()
	isChild := false
	if n.topo != nil {
		for _, c := range n.topo.Children(n.id) {
			if c == child {
				isChild = true
				break
			}
		}
	}
	if !isChild {
		n.mu.Unlock()
		log.Warn("update from unknown child", "node", n.id, "child", child, "epoch", m.Epoch)
		n.tr.Drop(child)
		return fmt.Errorf("node %s: child %q: %w", n.id, child, errors.ErrUnknownChild)
	}
	if cur := n.topo.Epoch(); m.Epoch < cur {
		n.mu.Unlock()
		return fmt.Errorf("child %q epoch %d, have %d: %w", child, m.Epoch, cur, errors.ErrStaleUpdate)
	}
	if last := n.childVersions[child]; m.Version <= last {
		n.mu.Unlock()
		return fmt.Errorf("child %q version %d, have %d: %w", child, m.Version, last, errors.ErrStaleUpdate)
	}
	n.mu.Unlock()

	table, err := wire.ToTable(m.Entries)
	if err != nil {
		log.Warn("malformed aggregate", "node", n.id, "child", child, "error", err)
		n.tr.Drop(child)
		return err
	}
	if st, ok := n.children.State(child); ok && st == liveness.StateDead {
		return fmt.Errorf("node %s: child %q declared dead: %w", n.id, child, errors.ErrChildTimeout)
	}
	if !n.children.Seen(child) {
		return fmt.Errorf("node %s: child %q: %w", n.id, child, errors.ErrUnknownChild)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	// Re-check under the lock; a concurrent update may have won.
	if m.Version <= n.childVersions[child] {
		return fmt.Errorf("child %q version %d: %w", child, m.Version, errors.ErrStaleUpdate)
	}
	n.childTables[child] = table
	n.childVersions[child] = m.Version
	n.dirty = true
	return nil
}

func (n *Node) onMemberDead(ctx context.Context, m *wire.Message) error {
	if len(m.Dead) == 0 {
		return fmt.Errorf("member_dead without members: %w", errors.ErrProtocolViolation)
	}
	log.Info("members reported dead", "node", n.id, "reporter", m.Sender, "dead", m.Dead)
	n.reportDead(ctx, m.Dead)
	return nil
}

func (n *Node) onReconfigure(ctx context.Context, m *wire.Message) error {
	ids := make([]string, len(m.Participants))
	for i, p := range m.Participants {
		ids[i] = p.ID
	}
	topo, err := topology.BuildEpoch(ids, int(m.FanOut), m.Epoch)
	if err != nil {
		return fmt.Errorf("reconfigure from %s: %w", m.Sender, err)
	}
	return n.Reconfigure(ctx, topo, m.Participants)
}

func (n *Node) onJoin(ctx context.Context, m *wire.Message) error {
	p := wire.Participant{ID: m.Sender, Addr: m.Addr}
	if len(m.Participants) > 0 {
		p = m.Participants[0]
	}

	n.mu.Lock()
	membership := n.membership
	n.mu.Unlock()

	if membership == nil {
		// Not the root: pass it up.
		parent := n.parent.Parent()
		if parent == "" {
			return fmt.Errorf("join from %s: %w", p.ID, errors.ErrNotRoot)
		}
		fwd := *m
		fwd.Sender = n.id
		fwd.Participants = []wire.Participant{p}
		return n.send(parent, &fwd)
	}
	return membership.Join(ctx, p)
}

// Join asks the root to add this node to the tree. The root answers with a
// reconfiguration that attaches the node.
func (n *Node) Join(root wire.Participant, self wire.Participant) error {
	n.tr.SetPeers([]wire.Participant{root})
	m := &wire.Message{
		Kind:         wire.KindJoin,
		Sender:       n.id,
		Version:      n.clock.Next(),
		Addr:         self.Addr,
		Participants: []wire.Participant{self},
	}
	return n.send(root.ID, m)
}
