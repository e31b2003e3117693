package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/telemetry"
	"github.com/xtxerr/treemon/internal/topology"
	"github.com/xtxerr/treemon/internal/wire"
)

// =============================================================================
// Attach and rebuild
// =============================================================================

// Attach places the node in topo. The first attach moves the node from
// INITIALIZING to ACTIVE; later calls behave like Reconfigure.
func (n *Node) Attach(topo *topology.Topology) error {
	return n.Reconfigure(n.ctx, topo, nil)
}

// Reconfigure switches the node to a rebuilt topology. An active node
// drains first: it flushes a final aggregate to its old parent, then
// switches links, forwards the reconfiguration to its new children and
// becomes active again. Topologies with an epoch not newer than the
// current one are ignored. Concurrent calls are applied one at a time.
//
// participants carries the listen addresses of the new member list and is
// forwarded with the reconfiguration; it may be nil for in-process use.
func (n *Node) Reconfigure(ctx context.Context, topo *topology.Topology, participants []wire.Participant) error {
	if n.State() == StateClosed {
		return fmt.Errorf("node %s: %w", n.id, errors.ErrInvalidState)
	}
	if err := topo.Validate(); err != nil {
		return err
	}

	n.reconfMu.Lock()
	defer n.reconfMu.Unlock()

	lg := logging.WithContext(logging.ContextWithEpoch(logging.ContextWithNode(ctx, n.id), topo.Epoch()), log)

	n.mu.Lock()
	if n.topo != nil && topo.Epoch() <= n.topo.Epoch() {
		cur := n.topo.Epoch()
		n.mu.Unlock()
		lg.Debug("ignoring stale topology", "current", cur)
		return nil
	}
	prev := n.topo
	n.mu.Unlock()

	if prev != nil && n.State() == StateActive {
		n.state.Store(uint32(StateDraining))
		n.flush(ctx)
	}

	if len(participants) > 0 {
		n.tr.SetPeers(participants)
	}

	n.mu.Lock()
	for _, p := range participants {
		n.participants[p.ID] = p.Addr
	}
	n.topo = topo
	newChildren := topo.Children(n.id)
	keep := make(map[string]bool, len(newChildren))
	for _, c := range newChildren {
		keep[c] = true
	}
	var dropped []string
	for c := range n.childTables {
		if !keep[c] {
			delete(n.childTables, c)
			delete(n.childVersions, c)
			dropped = append(dropped, c)
		}
	}
	n.dirty = true
	n.mu.Unlock()

	for _, c := range dropped {
		n.tr.Drop(c)
	}
	n.children.Reset(newChildren)

	telemetry.TopologyEpoch.WithLabelValues(n.id).Set(float64(topo.Epoch()))

	if !topo.Contains(n.id) {
		// Excluded, usually after being declared dead. Counters keep
		// buffering until the node joins again.
		n.parent.Set("")
		n.state.Store(uint32(StateInitializing))
		lg.Warn("node not in topology, detached")
		return nil
	}

	parent, _ := topo.Parent(n.id)
	n.parent.Set(parent)
	n.state.Store(uint32(StateActive))

	lg.Info("attached to topology",
		"role", topo.Role(n.id).String(), "parent", parent, "children", len(newChildren))

	if participants != nil {
		n.forwardReconfigure(topo, participants, newChildren)
	}

	// Announce ourselves to the new parent right away.
	if prev != nil {
		n.propagate(ctx)
	}
	return nil
}

func (n *Node) forwardReconfigure(topo *topology.Topology, participants []wire.Participant, children []string) {
	if len(children) == 0 {
		return
	}
	m := &wire.Message{
		Kind:         wire.KindReconfigure,
		Sender:       n.id,
		Epoch:        topo.Epoch(),
		Version:      n.clock.Next(),
		Participants: participants,
		FanOut:       uint32(topo.FanOut()),
	}
	for _, c := range children {
		n.send(c, m)
	}
}

// flush sends the current aggregate to the parent before links switch.
func (n *Node) flush(ctx context.Context) {
	if n.parent.Parent() == "" || !n.parent.Up() {
		return
	}
	n.pubMu.Lock()
	defer n.pubMu.Unlock()
	n.recompute()
	n.sendAggregate(ctx)
}

// =============================================================================
// Tick
// =============================================================================

// Tick runs one propagation step: child liveness sweep, merge, publish, and
// (unless root) send to the parent. It is a no-op before attach and while
// draining.
func (n *Node) Tick(ctx context.Context) error {
	switch n.State() {
	case StateClosed:
		return fmt.Errorf("node %s: %w", n.id, errors.ErrInvalidState)
	case StateInitializing, StateDraining:
		return nil
	}

	start := time.Now()
	defer func() {
		telemetry.Ticks.WithLabelValues(n.id).Inc()
		telemetry.TickDuration.WithLabelValues(n.id).Observe(time.Since(start).Seconds())
	}()

	n.sweepChildren(ctx)
	n.propagate(ctx)
	return nil
}

func (n *Node) propagate(ctx context.Context) {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	n.recompute()
	if n.parent.Parent() == "" {
		return
	}
	switch n.parent.State() {
	case liveness.LinkConnected:
		n.sendAggregate(ctx)
	default:
		// Suspect or disconnected: keep buffering, reconnection runs in the
		// background and sends on success.
	}
}

// recompute merges the own snapshot with the child tables if anything
// changed since the last merge, and publishes the result. Callers hold
// pubMu.
func (n *Node) recompute() {
	n.mu.Lock()
	gen := n.table.Generation()
	if !n.dirty && gen == n.lastOwnGen && n.topo != nil {
		n.mu.Unlock()
		return
	}
	children := make(map[string]aggregate.Table, len(n.childTables))
	for id, t := range n.childTables {
		children[id] = t
	}
	leaf := n.topo == nil || len(n.topo.Children(n.id)) == 0
	n.dirty = false
	n.lastOwnGen = gen
	n.mu.Unlock()

	own := n.table.Snapshot()
	opts := aggregate.Options{Distributions: n.opts.Distributions, Accuracy: n.opts.SketchAccuracy}

	var merged aggregate.Table
	if leaf {
		merged = aggregate.FromSnapshot(n.id, own, n.registry, opts)
	} else {
		merged = aggregate.Merge(aggregate.Input{
			Self:     n.id,
			Own:      own,
			Children: children,
			Registry: n.registry,
			Options:  opts,
		})
	}
	n.history.Clamp(merged)

	n.current.Store(&merged)
	telemetry.AggregateEntries.WithLabelValues(n.id).Set(float64(len(merged)))
}

// sendAggregate sends the published table with a fresh version. Callers
// hold pubMu.
func (n *Node) sendAggregate(ctx context.Context) {
	parent := n.parent.Parent()
	if parent == "" {
		return
	}
	entries, err := wire.FromTable(n.CurrentAggregates())
	if err != nil {
		log.Error("encode aggregate", "node", n.id, "error", err)
		return
	}

	n.mu.Lock()
	var epoch uint64
	if n.topo != nil {
		epoch = n.topo.Epoch()
	}
	n.mu.Unlock()

	m := &wire.Message{
		Kind:    wire.KindAggregate,
		Sender:  n.id,
		Epoch:   epoch,
		Version: n.clock.Next(),
		Entries: entries,
	}
	if err := n.send(parent, m); err != nil {
		n.parentFailed(ctx, err)
	}
}

func (n *Node) send(to string, m *wire.Message) error {
	err := n.tr.Send(to, m)
	telemetry.MessagesSent.WithLabelValues(n.id, m.Kind.String(), telemetry.Result(err)).Inc()
	return err
}

// =============================================================================
// Liveness
// =============================================================================

func (n *Node) sweepChildren(ctx context.Context) {
	var dead []string
	for _, tr := range n.children.Sweep() {
		switch tr.To {
		case liveness.StateSuspect:
			log.Warn("child suspect", "node", n.id, "child", tr.Child, "silent", tr.Silent)
		case liveness.StateDead:
			log.Warn("child dead", "node", n.id, "child", tr.Child, "silent", tr.Silent,
				"error", errors.ErrChildTimeout)
			dead = append(dead, tr.Child)
		}
	}

	counts := map[liveness.State]int{}
	for _, h := range n.children.Health() {
		counts[h.State]++
	}
	for _, s := range []liveness.State{liveness.StateAlive, liveness.StateSuspect, liveness.StateDead} {
		telemetry.Children.WithLabelValues(n.id, s.String()).Set(float64(counts[s]))
	}

	if len(dead) > 0 {
		n.childrenDead(ctx, dead)
	}
}

// childrenDead drops the dead children's contributions and reports them
// toward the root, which rebuilds the topology without them.
func (n *Node) childrenDead(ctx context.Context, dead []string) {
	n.mu.Lock()
	for _, c := range dead {
		delete(n.childTables, c)
		delete(n.childVersions, c)
	}
	n.dirty = true
	n.mu.Unlock()

	for _, c := range dead {
		n.tr.Drop(c)
		telemetry.ChildDeaths.WithLabelValues(n.id).Inc()
	}
	n.reportDead(ctx, dead)
}

func (n *Node) reportDead(ctx context.Context, dead []string) {
	n.mu.Lock()
	membership := n.membership
	n.mu.Unlock()

	parent := n.parent.Parent()
	if parent == "" {
		if membership == nil {
			log.Warn("dead members reported without a coordinator", "node", n.id, "dead", dead)
			return
		}
		if err := membership.ReportDead(ctx, dead...); err != nil {
			log.Warn("report dead members", "node", n.id, "dead", dead, "error", err)
		}
		return
	}

	m := &wire.Message{
		Kind:    wire.KindMemberDead,
		Sender:  n.id,
		Version: n.clock.Next(),
		Dead:    dead,
	}
	if err := n.send(parent, m); err != nil {
		n.parentFailed(ctx, err)
	}
}

// parentFailed marks the parent link suspect and starts reconnection once.
// Errors that a new connection cannot cure, such as a full control queue,
// are only logged.
func (n *Node) parentFailed(ctx context.Context, err error) {
	if !errors.IsRetriable(err) {
		log.Warn("send to parent failed", "node", n.id, "parent", n.parent.Parent(), "error", err)
		return
	}
	if !n.parent.Failed(err) || n.State() == StateClosed {
		return
	}
	log.Warn("parent unreachable", "node", n.id, "parent", n.parent.Parent(),
		"error", fmt.Errorf("%w: %v", errors.ErrParentUnreachable, err))

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		err := n.parent.Reconnect(n.ctx, n.tr.Dial, func() {
			telemetry.ParentReconnects.WithLabelValues(n.id, "ok").Inc()
			n.pubMu.Lock()
			defer n.pubMu.Unlock()
			n.recompute()
			n.sendAggregate(n.ctx)
		}, func() {
			telemetry.ParentReconnects.WithLabelValues(n.id, "gave_up").Inc()
		})
		if err != nil && n.State() != StateClosed {
			log.Debug("parent reconnection stopped", "node", n.id, "error", err)
		}
	}()
}
