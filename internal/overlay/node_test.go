package overlay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/topology"
	"github.com/xtxerr/treemon/internal/transport"
	"github.com/xtxerr/treemon/internal/wire"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quickSleep(ctx context.Context, _ time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

// recordingMembership stands in for the coordinator at the root.
type recordingMembership struct {
	mu    sync.Mutex
	dead  []string
	joins []wire.Participant
}

func (m *recordingMembership) ReportDead(_ context.Context, ids ...string) error {
	m.mu.Lock()
	m.dead = append(m.dead, ids...)
	m.mu.Unlock()
	return nil
}

func (m *recordingMembership) Join(_ context.Context, p wire.Participant) error {
	m.mu.Lock()
	m.joins = append(m.joins, p)
	m.mu.Unlock()
	return nil
}

func (m *recordingMembership) Dead() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dead...)
}

// tree is the scenario overlay:
//
//	R -> I, S
//	I -> L1, L2
//	S -> L3
type tree struct {
	hub        *transport.Hub
	clock      *fakeClock
	nodes      map[string]*Node
	topo       *topology.Topology
	membership *recordingMembership
}

var scenarioIDs = []string{"R", "I", "S", "L1", "L2", "L3"}

func newTree(t *testing.T) *tree {
	t.Helper()
	return newTreeOf(t, scenarioIDs, 2)
}

func newTreeOf(t *testing.T, ids []string, fanOut int) *tree {
	t.Helper()

	tr := &tree{
		hub:        transport.NewHub(64),
		clock:      &fakeClock{now: time.Unix(1_700_000_000, 0)},
		nodes:      make(map[string]*Node),
		membership: &recordingMembership{},
	}
	topo, err := topology.Build(ids, fanOut)
	require.NoError(t, err)
	tr.topo = topo

	root := ids[0]
	for _, id := range ids {
		opts := Options{
			Transport:            tr.hub.Endpoint(id),
			TickInterval:         time.Second,
			LivenessMultiplier:   3,
			MaxReconnectAttempts: 2,
			Now:                  tr.clock.Now,
			Sleep:                quickSleep,
		}
		var n *Node
		if id == root {
			n, err = InitRoot(id, opts)
			n.SetMembership(tr.membership)
		} else {
			n, err = InitLeaf(id, opts)
		}
		require.NoError(t, err)
		require.NoError(t, n.Attach(topo))
		tr.nodes[id] = n
	}

	t.Cleanup(func() {
		for _, n := range tr.nodes {
			n.Close(context.Background())
		}
	})
	return tr
}

func (tr *tree) tick(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, tr.nodes[id].Tick(context.Background()))
	}
}

// delivered waits until parent has accepted an update from child newer
// than since.
func (tr *tree) delivered(t *testing.T, parent, child string, since uint64) uint64 {
	t.Helper()
	var v uint64
	require.Eventually(t, func() bool {
		n := tr.nodes[parent]
		n.mu.Lock()
		v = n.childVersions[child]
		n.mu.Unlock()
		return v > since
	}, 2*time.Second, time.Millisecond, "%s never delivered to %s", child, parent)
	return v
}

func (tr *tree) version(parent, child string) uint64 {
	n := tr.nodes[parent]
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.childVersions[child]
}

// cascade runs one tick per level, leaves first, waiting for delivery of
// every live child.
func (tr *tree) cascade(t *testing.T, silent ...string) {
	t.Helper()
	skip := make(map[string]bool)
	for _, id := range silent {
		skip[id] = true
	}

	levels := map[int][]string{}
	maxLevel := 0
	for _, id := range tr.topoOf("R").Members() {
		if skip[id] {
			continue
		}
		l := tr.topoOf("R").Level(id)
		levels[l] = append(levels[l], id)
		maxLevel = max(maxLevel, l)
	}

	for l := maxLevel; l >= 0; l-- {
		for _, id := range levels[l] {
			topo := tr.topoOf(id)
			parent, hasParent := topo.Parent(id)
			before := uint64(0)
			if hasParent {
				before = tr.version(parent, id)
			}
			tr.tick(t, id)
			if hasParent {
				tr.delivered(t, parent, id, before)
			}
		}
	}
}

// rebuild broadcasts topo from the root and waits until every member has
// switched to it.
func (tr *tree) rebuild(t *testing.T, topo *topology.Topology) {
	t.Helper()
	participants := make([]wire.Participant, 0, topo.Len())
	for _, id := range topo.Members() {
		participants = append(participants, wire.Participant{ID: id})
	}
	require.NoError(t, tr.nodes[topo.Root()].Reconfigure(context.Background(), topo, participants))

	for _, id := range topo.Members() {
		id := id
		require.Eventually(t, func() bool {
			return tr.nodes[id].Topology().Epoch() == topo.Epoch()
		}, 2*time.Second, time.Millisecond, "%s never reconfigured", id)
		assert.Equal(t, StateActive, tr.nodes[id].State())
	}
}

func (tr *tree) topoOf(id string) *topology.Topology {
	return tr.nodes[id].Topology()
}

func TestEndToEndSum(t *testing.T) {
	tr := newTree(t)

	require.NoError(t, tr.nodes["L1"].SetCounter("iters", 5))
	require.NoError(t, tr.nodes["L2"].SetCounter("iters", 3))

	tr.cascade(t)

	got := tr.nodes["R"].CurrentAggregates()["iters"]
	assert.Equal(t, uint64(8), got.Value)
	assert.Equal(t, uint32(2), got.Contributors)
	assert.Equal(t, aggregate.PolicySum, got.Policy)

	mid := tr.nodes["I"].CurrentAggregates()["iters"]
	assert.Equal(t, uint64(8), mid.Value)
	assert.Empty(t, tr.nodes["S"].CurrentAggregates(), "L3 is silent")
}

func TestLivenessExcludesDeadChild(t *testing.T) {
	tr := newTree(t)

	require.NoError(t, tr.nodes["L1"].SetCounter("iters", 5))
	require.NoError(t, tr.nodes["L2"].SetCounter("iters", 3))
	tr.cascade(t)
	require.Equal(t, uint64(8), tr.nodes["R"].CurrentAggregates()["iters"].Value)

	// L2 stops reporting. Everyone else keeps ticking once per interval.
	for i := 0; i < 5; i++ {
		tr.clock.Advance(time.Second)
		tr.cascade(t, "L2")
	}

	st, known := tr.nodes["I"].children.State("L2")
	require.True(t, known)
	assert.Equal(t, liveness.StateDead, st)

	require.Eventually(t, func() bool {
		dead := tr.membership.Dead()
		return len(dead) == 1 && dead[0] == "L2"
	}, 2*time.Second, time.Millisecond, "root never learned about L2")

	got := tr.nodes["R"].CurrentAggregates()["iters"]
	assert.Equal(t, uint64(5), got.Value)
	assert.Equal(t, uint32(2), got.Contributors, "contributor count never decreases")

	// Rebuild without L2 and broadcast from the root.
	rebuilt, err := tr.topo.Without("L2")
	require.NoError(t, err)
	tr.rebuild(t, rebuilt)

	tr.clock.Advance(time.Second)
	tr.cascade(t, "L2")

	got = tr.nodes["R"].CurrentAggregates()["iters"]
	assert.Equal(t, uint64(5), got.Value)
	assert.Equal(t, uint32(2), got.Contributors)
}

func TestRebuildCountsMovedOriginOnce(t *testing.T) {
	// R -> A, B; A -> C, D; B -> E, F. Only E and F report x.
	tr := newTreeOf(t, []string{"R", "A", "B", "C", "D", "E", "F"}, 2)

	require.NoError(t, tr.nodes["E"].SetCounter("x", 5))
	require.NoError(t, tr.nodes["F"].SetCounter("x", 7))
	tr.cascade(t)

	got := tr.nodes["R"].CurrentAggregates()["x"]
	require.Equal(t, uint64(12), got.Value)
	require.Equal(t, uint32(2), got.Contributors)

	// Dropping C moves E under A while B still remembers it.
	rebuilt, err := tr.topo.Without("C")
	require.NoError(t, err)
	require.Equal(t, []string{"D", "E"}, rebuilt.Children("A"))
	tr.rebuild(t, rebuilt)

	tr.clock.Advance(time.Second)
	tr.cascade(t)

	got = tr.nodes["R"].CurrentAggregates()["x"]
	assert.Equal(t, uint64(12), got.Value)
	assert.Equal(t, uint32(2), got.Contributors, "E reported through two parents counts once")
	assert.Equal(t, []string{"E", "F"}, got.Seen)
	assert.Equal(t, map[string]uint64{"E": 5, "F": 7}, got.Values)
}

func TestOlderEpochUpdateDiscarded(t *testing.T) {
	tr := newTree(t)
	i := tr.nodes["I"]
	epoch := i.Topology().Epoch()
	require.Positive(t, epoch)

	err := i.OnChildUpdate("L1", &wire.Message{
		Kind: wire.KindAggregate, Sender: "L1", Epoch: epoch - 1, Version: 50,
		Entries: []wire.Entry{{Name: "q", Value: 1, Policy: aggregate.PolicySum, Origin: "L1"}},
	})
	assert.ErrorIs(t, err, errors.ErrStaleUpdate)
	assert.Zero(t, tr.version("I", "L1"), "rejected update must not advance the version")

	require.NoError(t, i.OnChildUpdate("L1", &wire.Message{
		Kind: wire.KindAggregate, Sender: "L1", Epoch: epoch, Version: 51,
		Entries: []wire.Entry{{Name: "q", Value: 2, Policy: aggregate.PolicySum, Origin: "L1"}},
	}))
	require.NoError(t, i.Tick(context.Background()))
	assert.Equal(t, uint64(2), i.CurrentAggregates()["q"].Value)
}

func TestConcurrentReconfigureKeepsNewestEpoch(t *testing.T) {
	hub := transport.NewHub(8)
	n, err := InitLeaf("x", Options{Transport: hub.Endpoint("x")})
	require.NoError(t, err)
	defer n.Close(context.Background())

	for epoch := uint64(1); epoch < 200; epoch += 2 {
		older, err := topology.BuildEpoch([]string{"x"}, 2, epoch)
		require.NoError(t, err)
		newer, err := topology.BuildEpoch([]string{"x"}, 2, epoch+1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, n.Reconfigure(context.Background(), newer, nil))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, n.Reconfigure(context.Background(), older, nil))
		}()
		wg.Wait()

		require.Equal(t, epoch+1, n.Topology().Epoch())
	}
}

func TestConcurrentTicksDeliverLatestTable(t *testing.T) {
	tr := newTreeOf(t, []string{"R", "L"}, 2)
	l := tr.nodes["L"]

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, l.SetCounter("x", uint64(g*1000+i)))
				assert.NoError(t, l.Tick(context.Background()))
			}
		}()
	}
	wg.Wait()

	want := l.CurrentAggregates()["x"].Value
	require.Eventually(t, func() bool {
		r := tr.nodes["R"]
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.childTables["L"]["x"].Value == want
	}, 2*time.Second, time.Millisecond, "root never received the latest published table")
}

func TestStaleUpdateDiscarded(t *testing.T) {
	tr := newTree(t)
	i := tr.nodes["I"]

	update := func(version, value uint64) *wire.Message {
		return &wire.Message{
			Kind: wire.KindAggregate, Sender: "L1", Epoch: 1, Version: version,
			Entries: []wire.Entry{{Name: "q", Value: value, Policy: aggregate.PolicySum, Contributors: 1, Origin: "L1"}},
		}
	}

	require.NoError(t, i.OnChildUpdate("L1", update(9, 90)))
	err := i.OnChildUpdate("L1", update(7, 70))
	assert.ErrorIs(t, err, errors.ErrStaleUpdate)
	assert.False(t, errors.IsProtocolError(err))

	err = i.OnChildUpdate("L1", update(9, 99))
	assert.ErrorIs(t, err, errors.ErrStaleUpdate)

	require.NoError(t, i.Tick(context.Background()))
	assert.Equal(t, uint64(90), i.CurrentAggregates()["q"].Value)
}

func TestUnknownChildRejected(t *testing.T) {
	tr := newTree(t)

	err := tr.nodes["I"].OnChildUpdate("L3", &wire.Message{Kind: wire.KindAggregate, Sender: "L3", Version: 1})
	assert.ErrorIs(t, err, errors.ErrUnknownChild)

	err = tr.nodes["I"].HandleMessage(context.Background(), "L1",
		&wire.Message{Kind: wire.KindAggregate, Sender: "L2", Version: 1})
	assert.True(t, errors.IsProtocolError(err), "spoofed sender must be a protocol violation, got %v", err)
}

func TestSetCounterByState(t *testing.T) {
	hub := transport.NewHub(8)
	n, err := InitLeaf("x", Options{Transport: hub.Endpoint("x")})
	require.NoError(t, err)

	assert.Equal(t, StateInitializing, n.State())
	require.NoError(t, n.SetCounter("buffered", 1), "counters are buffered before attach")
	assert.ErrorIs(t, n.SetCounter("", 1), errors.ErrInvalidName)

	n.state.Store(uint32(StateDraining))
	assert.ErrorIs(t, n.SetCounter("a", 1), errors.ErrDraining)

	n.state.Store(uint32(StateInitializing))
	require.NoError(t, n.Close(context.Background()))
	assert.Equal(t, StateClosed, n.State())
	assert.ErrorIs(t, n.SetCounter("a", 1), errors.ErrInvalidState)
	assert.ErrorIs(t, n.Tick(context.Background()), errors.ErrInvalidState)

	assert.Equal(t, 1, n.Counters().Len())
}

func TestCounterCapSurfacesError(t *testing.T) {
	hub := transport.NewHub(8)
	n, err := InitLeaf("x", Options{Transport: hub.Endpoint("x"), CounterCap: 1})
	require.NoError(t, err)
	defer n.Close(context.Background())

	require.NoError(t, n.SetCounter("a", 1))
	assert.ErrorIs(t, n.SetCounter("b", 1), errors.ErrResourceExhausted)
}

func TestPolicyConflict(t *testing.T) {
	tr := newTree(t)
	l1 := tr.nodes["L1"]

	require.NoError(t, l1.SetCounterWithPolicy("peak", 10, aggregate.PolicyMax))
	require.NoError(t, l1.SetCounterWithPolicy("peak", 12, aggregate.PolicyMax))
	assert.ErrorIs(t, l1.SetCounterWithPolicy("peak", 1, aggregate.PolicyMin), errors.ErrPolicyConflict)

	require.NoError(t, tr.nodes["L2"].SetCounterWithPolicy("peak", 30, aggregate.PolicyMax))
	tr.cascade(t)

	got := tr.nodes["R"].CurrentAggregates()["peak"]
	assert.Equal(t, aggregate.PolicyMax, got.Policy)
	assert.Equal(t, uint64(30), got.Value)
	assert.Equal(t, "L2", got.Origin)
}

func TestParentLossAndReconnect(t *testing.T) {
	tr := newTree(t)
	l1 := tr.nodes["L1"]

	require.NoError(t, l1.SetCounter("iters", 1))
	tr.cascade(t)

	tr.hub.Isolate("I")
	require.NoError(t, l1.Tick(context.Background()))

	require.Eventually(t, func() bool {
		return l1.Status().ParentLink == liveness.LinkDisconnected
	}, 2*time.Second, time.Millisecond)

	// Disconnected sub-root keeps accepting counters.
	require.NoError(t, l1.SetCounter("iters", 42))
	require.NoError(t, l1.Tick(context.Background()))
	assert.Equal(t, uint64(42), l1.CurrentAggregates()["iters"].Value)

	before := tr.version("I", "L1")
	tr.hub.Heal("I")

	require.Eventually(t, func() bool {
		return l1.Status().ParentLink == liveness.LinkConnected
	}, 2*time.Second, time.Millisecond)
	tr.delivered(t, "I", "L1", before)

	require.NoError(t, tr.nodes["I"].Tick(context.Background()))
	assert.Equal(t, uint64(42), tr.nodes["I"].CurrentAggregates()["iters"].Value)
}

func TestNonRetriableSendKeepsParentLink(t *testing.T) {
	tr := newTree(t)
	l1 := tr.nodes["L1"]

	l1.parentFailed(context.Background(), errors.ErrResourceExhausted)
	assert.Equal(t, liveness.LinkConnected, l1.Status().ParentLink)

	tr.hub.Isolate("I")
	l1.parentFailed(context.Background(), fmt.Errorf("send: %w", errors.ErrConnectionFailed))
	assert.NotEqual(t, liveness.LinkConnected, l1.Status().ParentLink)
}

func TestMemberDeadForwardedToRoot(t *testing.T) {
	tr := newTree(t)

	err := tr.nodes["I"].HandleMessage(context.Background(), "L1",
		&wire.Message{Kind: wire.KindMemberDead, Sender: "L1", Dead: []string{"ghost"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		dead := tr.membership.Dead()
		return len(dead) == 1 && dead[0] == "ghost"
	}, 2*time.Second, time.Millisecond)
}

func TestStatus(t *testing.T) {
	tr := newTree(t)

	s := tr.nodes["I"].Status()
	assert.Equal(t, "I", s.ID)
	assert.Equal(t, topology.RoleInternal, s.Role)
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, "R", s.Parent)
	assert.Equal(t, liveness.LinkConnected, s.ParentLink)
	require.Len(t, s.Children, 2)
	assert.Equal(t, "L1", s.Children[0].ID)

	root := tr.nodes["R"].Status()
	assert.Equal(t, topology.RoleRoot, root.Role)
	assert.Equal(t, liveness.LinkNone, root.ParentLink)
}
