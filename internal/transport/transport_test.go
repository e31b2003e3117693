package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/wire"
)

func aggregateMsg(sender string, version uint64) *wire.Message {
	return &wire.Message{Kind: wire.KindAggregate, Sender: sender, Version: version}
}

func TestOutboxLatestAggregateWins(t *testing.T) {
	box := newOutbox(4)

	require.NoError(t, box.put(aggregateMsg("a", 1)))
	require.NoError(t, box.put(&wire.Message{Kind: wire.KindMemberDead, Sender: "a", Version: 2}))
	require.NoError(t, box.put(aggregateMsg("a", 3)))
	require.NoError(t, box.put(&wire.Message{Kind: wire.KindReconfigure, Sender: "a", Version: 4}))

	got := box.take()
	require.Len(t, got, 3)
	assert.Equal(t, wire.KindMemberDead, got[0].Kind)
	assert.Equal(t, wire.KindReconfigure, got[1].Kind)
	assert.Equal(t, uint64(3), got[2].Version, "only the newest aggregate is kept")
	assert.Empty(t, box.take())
}

func TestOutboxControlLimit(t *testing.T) {
	box := newOutbox(2)
	require.NoError(t, box.put(&wire.Message{Kind: wire.KindJoin, Sender: "a"}))
	require.NoError(t, box.put(&wire.Message{Kind: wire.KindJoin, Sender: "b"}))
	assert.ErrorIs(t, box.put(&wire.Message{Kind: wire.KindJoin, Sender: "c"}), errors.ErrResourceExhausted)

	// Aggregates are never refused.
	assert.NoError(t, box.put(aggregateMsg("a", 1)))
}

func TestOutboxRequeueKeepsNewerAggregate(t *testing.T) {
	box := newOutbox(4)
	require.NoError(t, box.put(aggregateMsg("a", 9)))

	box.requeue([]*wire.Message{
		{Kind: wire.KindMemberDead, Sender: "a"},
		aggregateMsg("a", 5),
	})

	got := box.take()
	require.Len(t, got, 2)
	assert.Equal(t, wire.KindMemberDead, got[0].Kind)
	assert.Equal(t, uint64(9), got[1].Version)
}

type inbox struct {
	mu   sync.Mutex
	msgs []*wire.Message
	from []string
}

func (in *inbox) handle(from string, m *wire.Message) {
	in.mu.Lock()
	in.msgs = append(in.msgs, m)
	in.from = append(in.from, from)
	in.mu.Unlock()
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.msgs)
}

func (in *inbox) last() (string, *wire.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.from[len(in.from)-1], in.msgs[len(in.msgs)-1]
}

func TestMemoryDelivery(t *testing.T) {
	hub := NewHub(16)
	a := hub.Endpoint("a")
	b := hub.Endpoint("b")
	defer a.Close()
	defer b.Close()

	var got inbox
	b.OnReceive(got.handle)

	require.NoError(t, a.Send("b", aggregateMsg("a", 1)))
	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)

	from, m := got.last()
	assert.Equal(t, "a", from)
	assert.Equal(t, uint64(1), m.Version)
}

func TestMemoryPartition(t *testing.T) {
	hub := NewHub(16)
	a := hub.Endpoint("a")
	b := hub.Endpoint("b")
	defer a.Close()
	defer b.Close()

	hub.Isolate("b")
	assert.ErrorIs(t, a.Send("b", aggregateMsg("a", 1)), errors.ErrConnectionFailed)
	assert.ErrorIs(t, a.Dial(context.Background(), "b"), errors.ErrConnectionFailed)

	hub.Heal("b")
	require.NoError(t, a.Dial(context.Background(), "b"))

	var got inbox
	b.OnReceive(got.handle)
	require.NoError(t, a.Send("b", aggregateMsg("a", 2)))
	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMemoryUnknownEndpoint(t *testing.T) {
	hub := NewHub(16)
	a := hub.Endpoint("a")
	defer a.Close()

	assert.ErrorIs(t, a.Send("ghost", aggregateMsg("a", 1)), errors.ErrConnectionFailed)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Send("ghost", aggregateMsg("a", 1)), errors.ErrClosed)
	assert.Equal(t, 0, hub.Endpoints())
}

func TestTCPDelivery(t *testing.T) {
	a, err := ListenTCP(TCPConfig{ID: "a", ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.Close()
	b, err := ListenTCP(TCPConfig{ID: "b", ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer b.Close()

	var got inbox
	b.OnReceive(got.handle)

	assert.ErrorIs(t, a.Send("b", aggregateMsg("a", 1)), errors.ErrUnknownPeer)

	a.SetPeers([]wire.Participant{{ID: "a", Addr: a.Addr()}, {ID: "b", Addr: b.Addr()}})
	require.NoError(t, a.Dial(context.Background(), "b"))

	require.NoError(t, a.Send("b", &wire.Message{Kind: wire.KindMemberDead, Sender: "a", Dead: []string{"x"}}))
	require.NoError(t, a.Send("b", aggregateMsg("a", 7)))

	require.Eventually(t, func() bool { return got.len() >= 2 }, 2*time.Second, 10*time.Millisecond)
	from, m := got.last()
	assert.Equal(t, "a", from)
	assert.Equal(t, wire.KindAggregate, m.Kind)
	assert.Equal(t, uint64(7), m.Version)
}

func TestTCPDialFailure(t *testing.T) {
	a, err := ListenTCP(TCPConfig{ID: "a", ListenAddr: "127.0.0.1:0", DialTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer a.Close()

	// Reserve a port, then close it so nothing listens there.
	dead, err := ListenTCP(TCPConfig{ID: "dead", ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	addr := dead.Addr()
	require.NoError(t, dead.Close())

	a.SetPeers([]wire.Participant{{ID: "dead", Addr: addr}})
	err = a.Dial(context.Background(), "dead")
	assert.ErrorIs(t, err, errors.ErrConnectionFailed)
	assert.ErrorIs(t, a.Send("dead", aggregateMsg("a", 1)), errors.ErrConnectionFailed)
}
