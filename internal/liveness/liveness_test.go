package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestChildSuspectThenDead(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m := NewChildMonitor(ChildConfig{Interval: time.Second, Multiplier: 3, Now: clock.Now})
	m.Reset([]string{"L1", "L2"})

	require.Equal(t, 3*time.Second, m.Timeout())

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		m.Seen("L1")
		got := m.Sweep()
		switch i {
		case 0, 1, 2:
			assert.Empty(t, got, "tick %d", i)
		case 3:
			require.Len(t, got, 1)
			assert.Equal(t, Transition{Child: "L2", From: StateAlive, To: StateSuspect, Silent: 4 * time.Second}, got[0])
		case 4:
			require.Len(t, got, 1)
			assert.Equal(t, "L2", got[0].Child)
			assert.Equal(t, StateDead, got[0].To)
		}
	}

	st, _ := m.State("L1")
	assert.Equal(t, StateAlive, st)

	// DEAD is final.
	m.Seen("L2")
	st, _ = m.State("L2")
	assert.Equal(t, StateDead, st)
	assert.Empty(t, m.Sweep())
}

func TestChildRecoversFromSuspect(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewChildMonitor(ChildConfig{Interval: time.Second, Multiplier: 3, Now: clock.Now})
	m.Reset([]string{"c"})

	clock.Advance(3500 * time.Millisecond)
	require.Len(t, m.Sweep(), 1)

	m.Seen("c")
	st, _ := m.State("c")
	assert.Equal(t, StateAlive, st)

	clock.Advance(time.Second)
	assert.Empty(t, m.Sweep())
}

func TestChildResetKeepsHistory(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewChildMonitor(ChildConfig{Interval: time.Second, Multiplier: 3, Now: clock.Now})
	m.Reset([]string{"a", "b"})
	m.Seen("a")
	m.Seen("a")

	m.Reset([]string{"a", "c"})
	health := m.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "a", health[0].ID)
	assert.Equal(t, uint64(2), health[0].Updates)
	assert.Equal(t, "c", health[1].ID)

	assert.False(t, m.Seen("b"), "removed child must be unknown")
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for n, w := range want {
		assert.Equal(t, w*time.Millisecond, b.Delay(n), "attempt %d", n)
	}

	b.Jitter = true
	for n := 0; n < 10; n++ {
		d := b.Delay(n)
		assert.LessOrEqual(t, d, time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestParentReconnectSucceeds(t *testing.T) {
	p := NewParentLink(ParentConfig{MaxAttempts: 5, Sleep: noSleep})
	p.Set("I")
	require.True(t, p.Failed(errors.New("broken pipe")))
	require.False(t, p.Failed(errors.New("again")), "second failure is not a new transition")
	assert.Equal(t, LinkSuspect, p.State())

	var dials, ups int
	err := p.Reconnect(context.Background(), func(_ context.Context, parent string) error {
		assert.Equal(t, "I", parent)
		dials++
		if dials < 3 {
			return errors.New("refused")
		}
		return nil
	}, func() { ups++ }, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, dials)
	assert.Equal(t, 1, ups)
	assert.Equal(t, LinkConnected, p.State())
	assert.Equal(t, 0, p.Attempts())
}

func TestParentGivesUpThenReconnects(t *testing.T) {
	p := NewParentLink(ParentConfig{MaxAttempts: 2, Sleep: noSleep})
	p.Set("I")
	p.Failed(errors.New("down"))

	var dials int
	var gaveUp atomic.Bool
	err := p.Reconnect(context.Background(), func(context.Context, string) error {
		dials++
		if dials <= 4 {
			return errors.New("down")
		}
		return nil
	}, nil, func() {
		gaveUp.Store(true)
		assert.Equal(t, LinkDisconnected, p.State())
	})

	require.NoError(t, err)
	assert.True(t, gaveUp.Load())
	assert.Equal(t, LinkConnected, p.State())
}

func TestParentReconnectStopsWithContext(t *testing.T) {
	p := NewParentLink(ParentConfig{MaxAttempts: 1, Sleep: noSleep})
	p.Set("I")
	p.Failed(errors.New("down"))

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Reconnect(ctx, func(context.Context, string) error {
		cancel()
		return errors.New("down")
	}, nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, LinkDisconnected, p.State())
}

func TestParentReconnectCoalesced(t *testing.T) {
	p := NewParentLink(ParentConfig{MaxAttempts: 5, Sleep: noSleep})
	p.Set("I")
	p.Failed(errors.New("down"))

	release := make(chan struct{})
	var dials atomic.Int32
	dial := func(context.Context, string) error {
		dials.Add(1)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Reconnect(context.Background(), dial, nil, nil)
		}()
	}
	require.Eventually(t, func() bool { return dials.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// Callers arriving after the shared attempt find the link connected.
	assert.LessOrEqual(t, dials.Load(), int32(1))
	assert.Equal(t, LinkConnected, p.State())
}
