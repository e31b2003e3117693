package liveness

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/treemon/config"
)

// LinkState is the state of a node's link to its parent.
type LinkState uint8

const (
	LinkNone LinkState = iota // root, no parent
	LinkConnected
	LinkSuspect
	LinkDisconnected // gave up; node acts as a disconnected sub-root
)

func (s LinkState) String() string {
	switch s {
	case LinkNone:
		return "none"
	case LinkConnected:
		return "connected"
	case LinkSuspect:
		return "suspect"
	case LinkDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s LinkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backoff is an exponential backoff schedule with full jitter on the upper
// half of each delay.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool
}

// DefaultBackoff returns the configured default schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   config.DefaultReconnectBase,
		Max:    config.DefaultReconnectMax,
		Factor: 2,
		Jitter: true,
	}
}

// Delay returns the wait before attempt n (starting at 0).
func (b Backoff) Delay(n int) time.Duration {
	if b.Base <= 0 {
		b.Base = config.DefaultReconnectBase
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	if b.Factor < 1 {
		b.Factor = 2
	}

	d := float64(b.Base)
	for i := 0; i < n && d < float64(b.Max); i++ {
		d *= b.Factor
	}
	delay := time.Duration(min(d, float64(b.Max)))
	if b.Jitter && delay > 1 {
		half := delay / 2
		delay = half + rand.N(half)
	}
	return delay
}

// ParentConfig configures a ParentLink.
type ParentConfig struct {
	Backoff     Backoff
	MaxAttempts int

	// Sleep waits between attempts; tests replace it. It returns early with
	// ctx's error.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ParentLink tracks the link to the parent and runs reconnection.
// It is safe for concurrent use.
type ParentLink struct {
	cfg ParentConfig

	mu       sync.Mutex
	parent   string
	state    LinkState
	attempts int
	lastErr  error

	flight singleflight.Group
}

// NewParentLink creates a link in state LinkNone.
func NewParentLink(cfg ParentConfig) *ParentLink {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = config.DefaultMaxReconnectAttempts
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &ParentLink{cfg: cfg}
}

// Set points the link at a new parent, or clears it for the root.
// A new parent starts connected.
func (p *ParentLink) Set(parent string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if parent == p.parent && p.state != LinkNone {
		return
	}
	p.parent = parent
	p.attempts = 0
	p.lastErr = nil
	if parent == "" {
		p.state = LinkNone
	} else {
		p.state = LinkConnected
	}
}

// Parent returns the current parent.
func (p *ParentLink) Parent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// State returns the link state.
func (p *ParentLink) State() LinkState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns the failed reconnection attempts since the last success.
func (p *ParentLink) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Up reports whether aggregates should be sent to the parent.
func (p *ParentLink) Up() bool {
	return p.State() == LinkConnected
}

// Failed marks the link suspect after a send failure. It reports whether the
// link was previously connected.
func (p *ParentLink) Failed(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if p.state != LinkConnected {
		return false
	}
	p.state = LinkSuspect
	log.Warn("parent link suspect", "parent", p.parent, "error", err)
	return true
}

// Reconnect dials the parent until it succeeds or ctx ends. Concurrent
// calls share one reconnection loop. After MaxAttempts failures the link
// becomes LinkDisconnected and onGiveUp runs once; dialing continues at the
// backoff cap. onUp runs after a successful dial.
func (p *ParentLink) Reconnect(ctx context.Context, dial func(ctx context.Context, parent string) error, onUp, onGiveUp func()) error {
	_, err, _ := p.flight.Do("reconnect", func() (any, error) {
		return nil, p.reconnect(ctx, dial, onUp, onGiveUp)
	})
	return err
}

func (p *ParentLink) reconnect(ctx context.Context, dial func(ctx context.Context, parent string) error, onUp, onGiveUp func()) error {
	for {
		p.mu.Lock()
		parent, state, attempt := p.parent, p.state, p.attempts
		p.mu.Unlock()

		if state == LinkConnected || state == LinkNone {
			return nil
		}

		if err := p.cfg.Sleep(ctx, p.cfg.Backoff.Delay(attempt)); err != nil {
			return err
		}

		err := dial(ctx, parent)

		p.mu.Lock()
		if p.parent != parent {
			// Reconfigured while dialing; the new parent starts fresh.
			p.mu.Unlock()
			continue
		}
		if err == nil {
			p.state = LinkConnected
			p.attempts = 0
			p.lastErr = nil
			p.mu.Unlock()

			log.Info("parent link restored", "parent", parent, "attempts", attempt+1)
			if onUp != nil {
				onUp()
			}
			return nil
		}

		p.attempts++
		p.lastErr = err
		gaveUp := p.attempts == p.cfg.MaxAttempts
		if gaveUp {
			p.state = LinkDisconnected
		}
		p.mu.Unlock()

		log.Debug("parent reconnect failed", "parent", parent, "attempt", attempt+1, "error", err)
		if gaveUp {
			log.Warn("parent unreachable, continuing as disconnected sub-root",
				"parent", parent, "attempts", p.cfg.MaxAttempts)
			if onGiveUp != nil {
				onGiveUp()
			}
		}
	}
}

// LastError returns the most recent send or dial error.
func (p *ParentLink) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
