package overlay

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/errors"
)

// Run drives Tick every tick interval until ctx is canceled or the node is
// closed. The first tick is delayed by a random fraction of the interval so
// that ranks started together do not tick in lockstep.
func (n *Node) Run(ctx context.Context) error {
	interval := n.opts.TickInterval
	jitter := time.Duration(rand.Int64N(int64(interval)))

	log.Info("propagation scheduler started", "node", n.id, "interval", interval, "first_tick", jitter)

	first := time.NewTimer(jitter)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.ctx.Done():
		return nil
	case <-first.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n.tickWithRecovery(ctx)

		select {
		case <-ctx.Done():
			log.Info("propagation scheduler stopping", "node", n.id)
			return ctx.Err()
		case <-n.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// tickWithRecovery runs one tick and converts a panic into a logged error so
// a single bad merge does not take the node down.
func (n *Node) tickWithRecovery(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in tick", "node", n.id, "panic", r,
				"error", fmt.Errorf("%w: %v", errors.ErrInternal, r))
		}
	}()

	if err := n.Tick(ctx); err != nil && n.State() != StateClosed {
		log.Warn("tick failed", "node", n.id, "error", err)
	}
}

// Close flushes a final aggregate to the parent, stops background
// reconnection and moves the node to CLOSED. The transport is left open;
// it belongs to the caller.
func (n *Node) Close(ctx context.Context) error {
	if State(n.state.Load()) == StateClosed {
		return nil
	}
	if n.State() == StateActive {
		n.state.Store(uint32(StateDraining))
		n.flush(ctx)
	}
	n.state.Store(uint32(StateClosed))
	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.DefaultDrainTimeout)
		defer cancel()
	}
	select {
	case <-done:
		log.Info("node closed", "node", n.id)
		return nil
	case <-ctx.Done():
		log.Warn("node close timed out waiting for background work", "node", n.id)
		return ctx.Err()
	}
}
