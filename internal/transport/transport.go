// Package transport moves overlay messages between nodes.
//
// Sends are asynchronous. Each peer has an outbox holding at most one
// aggregate message, which a newer aggregate replaces, plus an ordered queue
// of control messages that are never superseded. A writer goroutine per peer
// drains the outbox, control messages first.
package transport

import (
	"context"
	"sync"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/wire"
)

var log = logging.Component("transport")

// Handler receives every inbound message. from is the connection's peer,
// which equals m.Sender for well-behaved peers.
type Handler func(from string, m *wire.Message)

// Transport is the point-to-point substrate under the overlay.
type Transport interface {
	// Send queues m for delivery to peer to. It never blocks on the network.
	// It fails with ErrUnknownPeer for peers without an address and with
	// ErrConnectionFailed when the last delivery attempt to the peer failed.
	Send(to string, m *wire.Message) error

	// OnReceive installs the inbound handler.
	OnReceive(h Handler)

	// Dial (re)establishes the link to a peer.
	Dial(ctx context.Context, to string) error

	// Drop discards queued messages and closes links to and from peer.
	Drop(peer string)

	// SetPeers replaces the known peer addresses.
	SetPeers(peers []wire.Participant)

	Close() error
}

// outbox is the per-peer send queue.
type outbox struct {
	mu        sync.Mutex
	aggregate *wire.Message
	control   []*wire.Message
	limit     int
	closed    bool

	notify chan struct{}
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = 64
	}
	return &outbox{limit: limit, notify: make(chan struct{}, 1)}
}

// put queues m. A full control queue drops the message with
// ErrResourceExhausted.
func (o *outbox) put(m *wire.Message) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.ErrClosed
	}
	if m.Kind.Control() {
		if len(o.control) >= o.limit {
			o.mu.Unlock()
			return errors.ErrResourceExhausted
		}
		o.control = append(o.control, m)
	} else {
		o.aggregate = m
	}
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// take removes everything queued, control messages first.
func (o *outbox) take() []*wire.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := o.control
	o.control = nil
	if o.aggregate != nil {
		out = append(out, o.aggregate)
		o.aggregate = nil
	}
	return out
}

// requeue puts undelivered messages back in front of newer ones. An
// undelivered aggregate is kept only if no newer one arrived.
func (o *outbox) requeue(msgs []*wire.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var control []*wire.Message
	for _, m := range msgs {
		if m.Kind.Control() {
			control = append(control, m)
		} else if o.aggregate == nil {
			o.aggregate = m
		}
	}
	o.control = append(control, o.control...)
	if len(o.control) > o.limit {
		o.control = o.control[len(o.control)-o.limit:]
	}
}

func (o *outbox) clear() {
	o.mu.Lock()
	o.control = nil
	o.aggregate = nil
	o.mu.Unlock()
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.control = nil
	o.aggregate = nil
	o.mu.Unlock()
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.control)
	if o.aggregate != nil {
		n++
	}
	return n
}
