package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/wire"
)

// Hub connects in-process endpoints. It supports network partitions for
// tests and the simulator.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	isolated  map[string]bool
	queueSize int
}

// NewHub creates an empty hub. queueSize bounds each peer's control queue.
func NewHub(queueSize int) *Hub {
	return &Hub{
		endpoints: make(map[string]*Endpoint),
		isolated:  make(map[string]bool),
		queueSize: queueSize,
	}
}

// Endpoint registers id and returns its transport. Registering an id again
// replaces the previous endpoint, which is closed.
func (h *Hub) Endpoint(id string) *Endpoint {
	e := &Endpoint{
		hub:     h,
		id:      id,
		writers: make(map[string]*memWriter),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	h.mu.Lock()
	prev := h.endpoints[id]
	h.endpoints[id] = e
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return e
}

// Isolate cuts id off from every other endpoint.
func (h *Hub) Isolate(id string) {
	h.mu.Lock()
	h.isolated[id] = true
	h.mu.Unlock()
}

// Heal reverses Isolate.
func (h *Hub) Heal(id string) {
	h.mu.Lock()
	delete(h.isolated, id)
	h.mu.Unlock()
}

// Endpoints returns the number of registered endpoints.
func (h *Hub) Endpoints() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

// route returns the endpoint for to if from can reach it.
func (h *Hub) route(from, to string) (*Endpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.isolated[from] || h.isolated[to] {
		return nil, false
	}
	e, ok := h.endpoints[to]
	if !ok || e.closed.Load() {
		return nil, false
	}
	return e, true
}

func (h *Hub) unregister(e *Endpoint) {
	h.mu.Lock()
	if h.endpoints[e.id] == e {
		delete(h.endpoints, e.id)
	}
	h.mu.Unlock()
}

// Endpoint is one node's attachment to a Hub.
type Endpoint struct {
	hub *Hub
	id  string

	handler atomic.Pointer[Handler]

	mu      sync.Mutex
	writers map[string]*memWriter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

type memWriter struct {
	box    *outbox
	failed atomic.Bool
}

// ID returns the endpoint's participant ID.
func (e *Endpoint) ID() string { return e.id }

// Send implements Transport.
func (e *Endpoint) Send(to string, m *wire.Message) error {
	if e.closed.Load() {
		return errors.ErrClosed
	}
	if _, ok := e.hub.route(e.id, to); !ok {
		return fmt.Errorf("send %s to %s: %w", m.Kind, to, errors.ErrConnectionFailed)
	}
	w := e.writer(to)
	if w.failed.Load() {
		return fmt.Errorf("send %s to %s: %w", m.Kind, to, errors.ErrConnectionFailed)
	}
	return w.box.put(m)
}

// OnReceive implements Transport.
func (e *Endpoint) OnReceive(h Handler) {
	e.handler.Store(&h)
}

// Dial implements Transport. It succeeds when to is registered and not
// partitioned from this endpoint.
func (e *Endpoint) Dial(ctx context.Context, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := e.hub.route(e.id, to); !ok {
		return fmt.Errorf("dial %s: %w", to, errors.ErrConnectionFailed)
	}
	e.writer(to).failed.Store(false)
	return nil
}

// Drop implements Transport.
func (e *Endpoint) Drop(peer string) {
	e.mu.Lock()
	w := e.writers[peer]
	e.mu.Unlock()
	if w != nil {
		w.box.clear()
	}
}

// SetPeers implements Transport. In-process peers need no addresses.
func (e *Endpoint) SetPeers([]wire.Participant) {}

// Close implements Transport.
func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cancel()
	e.mu.Lock()
	for _, w := range e.writers {
		w.box.close()
	}
	e.mu.Unlock()
	e.wg.Wait()
	e.hub.unregister(e)
	return nil
}

func (e *Endpoint) writer(to string) *memWriter {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.writers[to]; ok {
		return w
	}
	w := &memWriter{box: newOutbox(e.hub.queueSize)}
	e.writers[to] = w
	e.wg.Add(1)
	go e.deliver(to, w)
	return w
}

func (e *Endpoint) deliver(to string, w *memWriter) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-w.box.notify:
		}

		for _, m := range w.box.take() {
			target, ok := e.hub.route(e.id, to)
			if !ok {
				w.failed.Store(true)
				log.Debug("memory delivery failed", "from", e.id, "to", to, "kind", m.Kind.String())
				break
			}
			if h := target.handler.Load(); h != nil {
				(*h)(e.id, m)
			}
		}
	}
}

var _ Transport = (*Endpoint)(nil)
