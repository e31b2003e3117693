package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/wire"
)

// TCPConfig configures a TCP transport.
type TCPConfig struct {
	// ID is this node's participant ID, announced in HELLO.
	ID string

	// ListenAddr is the address to accept peers on.
	ListenAddr string

	// AdvertiseAddr is announced to peers. Defaults to the listener address.
	AdvertiseAddr string

	MaxMessageSize int
	DialTimeout    time.Duration
	ControlQueue   int
}

// TCP is a Transport over plain TCP connections. Each node dials its own
// outbound connection per peer; inbound connections are read-only.
type TCP struct {
	cfg TCPConfig
	ln  net.Listener

	handler atomic.Pointer[Handler]

	mu      sync.Mutex
	addrs   map[string]string
	peers   map[string]*tcpPeer
	inbound map[net.Conn]string

	dials singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

type tcpPeer struct {
	id  string
	box *outbox

	mu   sync.Mutex
	conn net.Conn
	w    *wire.Writer

	failed atomic.Bool
}

// ListenTCP starts accepting peers on cfg.ListenAddr.
func ListenTCP(cfg TCPConfig) (*TCP, error) {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultMaxMessageSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = config.DefaultDialTimeout
	}
	if cfg.ControlQueue <= 0 {
		cfg.ControlQueue = config.DefaultControlQueueSize
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = ln.Addr().String()
	}

	t := &TCP{
		cfg:     cfg,
		ln:      ln,
		addrs:   make(map[string]string),
		peers:   make(map[string]*tcpPeer),
		inbound: make(map[net.Conn]string),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go t.acceptLoop()

	log.Info("tcp transport listening", "node", cfg.ID, "addr", ln.Addr().String())
	return t, nil
}

// Addr returns the listener address.
func (t *TCP) Addr() string { return t.ln.Addr().String() }

// AdvertiseAddr returns the address announced to peers.
func (t *TCP) AdvertiseAddr() string { return t.cfg.AdvertiseAddr }

// SetPeers implements Transport. Peers whose address changed are
// disconnected so the next send dials the new address.
func (t *TCP) SetPeers(peers []wire.Participant) {
	t.mu.Lock()
	var stale []*tcpPeer
	for _, p := range peers {
		if p.Addr == "" || p.ID == t.cfg.ID {
			continue
		}
		if old, ok := t.addrs[p.ID]; ok && old != p.Addr {
			if peer := t.peers[p.ID]; peer != nil {
				stale = append(stale, peer)
			}
		}
		t.addrs[p.ID] = p.Addr
	}
	t.mu.Unlock()

	for _, peer := range stale {
		peer.disconnect()
	}
}

// OnReceive implements Transport.
func (t *TCP) OnReceive(h Handler) {
	t.handler.Store(&h)
}

// Send implements Transport.
func (t *TCP) Send(to string, m *wire.Message) error {
	if t.closed.Load() {
		return errors.ErrClosed
	}
	peer, err := t.peer(to)
	if err != nil {
		return err
	}
	if peer.failed.Load() {
		return fmt.Errorf("send %s to %s: %w", m.Kind, to, errors.ErrConnectionFailed)
	}
	return peer.box.put(m)
}

// Dial implements Transport. Concurrent dials to the same peer share one
// connection attempt.
func (t *TCP) Dial(ctx context.Context, to string) error {
	peer, err := t.peer(to)
	if err != nil {
		return err
	}
	return t.connect(ctx, peer)
}

// Drop implements Transport.
func (t *TCP) Drop(peer string) {
	t.mu.Lock()
	p := t.peers[peer]
	var conns []net.Conn
	for c, id := range t.inbound {
		if id == peer {
			conns = append(conns, c)
		}
	}
	t.mu.Unlock()

	if p != nil {
		p.box.clear()
		p.disconnect()
	}
	for _, c := range conns {
		c.Close()
	}
}

// Close implements Transport.
func (t *TCP) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.cancel()
	err := t.ln.Close()

	t.mu.Lock()
	for _, p := range t.peers {
		p.box.close()
		p.disconnect()
	}
	for c := range t.inbound {
		c.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	return err
}

func (t *TCP) peer(id string) (*tcpPeer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.peers[id]; ok {
		return p, nil
	}
	if _, ok := t.addrs[id]; !ok {
		return nil, fmt.Errorf("peer %q: %w", id, errors.ErrUnknownPeer)
	}
	p := &tcpPeer{id: id, box: newOutbox(t.cfg.ControlQueue)}
	t.peers[id] = p
	t.wg.Add(1)
	go t.writeLoop(p)
	return p, nil
}

func (t *TCP) connect(ctx context.Context, p *tcpPeer) error {
	_, err, _ := t.dials.Do(p.id, func() (any, error) {
		p.mu.Lock()
		connected := p.conn != nil
		p.mu.Unlock()
		if connected {
			p.failed.Store(false)
			return nil, nil
		}

		t.mu.Lock()
		addr := t.addrs[p.id]
		t.mu.Unlock()

		dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			p.failed.Store(true)
			return nil, fmt.Errorf("dial %s at %s: %v: %w", p.id, addr, err, errors.ErrConnectionFailed)
		}

		w := wire.NewWriter(conn, t.cfg.MaxMessageSize)
		hello := &wire.Message{Kind: wire.KindHello, Sender: t.cfg.ID, Addr: t.cfg.AdvertiseAddr}
		if err := w.Write(hello); err != nil {
			conn.Close()
			p.failed.Store(true)
			return nil, fmt.Errorf("hello to %s: %v: %w", p.id, err, errors.ErrConnectionFailed)
		}

		p.mu.Lock()
		p.conn, p.w = conn, w
		p.mu.Unlock()
		p.failed.Store(false)

		log.Debug("connected to peer", "node", t.cfg.ID, "peer", p.id, "addr", addr)
		return nil, nil
	})
	return err
}

func (t *TCP) writeLoop(p *tcpPeer) {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-p.box.notify:
		}

		msgs := p.box.take()
		if len(msgs) == 0 {
			continue
		}
		if unsent, err := t.writeAll(p, msgs); err != nil {
			if t.closed.Load() {
				return
			}
			p.failed.Store(true)
			p.disconnect()
			p.box.requeue(unsent)
			log.Warn("peer write failed", "node", t.cfg.ID, "peer", p.id, "error", err)
		}
	}
}

// writeAll returns the messages left unsent on error.
func (t *TCP) writeAll(p *tcpPeer, msgs []*wire.Message) ([]*wire.Message, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.DialTimeout)
	defer cancel()
	if err := t.connect(ctx, p); err != nil {
		return msgs, err
	}

	p.mu.Lock()
	w := p.w
	p.mu.Unlock()
	if w == nil {
		return msgs, errors.ErrConnectionFailed
	}

	for i, m := range msgs {
		if err := w.Write(m); err != nil {
			return msgs[i:], err
		}
	}
	return nil, nil
}

func (p *tcpPeer) disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn, p.w = nil, nil
	}
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			if t.closed.Load() {
				return
			}
			log.Warn("accept failed", "node", t.cfg.ID, "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.inbound[conn] = ""
		t.mu.Unlock()

		t.wg.Add(1)
		go t.readLoop(conn)
	}
}

func (t *TCP) readLoop(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		conn.Close()
		t.mu.Lock()
		delete(t.inbound, conn)
		t.mu.Unlock()
	}()

	r := wire.NewReader(conn, t.cfg.MaxMessageSize)
	var peer string
	for {
		m, err := r.Read()
		if err != nil {
			if err != io.EOF && !t.closed.Load() {
				log.Debug("peer connection closed", "node", t.cfg.ID, "peer", peer, "error", err)
			}
			return
		}

		if peer == "" {
			peer = m.Sender
			t.mu.Lock()
			t.inbound[conn] = peer
			if m.Kind == wire.KindHello && m.Addr != "" {
				if _, known := t.addrs[peer]; !known {
					t.addrs[peer] = m.Addr
				}
			}
			t.mu.Unlock()
		}
		if m.Kind == wire.KindHello {
			continue
		}

		if h := t.handler.Load(); h != nil {
			(*h)(peer, m)
		}
	}
}

var _ Transport = (*TCP)(nil)
