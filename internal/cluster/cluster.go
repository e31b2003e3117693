// Package cluster runs a whole overlay in one process on the in-memory hub.
// The simulator and multi-node tests use it.
package cluster

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/treemon/internal/coordinator"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/transport"
	"github.com/xtxerr/treemon/internal/wire"
)

var log = logging.Component("cluster")

// Config configures a cluster.
type Config struct {
	// Ranks is the number of participants including the root.
	Ranks int

	FanOut int

	// Options is the template for every node. Transport is set per node.
	Options overlay.Options

	// ControlQueue bounds each peer's control queue on the hub.
	ControlQueue int
}

// Cluster is a set of nodes wired through one hub. The first rank is the
// root and hosts the coordinator.
type Cluster struct {
	hub   *transport.Hub
	root  *overlay.Node
	coord *coordinator.Coordinator

	mu        sync.Mutex
	ids       []string
	nodes     map[string]*overlay.Node
	endpoints map[string]*transport.Endpoint
	killed    map[string]bool
}

// RankID returns the participant ID of rank i.
func RankID(i int) string {
	return fmt.Sprintf("rank-%04d", i)
}

// New creates the nodes and attaches them to one topology.
func New(ctx context.Context, cfg Config) (*Cluster, error) {
	if cfg.Ranks < 1 {
		return nil, fmt.Errorf("ranks %d: %w", cfg.Ranks, errors.ErrInvalidConfig)
	}
	c := &Cluster{
		hub:       transport.NewHub(cfg.ControlQueue),
		nodes:     make(map[string]*overlay.Node, cfg.Ranks),
		endpoints: make(map[string]*transport.Endpoint, cfg.Ranks),
		killed:    make(map[string]bool),
	}

	participants := make([]wire.Participant, cfg.Ranks)
	for i := 0; i < cfg.Ranks; i++ {
		id := RankID(i)
		ep := c.hub.Endpoint(id)
		opts := cfg.Options
		opts.Transport = ep

		var (
			n   *overlay.Node
			err error
		)
		if i == 0 {
			n, err = overlay.InitRoot(id, opts)
		} else {
			n, err = overlay.InitLeaf(id, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", i, err)
		}
		c.ids = append(c.ids, id)
		c.nodes[id] = n
		c.endpoints[id] = ep
		participants[i] = wire.Participant{ID: id}
	}
	c.root = c.nodes[c.ids[0]]

	coord, err := coordinator.New(c.root, participants[0], cfg.FanOut)
	if err != nil {
		return nil, err
	}
	c.coord = coord
	if err := coord.SetParticipants(ctx, participants); err != nil {
		return nil, err
	}

	log.Info("cluster created", "ranks", cfg.Ranks, "fan_out", cfg.FanOut,
		"depth", coord.Topology().Depth())
	return c, nil
}

// Run drives every node's scheduler until ctx is canceled.
func (c *Cluster) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range c.Nodes() {
		g.Go(func() error {
			if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", n.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Root returns the root node.
func (c *Cluster) Root() *overlay.Node { return c.root }

// Coordinator returns the root's coordinator.
func (c *Cluster) Coordinator() *coordinator.Coordinator { return c.coord }

// Hub returns the hub connecting the nodes.
func (c *Cluster) Hub() *transport.Hub { return c.hub }

// Node returns the node with id.
func (c *Cluster) Node(id string) (*overlay.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	return n, ok
}

// Nodes returns all nodes in rank order, including killed ones.
func (c *Cluster) Nodes() []*overlay.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*overlay.Node, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.nodes[id]
	}
	return out
}

// Alive returns the IDs of nodes that were not killed, in rank order.
func (c *Cluster) Alive() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, id := range c.ids {
		if !c.killed[id] {
			out = append(out, id)
		}
	}
	return out
}

// Kill stops a node and removes it from the hub, as if the process died.
// The root cannot be killed.
func (c *Cluster) Kill(ctx context.Context, id string) error {
	c.mu.Lock()
	n, ok := c.nodes[id]
	ep := c.endpoints[id]
	if !ok || c.killed[id] {
		c.mu.Unlock()
		return fmt.Errorf("kill %q: %w", id, errors.ErrUnknownPeer)
	}
	if n == c.root {
		c.mu.Unlock()
		return fmt.Errorf("kill root %q: %w", id, errors.ErrInvalidState)
	}
	c.killed[id] = true
	c.mu.Unlock()

	log.Info("killing rank", "node", id)
	err := n.Close(ctx)
	ep.Close()
	return err
}

// Partition cuts a node off the hub without stopping it.
func (c *Cluster) Partition(id string) { c.hub.Isolate(id) }

// Heal reverses Partition.
func (c *Cluster) Heal(id string) { c.hub.Heal(id) }

// Close stops every node and endpoint.
func (c *Cluster) Close(ctx context.Context) error {
	var first error
	for _, n := range c.Nodes() {
		if err := n.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ep := range c.endpoints {
		ep.Close()
	}
	return first
}
