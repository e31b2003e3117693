package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/coordinator"
	"github.com/xtxerr/treemon/internal/discovery"
	"github.com/xtxerr/treemon/internal/loader"
	"github.com/xtxerr/treemon/internal/liveness"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/topology"
	"github.com/xtxerr/treemon/internal/wire"
)

// =============================================================================
// Node construction
// =============================================================================

func (d *daemon) initRoot() error {
	opts, err := loader.NodeOptions(d.cfg, d.tcp)
	if err != nil {
		return err
	}
	d.node, err = overlay.InitRoot(d.self.ID, opts)
	if err != nil {
		return err
	}
	d.coord, err = coordinator.New(d.node, d.self, d.cfg.Topology.FanOut)
	return err
}

func (d *daemon) initLeaf() error {
	opts, err := loader.NodeOptions(d.cfg, d.tcp)
	if err != nil {
		return err
	}
	d.node, err = overlay.InitLeaf(d.self.ID, opts)
	return err
}

// =============================================================================
// Static mode
// =============================================================================

// startStatic builds the tree from the configured participant list. Every
// rank computes the same topology; the first participant is the root.
func (d *daemon) startStatic(ctx context.Context) error {
	ps, err := d.cfg.ParticipantList()
	if err != nil {
		return err
	}
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	topo, err := topology.Build(ids, d.cfg.Topology.FanOut)
	if err != nil {
		return err
	}
	if !topo.Contains(d.self.ID) {
		return fmt.Errorf("id %q is not in the participant list", d.self.ID)
	}
	log.Info("static topology", "members", topo.Len(), "depth", topo.Depth(),
		"role", topo.Role(d.self.ID).String())

	if topo.Root() == d.self.ID {
		if err := d.initRoot(); err != nil {
			return err
		}
		return d.coord.SetParticipants(ctx, ps)
	}

	if err := d.initLeaf(); err != nil {
		return err
	}
	d.tcp.SetPeers(ps)
	return d.node.Attach(topo)
}

// =============================================================================
// Join mode
// =============================================================================

// startJoinRoot starts the root and optionally spawns command with the
// root's address in the environment.
func (d *daemon) startJoinRoot(ctx context.Context, g *errgroup.Group, command []string) error {
	if err := d.initRoot(); err != nil {
		return err
	}
	env := config.RootEnvVar + "=" + discovery.EncodeParticipant(d.self)
	log.Info("root ready for joins", "id", d.self.ID, "addr", d.self.Addr, "env", env)

	if len(command) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = append(os.Environ(), env)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", command[0], err)
	}
	log.Info("spawned command", "command", command, "pid", cmd.Process.Pid)

	g.Go(func() error {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn("spawned command exited", "command", command[0], "error", err)
		} else {
			log.Info("spawned command exited", "command", command[0])
		}
		return nil
	})
	return nil
}

// startJoin starts a rank that joins the root named in TREEMON_ROOT. The
// JOIN is repeated with backoff until the root answers with a topology, and
// again whenever a rebuild leaves this rank out.
func (d *daemon) startJoin(ctx context.Context, g *errgroup.Group, rootEnv string) error {
	root, err := discovery.DecodeParticipant(rootEnv)
	if err != nil {
		return fmt.Errorf("%s: %w", config.RootEnvVar, err)
	}
	if err := d.initLeaf(); err != nil {
		return err
	}

	g.Go(func() error {
		backoff := liveness.DefaultBackoff()
		attempt := 0
		for {
			wait := d.cfg.Node.TickInterval.Duration()
			if d.node.State() == overlay.StateInitializing {
				if err := d.node.Join(root, d.self); err != nil {
					log.Debug("join failed", "root", root.ID, "attempt", attempt+1, "error", err)
				}
				wait = backoff.Delay(attempt)
				attempt++
			} else if attempt > 0 {
				log.Info("joined", "root", root.ID, "role", d.node.Role().String())
				attempt = 0
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	})
	return nil
}

// =============================================================================
// etcd mode
// =============================================================================

// startEtcd registers this rank and, on rank 0, feeds the registry into the
// coordinator.
func (d *daemon) startEtcd(ctx context.Context, g *errgroup.Group) error {
	dc := d.cfg.Discovery
	cli, err := discovery.NewClient(dc.Endpoints)
	if err != nil {
		return err
	}
	reg := discovery.NewRegistry(cli, dc.Prefix)

	if dc.Rank == 0 {
		err = d.initRoot()
	} else {
		err = d.initLeaf()
	}
	if err != nil {
		cli.Close()
		return err
	}

	revoke, err := reg.Register(ctx, dc.Rank, d.self, dc.LeaseTTL)
	if err != nil {
		cli.Close()
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		revoke()
		return cli.Close()
	})

	if d.coord == nil {
		return nil
	}
	g.Go(func() error {
		err := reg.Watch(ctx, func(ps []wire.Participant) {
			if err := d.coord.SetParticipants(ctx, ps); err != nil {
				log.Warn("apply registered ranks", "error", err)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	return nil
}
