// treemon-sim runs a whole overlay in one process on the in-memory hub,
// drives a synthetic workload and serves the root's observer API.
//
//	treemon-sim --ranks 1000 --fan-out 16 --kill 3 --kill-after 10s
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/aggregate"
	"github.com/xtxerr/treemon/internal/cluster"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/observer"
	"github.com/xtxerr/treemon/internal/overlay"
)

var log = logging.Component("sim")

type options struct {
	ranks     int
	fanOut    int
	tick      time.Duration
	duration  time.Duration
	kill      int
	killAfter time.Duration
	observer  string
	logLevel  string
}

func main() {
	var o options
	fs := pflag.NewFlagSet("treemon-sim", pflag.ExitOnError)
	fs.IntVarP(&o.ranks, "ranks", "n", 64, "number of ranks including the root")
	fs.IntVarP(&o.fanOut, "fan-out", "f", config.DefaultFanOut, "maximum children per node")
	fs.DurationVar(&o.tick, "tick", 200*time.Millisecond, "propagation interval")
	fs.DurationVar(&o.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	fs.IntVar(&o.kill, "kill", 0, "number of random ranks to kill")
	fs.DurationVar(&o.killAfter, "kill-after", 5*time.Second, "delay before killing ranks")
	fs.StringVar(&o.observer, "observer", "127.0.0.1:1871", "observer listen address (empty disables)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")
	fs.Parse(os.Args[1:])

	logging.Init(logging.ParseLevel(o.logLevel), !term.IsTerminal(int(os.Stderr.Fd())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	if err := run(ctx, o); err != nil {
		fmt.Fprintf(os.Stderr, "treemon-sim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	c, err := cluster.New(ctx, cluster.Config{
		Ranks:  o.ranks,
		FanOut: o.fanOut,
		Options: overlay.Options{
			TickInterval: o.tick,
			Policies: map[string]aggregate.Policy{
				"iters":      aggregate.PolicySum,
				"ranks":      aggregate.PolicyCount,
				"latency_us": aggregate.PolicyMax,
				"min_free":   aggregate.PolicyMin,
				"heartbeat":  aggregate.PolicyLast,
			},
			Distributions: true,
		},
	})
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	topo := c.Coordinator().Topology()
	log.Info("simulation started", "ranks", topo.Len(), "fan_out", topo.FanOut(), "depth", topo.Depth())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })
	g.Go(func() error { return workload(ctx, c, o.tick) })
	g.Go(func() error { return report(ctx, c, 5*o.tick) })

	if o.kill > 0 {
		g.Go(func() error { return chaos(ctx, c, o.kill, o.killAfter) })
	}

	if o.observer != "" {
		srv := observer.New(c.Root())
		g.Go(func() error { return srv.ListenAndServe(o.observer) })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// workload makes every rank publish counters each tick.
func workload(ctx context.Context, c *cluster.Cluster, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	nodes := c.Nodes()
	iters := make([]uint64, len(nodes))
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for i, n := range nodes {
				if n.State() == overlay.StateClosed {
					continue
				}
				iters[i]++
				err := errors.Join(
					n.SetCounter("iters", iters[i]),
					n.SetCounter("ranks", 1),
					n.SetCounter("latency_us", 50+rand.Uint64N(950)),
					n.SetCounter("min_free", 1<<20+rand.Uint64N(1<<20)),
					n.SetCounter("heartbeat", uint64(now.UnixMilli())),
				)
				if err != nil {
					log.Debug("workload", "node", n.ID(), "error", err)
				}
			}
		}
	}
}

// report logs the root's view periodically.
func report(ctx context.Context, c *cluster.Cluster, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t := c.Root().CurrentAggregates()
			args := []any{"epoch", c.Coordinator().Topology().Epoch(), "members", c.Coordinator().Len()}
			for _, name := range t.Names() {
				e := t[name]
				args = append(args, name, fmt.Sprintf("%d/%d", e.Value, e.Contributors))
			}
			log.Info("root aggregates", args...)
		}
	}
}

// chaos kills n random non-root ranks after delay.
func chaos(ctx context.Context, c *cluster.Cluster, n int, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(delay):
	}

	alive := c.Alive()[1:]
	rand.Shuffle(len(alive), func(i, j int) { alive[i], alive[j] = alive[j], alive[i] })
	for _, id := range alive[:min(n, len(alive))] {
		if err := c.Kill(ctx, id); err != nil {
			log.Warn("kill", "node", id, "error", err)
		}
	}
	return nil
}
