// treemond is the per-rank overlay daemon.
//
// Modes, in order of precedence:
//
//	etcd:    --etcd endpoints, ranks register and rank 0 is the root
//	static:  --participants id=addr,... every rank builds the same tree
//	join:    ranks started with TREEMON_ROOT join the root; the root may
//	         spawn them itself: treemond -n 4 -- mpirun -np 4 treemond
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/coordinator"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/loader"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/observer"
	"github.com/xtxerr/treemon/internal/overlay"
	"github.com/xtxerr/treemon/internal/telemetry"
	"github.com/xtxerr/treemon/internal/transport"
	"github.com/xtxerr/treemon/internal/wire"
)

// Version and GitSHA are set at build time via ldflags
var (
	Version = "dev"
	GitSHA  = "unknown"
)

var log = logging.Component("treemond")

func main() {
	fs := pflag.NewFlagSet("treemond", pflag.ExitOnError)
	fs.SetInterspersed(false)
	flags := loader.RegisterFlags(fs)
	demo := fs.Bool("demo", false, "publish demo counters every tick")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("treemond %s (%s)\n", Version, GitSHA)
		return
	}

	cfg, err := loader.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "treemond: %v\n", err)
		os.Exit(1)
	}
	flags.Apply(cfg)
	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "treemond: %v\n", err)
		os.Exit(2)
	}

	initLogging(cfg.Log)
	telemetry.SetBuildInfo(Version, GitSHA)

	if cfg.Node.ID == "" {
		cfg.Node.ID = defaultID()
	}
	log.Info("treemond starting", "version", Version, "id", cfg.Node.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fs.Args(), *demo); err != nil {
		log.Error("treemond failed", "error", err)
		os.Exit(exitCode(err))
	}
	log.Info("treemond stopped")
}

// exitCode is 2 for errors no restart can fix, such as an inconsistent
// participant list, and 1 otherwise.
func exitCode(err error) int {
	if errors.IsFatalAtStartup(err) {
		return 2
	}
	return 1
}

// initLogging picks JSON when stderr is not a terminal and the format is
// auto.
func initLogging(cfg loader.LogConfig) {
	jsonFormat := false
	switch cfg.Format {
	case "json":
		jsonFormat = true
	case "text":
	default:
		jsonFormat = !term.IsTerminal(int(os.Stderr.Fd()))
	}
	logging.Init(logging.ParseLevel(cfg.Level), jsonFormat)
}

func defaultID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "rank"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// =============================================================================
// Run
// =============================================================================

// daemon holds the pieces of one rank.
type daemon struct {
	cfg   *loader.Config
	tcp   *transport.TCP
	node  *overlay.Node
	coord *coordinator.Coordinator
	self  wire.Participant
}

func run(ctx context.Context, cfg *loader.Config, command []string, demo bool) error {
	tcp, err := transport.ListenTCP(loader.TCPConfig(cfg, cfg.Node.ID))
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Node.Listen, err)
	}
	defer tcp.Close()

	d := &daemon{
		cfg:  cfg,
		tcp:  tcp,
		self: wire.Participant{ID: cfg.Node.ID, Addr: tcp.AdvertiseAddr()},
	}

	g, ctx := errgroup.WithContext(ctx)

	switch {
	case cfg.Discovery.Enabled():
		err = d.startEtcd(ctx, g)
	case len(cfg.Topology.Participants) > 0:
		err = d.startStatic(ctx)
	case os.Getenv(config.RootEnvVar) != "":
		err = d.startJoin(ctx, g, os.Getenv(config.RootEnvVar))
	default:
		err = d.startJoinRoot(ctx, g, command)
	}
	if err != nil {
		return err
	}

	g.Go(func() error {
		if err := d.node.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if demo {
		g.Go(func() error { return d.demo(ctx) })
	}

	if d.coord != nil && cfg.Observer.Enabled {
		d.serveObserver(ctx, g)
	}

	<-ctx.Done()
	log.Info("shutting down", "node", cfg.Node.ID)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Node.DrainTimeout.Duration())
	defer cancel()
	if err := d.node.Close(drainCtx); err != nil {
		log.Warn("node close", "error", err)
	}
	return g.Wait()
}

// serveObserver runs the observer API once the expected ranks have joined.
func (d *daemon) serveObserver(ctx context.Context, g *errgroup.Group) {
	srv := observer.New(d.node)

	g.Go(func() error {
		if expect := d.cfg.Topology.Expect; expect > 0 {
			log.Info("waiting for ranks", "expect", expect)
			if err := d.coord.WaitForMembers(ctx, expect+1); err != nil {
				return nil
			}
			log.Info("all ranks joined", "members", d.coord.Len(),
				"depth", d.coord.Topology().Depth())
		}
		return srv.ListenAndServe(d.cfg.Observer.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// demo publishes a running iteration count and a heartbeat, like a rank
// of an instrumented application would.
func (d *daemon) demo(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Node.TickInterval.Duration())
	defer ticker.Stop()

	var iters uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			iters++
			if err := d.node.SetCounter("iters", iters); err != nil {
				log.Debug("demo counter", "error", err)
			}
			if err := d.node.SetCounter("heartbeat", uint64(now.Unix())); err != nil {
				log.Debug("demo counter", "error", err)
			}
		}
	}
}
