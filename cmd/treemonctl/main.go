// treemonctl queries a root's observer API.
//
//	treemonctl [--addr host:port] [--json] <command> [name]
//
// Commands: aggregates, get NAME, keys, hist NAME, values NAME, topology,
// count, status, wait.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/xtxerr/treemon/internal/client"
	"github.com/xtxerr/treemon/internal/liveness"
)

func main() {
	cfg := client.DefaultConfig()
	fs := pflag.NewFlagSet("treemonctl", pflag.ExitOnError)
	fs.StringVarP(&cfg.Addr, "addr", "a", envOr("TREEMON_OBSERVER", cfg.Addr), "observer address")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	asJSON := fs.BoolP("json", "j", false, "print raw JSON")
	waitFor := fs.Duration("wait-timeout", time.Minute, "how long the wait command waits")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: treemonctl [flags] aggregates|get NAME|keys|hist NAME|values NAME|topology|count|status|wait\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cl := client.New(cfg)
	out := &printer{w: os.Stdout, json: *asJSON}
	if err := run(ctx, cl, out, args, *waitFor); err != nil {
		fmt.Fprintf(os.Stderr, "treemonctl: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, cl *client.Client, out *printer, args []string, waitFor time.Duration) error {
	name := ""
	if len(args) > 1 {
		name = args[1]
	}

	switch args[0] {
	case "aggregates", "ls":
		es, err := cl.Aggregates(ctx)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(es)
		}
		tw := out.table("NAME", "VALUE", "POLICY", "CONTRIBUTORS", "ORIGIN")
		for _, e := range es {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", e.Name, e.Value, e.Policy, e.Contributors, e.Origin)
		}
		return tw.Flush()

	case "get":
		e, err := cl.Aggregate(ctx, name)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(e)
		}
		fmt.Fprintf(out.w, "%s = %d (%s, %d contributors)\n", e.Name, e.Value, e.Policy, e.Contributors)
		return nil

	case "keys":
		keys, err := cl.Keys(ctx)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(keys)
		}
		fmt.Fprintln(out.w, strings.Join(keys, "\n"))
		return nil

	case "hist":
		h, err := cl.Hist(ctx, name)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(h)
		}
		fmt.Fprintf(out.w, "%s: n=%.0f min=%g p50=%g p90=%g p95=%g p99=%g max=%g\n",
			h.Name, h.Count, h.Min, h.P50, h.P90, h.P95, h.P99, h.Max)
		return nil

	case "values":
		v, err := cl.Values(ctx, name)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(v)
		}
		tw := out.table("ORIGIN", "VALUE")
		for _, ov := range v.Values {
			fmt.Fprintf(tw, "%s\t%d\n", ov.Origin, ov.Value)
		}
		return tw.Flush()

	case "topology", "topo":
		topo, err := cl.Topology(ctx)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(topo)
		}
		fmt.Fprintf(out.w, "epoch %d, %d members, fan-out %d, depth %d\n", topo.Epoch, topo.Count, topo.FanOut, topo.Depth)
		tw := out.table("ID", "PARENT", "LEVEL", "ROLE")
		for _, m := range topo.Members {
			fmt.Fprintf(tw, "%s%s\t%s\t%d\t%s\n", strings.Repeat("  ", m.Level), m.ID, m.Parent, m.Level, m.Role)
		}
		return tw.Flush()

	case "count":
		n, err := cl.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out.w, n)
		return nil

	case "status":
		st, err := cl.Status(ctx)
		if err != nil {
			return err
		}
		if out.json {
			return out.print(st)
		}
		fmt.Fprintf(out.w, "%s: %s %s, epoch %d, %d counters, %d aggregates\n",
			st.ID, st.Role, st.State, st.Epoch, st.Counters, st.Aggregates)
		tw := out.table("CHILD", "STATE", "UPDATES", "LAST SEEN")
		for _, ch := range st.Children {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", ch.ID, ch.State, ch.Updates, ch.LastSeen.Format(time.RFC3339))
		}
		return tw.Flush()

	case "wait":
		ctx, cancel := context.WithTimeout(ctx, waitFor)
		defer cancel()
		return cl.WaitReady(ctx, liveness.DefaultBackoff())

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) print(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}
