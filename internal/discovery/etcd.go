// Package discovery keeps the participant list in etcd.
//
// Every rank registers <prefix>/ranks/<rank> = <id>=<addr> under a lease that
// it keeps alive. The root lists the prefix, orders the entries by rank and
// watches for changes: an expired lease removes a rank, a new key adds one.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/xtxerr/treemon/config"
	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/logging"
	"github.com/xtxerr/treemon/internal/validation"
	"github.com/xtxerr/treemon/internal/wire"
)

var log = logging.Component("discovery")

// NewClient connects to etcd.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: config.DefaultEtcdDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd %v: %v: %w", endpoints, err, errors.ErrConnectionFailed)
	}
	return cli, nil
}

// Registry reads and writes rank registrations under one prefix.
type Registry struct {
	cli    *clientv3.Client
	prefix string
}

// NewRegistry returns a registry under prefix, e.g. "/treemon".
func NewRegistry(cli *clientv3.Client, prefix string) *Registry {
	if prefix == "" {
		prefix = config.DefaultEtcdPrefix
	}
	return &Registry{cli: cli, prefix: strings.TrimSuffix(prefix, "/")}
}

func (r *Registry) ranksPrefix() string {
	return r.prefix + "/ranks/"
}

// Key returns the registration key of rank. Ranks are zero-padded so that
// etcd's key order matches rank order.
func (r *Registry) Key(rank int) string {
	return fmt.Sprintf("%s%08d", r.ranksPrefix(), rank)
}

// Register publishes p at rank under a lease of ttl seconds and keeps the
// lease alive until ctx is canceled. The returned function revokes the
// lease.
func (r *Registry) Register(ctx context.Context, rank int, p wire.Participant, ttl int64) (func(), error) {
	if ttl <= 0 {
		ttl = config.DefaultEtcdLeaseTTL
	}
	lease, err := r.cli.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := r.cli.Put(ctx, r.Key(rank), EncodeParticipant(p), clientv3.WithLease(lease.ID)); err != nil {
		return nil, fmt.Errorf("register rank %d: %w", rank, err)
	}

	kaCtx, cancel := context.WithCancel(ctx)
	ch, err := r.cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("keep lease alive: %w", err)
	}
	go func() {
		for range ch {
		}
		log.Debug("lease keep-alive stopped", "rank", rank, "participant", p.ID)
	}()

	log.Info("registered", "rank", rank, "participant", p.ID, "addr", p.Addr, "ttl", ttl)
	return func() {
		cancel()
		revokeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if _, err := r.cli.Revoke(revokeCtx, lease.ID); err != nil {
			log.Warn("revoke lease", "rank", rank, "error", err)
		}
	}, nil
}

// List returns the registered participants ordered by rank.
func (r *Registry) List(ctx context.Context) ([]wire.Participant, error) {
	resp, err := r.cli.Get(ctx, r.ranksPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list ranks: %w", err)
	}
	entries := make(map[string][]byte, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		entries[string(kv.Key)] = kv.Value
	}
	return r.decode(entries), nil
}

// Watch calls fn with the full participant list, ordered by rank, after
// every change under the prefix. It blocks until ctx is canceled.
func (r *Registry) Watch(ctx context.Context, fn func([]wire.Participant)) error {
	resp, err := r.cli.Get(ctx, r.ranksPrefix(), clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("list ranks: %w", err)
	}
	entries := make(map[string][]byte, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		entries[string(kv.Key)] = kv.Value
	}
	fn(r.decode(entries))

	wch := r.cli.Watch(ctx, r.ranksPrefix(), clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	for wresp := range wch {
		if err := wresp.Err(); err != nil {
			return fmt.Errorf("watch ranks: %w", err)
		}
		for _, ev := range wresp.Events {
			key := string(ev.Kv.Key)
			switch ev.Type {
			case clientv3.EventTypePut:
				entries[key] = ev.Kv.Value
			case clientv3.EventTypeDelete:
				delete(entries, key)
			}
		}
		fn(r.decode(entries))
	}
	return ctx.Err()
}

func (r *Registry) decode(entries map[string][]byte) []wire.Participant {
	type ranked struct {
		rank int
		p    wire.Participant
	}
	var list []ranked
	for key, value := range entries {
		rank, err := strconv.Atoi(strings.TrimPrefix(key, r.ranksPrefix()))
		if err != nil {
			log.Warn("ignoring malformed rank key", "key", key)
			continue
		}
		p, err := DecodeParticipant(string(value))
		if err != nil {
			log.Warn("ignoring malformed registration", "key", key, "error", err)
			continue
		}
		list = append(list, ranked{rank, p})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].rank < list[j].rank })

	out := make([]wire.Participant, len(list))
	for i, e := range list {
		out[i] = e.p
	}
	return out
}

// EncodeParticipant renders p as id=addr.
func EncodeParticipant(p wire.Participant) string {
	return p.ID + "=" + p.Addr
}

// DecodeParticipant parses id=addr. The address may be empty.
func DecodeParticipant(s string) (wire.Participant, error) {
	id, addr, _ := strings.Cut(strings.TrimSpace(s), "=")
	if err := validation.ParticipantID(id); err != nil {
		return wire.Participant{}, err
	}
	return wire.Participant{ID: id, Addr: addr}, nil
}

// ParseParticipants parses a comma-separated id=addr list.
func ParseParticipants(s string) ([]wire.Participant, error) {
	var out []wire.Participant
	seen := make(map[string]bool)
	for _, field := range strings.Split(s, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		p, err := DecodeParticipant(field)
		if err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("participant %q listed twice: %w", p.ID, errors.ErrInvalidConfig)
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}
