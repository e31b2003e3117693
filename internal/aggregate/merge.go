package aggregate

import (
	"math"
	"sort"

	"github.com/xtxerr/treemon/internal/counter"
)

// Options control optional parts of a merge.
type Options struct {
	// Distributions enables a quantile sketch per name.
	Distributions bool

	// Accuracy is the relative accuracy of new sketches.
	Accuracy float64
}

// Input is everything a node merges on one tick.
type Input struct {
	// Self is the merging node's ID, used as the origin of its own counters.
	Self string

	// Own is the node's counter snapshot.
	Own counter.Snapshot

	// Children holds the latest accepted table per child ID.
	Children map[string]Table

	Registry *Registry
	Options  Options
}

// Merge folds the node's own counters and every child table into one table.
//
// The result does not depend on map iteration order or on the order
// children reported: every policy combine is commutative and associative,
// and ties are broken by the lowest origin. Contributors counts the union of
// the inputs' origin sets, so an origin reached over two paths counts once;
// callers that need it monotonic apply a History afterwards.
func Merge(in Input) Table {
	reg := in.Registry
	if reg == nil {
		reg = NewRegistry(nil, PolicySum)
	}

	childIDs := make([]string, 0, len(in.Children))
	for id := range in.Children {
		childIDs = append(childIDs, id)
	}
	sort.Strings(childIDs)

	names := make(map[string]struct{}, len(in.Own.Counters))
	for name := range in.Own.Counters {
		names[name] = struct{}{}
	}
	for _, id := range childIDs {
		for name := range in.Children[id] {
			names[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	out := make(Table, len(sorted))
	for _, name := range sorted {
		var parts []Entry

		own, hasOwn := in.Own.Counters[name]
		for _, id := range childIDs {
			if e, ok := in.Children[id][name]; ok {
				parts = append(parts, e)
			}
		}

		var carried Policy
		if !hasOwn && len(parts) > 0 {
			carried = parts[0].Policy
		}
		policy := reg.Resolve(name, carried)

		if hasOwn {
			parts = append([]Entry{ownEntry(in.Self, own, policy, in.Options)}, parts...)
		}

		acc := parts[0]
		acc.Policy = policy
		for _, next := range parts[1:] {
			acc = combine(policy, acc, next)
		}
		out[name] = acc
	}
	return out
}

// FromSnapshot converts a counter snapshot into a table without children.
func FromSnapshot(self string, own counter.Snapshot, reg *Registry, opts Options) Table {
	return Merge(Input{Self: self, Own: own, Registry: reg, Options: opts})
}

func ownEntry(self string, c counter.Counter, policy Policy, opts Options) Entry {
	origin := c.Origin
	if origin == "" {
		origin = self
	}
	e := Entry{
		Name:         c.Name,
		Value:        c.Value,
		Policy:       policy,
		Contributors: 1,
		LastUpdate:   c.Version,
		Origin:       origin,
		Seen:         []string{origin},
		Values:       map[string]uint64{origin: c.Value},
	}
	if policy == PolicyCount {
		e.Value = 1
	}
	if opts.Distributions {
		if d, err := NewDistribution(opts.Accuracy, c.Value); err == nil {
			e.Distribution = d
		} else {
			log.Debug("distribution disabled for entry", "name", c.Name, "error", err)
		}
	}
	return e
}

// combine merges b into a under policy. Both inputs are left untouched.
func combine(policy Policy, a, b Entry) Entry {
	out := a
	out.Seen = unionSorted(a.Seen, b.Seen)
	out.Contributors = contributors(out.Seen)
	out.Values = unionValues(a.Values, b.Values)
	out.LastUpdate = max(a.LastUpdate, b.LastUpdate)
	out.Distribution = a.Distribution.Merge(b.Distribution)

	switch policy {
	case PolicyMin:
		if b.Value < a.Value || (b.Value == a.Value && b.Origin < a.Origin) {
			out.Value, out.Origin = b.Value, b.Origin
		}
	case PolicyMax:
		if b.Value > a.Value || (b.Value == a.Value && b.Origin < a.Origin) {
			out.Value, out.Origin = b.Value, b.Origin
		}
	case PolicyLast:
		if b.LastUpdate > a.LastUpdate || (b.LastUpdate == a.LastUpdate && b.Origin < a.Origin) {
			out.Value, out.Origin = b.Value, b.Origin
		}
	default: // sum, count
		out.Value = addSaturating(a.Value, b.Value)
		out.Origin = min(a.Origin, b.Origin)
	}
	return out
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func contributors(seen []string) uint32 {
	if len(seen) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(len(seen))
}

// unionValues merges two per-origin maps into a new one. An origin present
// in both keeps the larger value.
func unionValues(a, b map[string]uint64) map[string]uint64 {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make(map[string]uint64, len(a)+len(b))
	for o, v := range a {
		out[o] = v
	}
	for o, v := range b {
		if prev, ok := out[o]; !ok || v > prev {
			out[o] = v
		}
	}
	return out
}
