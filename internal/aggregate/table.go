package aggregate

import (
	"maps"
	"sort"
)

// Entry is the merged view of one counter name over a subtree.
type Entry struct {
	Name  string
	Value uint64

	Policy Policy

	// Contributors is len(Seen), kept for the wire and for display.
	Contributors uint32

	// Seen is the sorted set of origins that have contributed to the name
	// through this node. It only grows, even when a contributor dies or the
	// tree is rebuilt.
	Seen []string

	// Values holds the latest value per origin currently folded into Value.
	Values map[string]uint64

	// LastUpdate is the highest version among the contributions.
	LastUpdate uint64

	// Origin is the origin of the winning contribution for LAST, MIN and
	// MAX, and the lowest contributing origin otherwise.
	Origin string

	// Distribution is nil when distributions are disabled.
	Distribution *Distribution
}

// Table maps names to merged entries. Tables handed out by a node are never
// modified afterwards.
type Table map[string]Entry

// Names returns the table's names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy. Distributions, Seen and Values are shared
// since they are never modified once built.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, e := range t {
		out[name] = e
	}
	return out
}

// Equal reports whether two tables hold the same values, policies,
// contributor counts, origins and per-origin values. Distributions and
// LastUpdate are ignored.
func (t Table) Equal(other Table) bool {
	if len(t) != len(other) {
		return false
	}
	for name, a := range t {
		b, ok := other[name]
		if !ok {
			return false
		}
		if a.Value != b.Value || a.Policy != b.Policy ||
			a.Contributors != b.Contributors || a.Origin != b.Origin ||
			!maps.Equal(a.Values, b.Values) {
			return false
		}
	}
	return true
}

// unionSorted returns the sorted union of two sorted, duplicate-free
// slices. Neither input is modified; when one already contains the other it
// is returned as is.
func unionSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	switch len(out) {
	case len(a):
		return a
	case len(b):
		return b
	}
	return out
}

// NormalizeSeen sorts and deduplicates origins in place and returns the
// result. Used for sets received from peers.
func NormalizeSeen(origins []string) []string {
	if len(origins) < 2 {
		return origins
	}
	sort.Strings(origins)
	out := origins[:1]
	for _, o := range origins[1:] {
		if o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return out
}
