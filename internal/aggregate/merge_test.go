package aggregate

import (
	"math"
	"reflect"
	"testing"

	"github.com/xtxerr/treemon/internal/counter"
	"github.com/xtxerr/treemon/internal/errors"
)

func snap(origin string, counters ...counter.Counter) counter.Snapshot {
	m := make(map[string]counter.Counter, len(counters))
	for _, c := range counters {
		c.Origin = origin
		m[c.Name] = c
	}
	return counter.Snapshot{Origin: origin, Counters: m}
}

// part builds a child entry whose origin set is seen, or just origin.
func part(name string, value uint64, p Policy, lastUpdate uint64, origin string, seen ...string) Entry {
	if len(seen) == 0 {
		seen = []string{origin}
	}
	return Entry{
		Name: name, Value: value, Policy: p, LastUpdate: lastUpdate, Origin: origin,
		Seen: seen, Contributors: uint32(len(seen)),
		Values: map[string]uint64{origin: value},
	}
}

func TestMergeSumAcrossChildren(t *testing.T) {
	reg := NewRegistry(nil, PolicySum)
	l1 := FromSnapshot("L1", snap("L1", counter.Counter{Name: "iters", Value: 5, Version: 1}), reg, Options{})
	l2 := FromSnapshot("L2", snap("L2", counter.Counter{Name: "iters", Value: 3, Version: 1}), reg, Options{})

	got := Merge(Input{
		Self:     "I",
		Children: map[string]Table{"L1": l1, "L2": l2},
		Registry: reg,
	})

	e := got["iters"]
	if e.Value != 8 || e.Contributors != 2 || e.Policy != PolicySum {
		t.Errorf("iters = %+v, want value 8 contributors 2 policy sum", e)
	}
	if e.Origin != "L1" {
		t.Errorf("origin = %q, want lowest contributing origin L1", e.Origin)
	}
}

func TestMergePolicies(t *testing.T) {
	children := func(p Policy) map[string]Table {
		return map[string]Table{
			"b": {"x": part("x", 7, p, 20, "b")},
			"c": {"x": part("x", 2, p, 10, "c", "c", "c1", "c2")},
		}
	}

	tests := []struct {
		policy      Policy
		wantValue   uint64
		wantOrigin  string
		wantContrib uint32
	}{
		{PolicySum, 7 + 2 + 4, "a", 5},
		{PolicyMin, 2, "c", 5},
		{PolicyMax, 7, "b", 5},
		{PolicyLast, 4, "a", 5},
		{PolicyCount, 1 + 7 + 2, "a", 5},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			reg := NewRegistry(map[string]Policy{"x": tt.policy}, PolicySum)
			got := Merge(Input{
				Self:     "a",
				Own:      snap("a", counter.Counter{Name: "x", Value: 4, Version: 30}),
				Children: children(tt.policy),
				Registry: reg,
			})["x"]

			if got.Value != tt.wantValue {
				t.Errorf("value = %d, want %d", got.Value, tt.wantValue)
			}
			if got.Origin != tt.wantOrigin {
				t.Errorf("origin = %q, want %q", got.Origin, tt.wantOrigin)
			}
			if got.Contributors != tt.wantContrib {
				t.Errorf("contributors = %d, want %d", got.Contributors, tt.wantContrib)
			}
			if got.LastUpdate != 30 {
				t.Errorf("last update = %d, want 30", got.LastUpdate)
			}
		})
	}
}

func TestMergeLastTieBreaksOnLowestOrigin(t *testing.T) {
	reg := NewRegistry(map[string]Policy{"x": PolicyLast}, PolicySum)
	children := map[string]Table{
		"n2": {"x": part("x", 200, PolicyLast, 5, "n2")},
		"n1": {"x": part("x", 100, PolicyLast, 5, "n1")},
	}
	got := Merge(Input{Self: "root", Children: children, Registry: reg})["x"]
	if got.Value != 100 || got.Origin != "n1" {
		t.Errorf("x = %+v, want value 100 from n1", got)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	entries := []Entry{
		part("m", 9, PolicyMax, 3, "q"),
		part("m", 9, PolicyMax, 4, "p", "p", "p2"),
		part("m", 1, PolicyMax, 8, "r"),
	}
	forward := entries[0]
	for _, e := range entries[1:] {
		forward = combine(PolicyMax, forward, e)
	}
	backward := entries[2]
	for i := 1; i >= 0; i-- {
		backward = combine(PolicyMax, backward, entries[i])
	}
	if !reflect.DeepEqual(forward, backward) {
		t.Errorf("combine depends on order: %+v vs %+v", forward, backward)
	}
	if forward.Origin != "p" || forward.Contributors != 4 || forward.LastUpdate != 8 {
		t.Errorf("combined = %+v", forward)
	}
}

func TestMergeSaturates(t *testing.T) {
	reg := NewRegistry(nil, PolicySum)
	children := map[string]Table{
		"a": {"big": part("big", math.MaxUint64-1, PolicySum, 0, "a")},
		"b": {"big": part("big", 10, PolicySum, 0, "b")},
	}
	got := Merge(Input{Self: "r", Children: children, Registry: reg})["big"]
	if got.Value != math.MaxUint64 {
		t.Errorf("value = %d, want saturation at MaxUint64", got.Value)
	}
}

func TestRegistryResolutionOrder(t *testing.T) {
	reg := NewRegistry(map[string]Policy{"cfg": PolicyMax}, PolicySum)

	if p := reg.Resolve("cfg", PolicyMin); p != PolicyMax {
		t.Errorf("configured policy lost to observation: %s", p)
	}
	if p := reg.Resolve("seen", PolicyLast); p != PolicyLast {
		t.Errorf("first observation not bound: %s", p)
	}
	if p := reg.Resolve("seen", PolicyMin); p != PolicyLast {
		t.Errorf("binding changed to %s", p)
	}
	if p := reg.Resolve("plain", PolicyUnset); p != PolicySum {
		t.Errorf("default policy = %s, want sum", p)
	}

	if err := reg.Bind("seen", PolicyLast); err != nil {
		t.Errorf("Bind with the same policy: %v", err)
	}
	if err := reg.Bind("seen", PolicyMax); !errors.Is(err, errors.ErrPolicyConflict) {
		t.Errorf("Bind conflicting policy error = %v, want ErrPolicyConflict", err)
	}
	if err := reg.Bind("cfg", PolicyMin); !errors.Is(err, errors.ErrPolicyConflict) {
		t.Errorf("Bind over configured policy error = %v, want ErrPolicyConflict", err)
	}
}

func TestMergeUsesCarriedPolicy(t *testing.T) {
	reg := NewRegistry(nil, PolicySum)
	children := map[string]Table{
		"a": {"hi": part("hi", 3, PolicyMax, 0, "a")},
		"b": {"hi": part("hi", 8, PolicyMax, 0, "b")},
	}
	got := Merge(Input{Self: "r", Children: children, Registry: reg})["hi"]
	if got.Policy != PolicyMax || got.Value != 8 {
		t.Errorf("hi = %+v, want max policy with value 8", got)
	}
}

func TestMergeCountsSharedOriginOnce(t *testing.T) {
	// After a rebuild E reports through a new parent while the old parent
	// still remembers it.
	reg := NewRegistry(nil, PolicySum)
	children := map[string]Table{
		"A": {"x": part("x", 4, PolicySum, 2, "E")},
		"B": {"x": part("x", 6, PolicySum, 2, "E", "E", "F")},
	}
	got := Merge(Input{Self: "R", Children: children, Registry: reg})["x"]
	if got.Contributors != 2 {
		t.Errorf("contributors = %d, want 2", got.Contributors)
	}
	if !reflect.DeepEqual(got.Seen, []string{"E", "F"}) {
		t.Errorf("seen = %v, want [E F]", got.Seen)
	}
}

func TestMergeKeepsPerOriginValues(t *testing.T) {
	reg := NewRegistry(map[string]Policy{"depth": PolicyMax}, PolicySum)
	children := map[string]Table{
		"b": {"depth": part("depth", 7, PolicyMax, 1, "b")},
		"c": {"depth": part("depth", 2, PolicyMax, 1, "c")},
	}
	got := Merge(Input{
		Self:     "a",
		Own:      snap("a", counter.Counter{Name: "depth", Value: 4, Version: 1}),
		Children: children,
		Registry: reg,
	})["depth"]

	want := map[string]uint64{"a": 4, "b": 7, "c": 2}
	if !reflect.DeepEqual(got.Values, want) {
		t.Errorf("values = %v, want %v", got.Values, want)
	}
	if len(children["b"]["depth"].Values) != 1 {
		t.Errorf("merge modified a child entry: %v", children["b"]["depth"].Values)
	}
}

func TestHistoryClamp(t *testing.T) {
	h := NewHistory()

	first := Table{"iters": {Name: "iters", Value: 8, Seen: []string{"A", "B"}}}
	h.Clamp(first)
	if first["iters"].Contributors != 2 {
		t.Fatalf("contributors = %d, want 2", first["iters"].Contributors)
	}

	// One contributor died; the count must not drop.
	second := Table{"iters": {Name: "iters", Value: 5, Seen: []string{"B"}}}
	h.Clamp(second)
	if second["iters"].Contributors != 2 {
		t.Errorf("contributors after child loss = %d, want 2", second["iters"].Contributors)
	}
	if second["iters"].Value != 5 {
		t.Errorf("value = %d, want 5", second["iters"].Value)
	}

	// Same size, different origins: both sets count.
	third := Table{"iters": {Name: "iters", Seen: []string{"C", "D"}}}
	h.Clamp(third)
	if h.Count("iters") != 4 {
		t.Errorf("history = %d, want 4", h.Count("iters"))
	}
	if !reflect.DeepEqual(third["iters"].Seen, []string{"A", "B", "C", "D"}) {
		t.Errorf("seen = %v", third["iters"].Seen)
	}
}

func TestUnionSorted(t *testing.T) {
	tests := []struct {
		a, b, want []string
	}{
		{nil, []string{"a"}, []string{"a"}},
		{[]string{"a", "c"}, []string{"b"}, []string{"a", "b", "c"}},
		{[]string{"a", "b"}, []string{"b"}, []string{"a", "b"}},
		{[]string{"b"}, []string{"a", "b", "c"}, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := unionSorted(tt.a, tt.b); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("unionSorted(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if got := NormalizeSeen([]string{"c", "a", "c", "b"}); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("NormalizeSeen = %v", got)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{PolicySum, PolicyMin, PolicyMax, PolicyLast, PolicyCount} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolicy("median"); !errors.Is(err, errors.ErrInvalidPolicy) {
		t.Errorf("ParsePolicy(median) error = %v", err)
	}
}
