package aggregate

import (
	"math"
	"testing"

	"github.com/xtxerr/treemon/internal/counter"
)

func TestDistributionMergeAndQuantiles(t *testing.T) {
	var d *Distribution
	for i := 1; i <= 100; i++ {
		one, err := NewDistribution(0.01, uint64(i))
		if err != nil {
			t.Fatalf("NewDistribution: %v", err)
		}
		d = d.Merge(one)
	}

	if d.Count() != 100 {
		t.Fatalf("count = %v, want 100", d.Count())
	}
	s := d.Summary()
	if math.Abs(s.P50-50) > 50*0.02 {
		t.Errorf("p50 = %v, want ~50", s.P50)
	}
	if math.Abs(s.P99-99) > 99*0.02 {
		t.Errorf("p99 = %v, want ~99", s.P99)
	}
	if math.Abs(s.Min-1) > 0.02 || math.Abs(s.Max-100) > 2 {
		t.Errorf("min/max = %v/%v, want ~1/~100", s.Min, s.Max)
	}
}

func TestDistributionMergeLeavesInputs(t *testing.T) {
	a, _ := NewDistribution(0.01, 10)
	b, _ := NewDistribution(0.01, 20)

	merged := a.Merge(b)
	if merged.Count() != 2 {
		t.Errorf("merged count = %v, want 2", merged.Count())
	}
	if a.Count() != 1 || b.Count() != 1 {
		t.Errorf("inputs modified: %v, %v", a.Count(), b.Count())
	}
}

func TestDistributionBinaryRoundTrip(t *testing.T) {
	a, _ := NewDistribution(0.01, 42)
	b, _ := NewDistribution(0.01, 4200)
	d := a.Merge(b)

	raw, err := d.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	back, err := UnmarshalDistribution(raw)
	if err != nil {
		t.Fatalf("UnmarshalDistribution: %v", err)
	}
	if back.Count() != 2 {
		t.Errorf("decoded count = %v, want 2", back.Count())
	}

	if _, err := UnmarshalDistribution([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("garbage decoded without error")
	}
	if nilDist, err := UnmarshalDistribution(nil); err != nil || nilDist != nil {
		t.Errorf("empty input = %v, %v; want nil, nil", nilDist, err)
	}
}

func TestMergeCarriesDistributions(t *testing.T) {
	reg := NewRegistry(nil, PolicySum)
	opts := Options{Distributions: true, Accuracy: 0.01}

	l1 := FromSnapshot("L1", snap("L1", counter.Counter{Name: "lat", Value: 10, Version: 1}), reg, opts)
	l2 := FromSnapshot("L2", snap("L2", counter.Counter{Name: "lat", Value: 30, Version: 1}), reg, opts)
	root := Merge(Input{
		Self:     "R",
		Own:      snap("R", counter.Counter{Name: "lat", Value: 20, Version: 1}),
		Children: map[string]Table{"L1": l1, "L2": l2},
		Registry: reg,
		Options:  opts,
	})

	d := root["lat"].Distribution
	if d.Count() != 3 {
		t.Fatalf("distribution count = %v, want 3", d.Count())
	}
	if p50, _ := d.Quantile(0.5); math.Abs(p50-20) > 0.5 {
		t.Errorf("p50 = %v, want ~20", p50)
	}
}
