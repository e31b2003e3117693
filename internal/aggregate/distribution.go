package aggregate

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/pb/sketchpb"
	"google.golang.org/protobuf/proto"

	"github.com/xtxerr/treemon/internal/errors"
)

// Distribution is a mergeable quantile sketch of the values reported for
// one name across the subtree.
//
// A Distribution is never mutated once it is part of a Table. Merge and Add
// return new values.
type Distribution struct {
	sketch *ddsketch.DDSketch
}

// Summary is the quantile view of a Distribution.
type Summary struct {
	Count float64 `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// NewDistribution creates a Distribution holding a single value.
func NewDistribution(accuracy float64, value uint64) (*Distribution, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, fmt.Errorf("sketch accuracy %v: %w", accuracy, errors.ErrInvalidConfig)
	}
	if err := sketch.Add(float64(value)); err != nil {
		return nil, fmt.Errorf("sketch add %d: %w", value, err)
	}
	return &Distribution{sketch: sketch}, nil
}

// Merge returns the union of d and other. Neither input is modified.
// A nil side yields the other side.
func (d *Distribution) Merge(other *Distribution) *Distribution {
	switch {
	case d == nil || d.sketch == nil:
		return other
	case other == nil || other.sketch == nil:
		return d
	}
	merged := d.sketch.Copy()
	if err := merged.MergeWith(other.sketch); err != nil {
		// Sketches with a different index mapping cannot be merged.
		log.Debug("distribution merge skipped", "error", err)
		return d
	}
	return &Distribution{sketch: merged}
}

// Count returns the number of values in the distribution.
func (d *Distribution) Count() float64 {
	if d == nil || d.sketch == nil {
		return 0
	}
	return d.sketch.GetCount()
}

// Quantile returns the value at quantile q in [0, 1].
func (d *Distribution) Quantile(q float64) (float64, error) {
	if d == nil || d.sketch == nil || d.sketch.IsEmpty() {
		return 0, fmt.Errorf("empty distribution: %w", errors.ErrInvalidState)
	}
	return d.sketch.GetValueAtQuantile(q)
}

// Summary returns count, extrema and the usual quantiles.
func (d *Distribution) Summary() Summary {
	if d == nil || d.sketch == nil || d.sketch.IsEmpty() {
		return Summary{}
	}
	s := Summary{Count: d.sketch.GetCount()}
	s.Min, _ = d.sketch.GetMinValue()
	s.Max, _ = d.sketch.GetMaxValue()
	s.P50, _ = d.sketch.GetValueAtQuantile(0.50)
	s.P90, _ = d.sketch.GetValueAtQuantile(0.90)
	s.P95, _ = d.sketch.GetValueAtQuantile(0.95)
	s.P99, _ = d.sketch.GetValueAtQuantile(0.99)
	return s
}

// MarshalBinary encodes the sketch in its protobuf form.
func (d *Distribution) MarshalBinary() ([]byte, error) {
	if d == nil || d.sketch == nil {
		return nil, nil
	}
	return proto.Marshal(d.sketch.ToProto())
}

// UnmarshalDistribution decodes a sketch produced by MarshalBinary.
// Empty input yields a nil Distribution.
func UnmarshalDistribution(b []byte) (*Distribution, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var pb sketchpb.DDSketch
	if err := proto.Unmarshal(b, &pb); err != nil {
		return nil, fmt.Errorf("decode sketch: %v: %w", err, errors.ErrProtocolViolation)
	}
	sketch, err := ddsketch.FromProto(&pb)
	if err != nil {
		return nil, fmt.Errorf("decode sketch: %v: %w", err, errors.ErrProtocolViolation)
	}
	return &Distribution{sketch: sketch}, nil
}
