// Package aggregate merges counters into per-name aggregate entries.
//
// A node's aggregate table is the merge of its own counter snapshot with the
// latest table reported by each child. Each name is merged under one
// MergePolicy, bound once for the life of the tree.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/xtxerr/treemon/internal/errors"
)

// Policy is the merge policy of a counter name.
type Policy uint8

const (
	// PolicyUnset means no policy is carried or bound.
	PolicyUnset Policy = iota
	PolicySum
	PolicyMin
	PolicyMax
	PolicyLast
	PolicyCount
)

// String returns the lower-case policy name.
func (p Policy) String() string {
	switch p {
	case PolicySum:
		return "sum"
	case PolicyMin:
		return "min"
	case PolicyMax:
		return "max"
	case PolicyLast:
		return "last"
	case PolicyCount:
		return "count"
	case PolicyUnset:
		return "unset"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the five merge policies.
func (p Policy) Valid() bool {
	return p >= PolicySum && p <= PolicyCount
}

// ParsePolicy parses "sum", "min", "max", "last" or "count".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return PolicySum, nil
	case "min":
		return PolicyMin, nil
	case "max":
		return PolicyMax, nil
	case "last":
		return PolicyLast, nil
	case "count":
		return PolicyCount, nil
	default:
		return PolicyUnset, fmt.Errorf("%q: %w", s, errors.ErrInvalidPolicy)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	parsed, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
