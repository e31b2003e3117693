// Package validation checks counter names and participant IDs before they
// enter a table or a topology.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xtxerr/treemon/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for a kind of name.
type NameRules struct {
	MinLength int
	MaxLength int

	// Opaque accepts any valid UTF-8; only the length is checked.
	Opaque bool

	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowColons  bool
}

// CounterNameRules returns the rules for counter names. Names are opaque to
// the overlay, so any valid UTF-8 up to 255 bytes is accepted.
func CounterNameRules() NameRules {
	return NameRules{
		MinLength: 1,
		MaxLength: 255,
		Opaque:    true,
	}
}

// ParticipantIDRules returns the rules for participant IDs. IDs end up in
// etcd values and the TREEMON_ROOT variable, so '=' and ',' are excluded.
func ParticipantIDRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d bytes required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d bytes allowed", rules.MaxLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name is not valid UTF-8")
	}
	if rules.Opaque {
		return nil
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ':':
		return rules.AllowColons
	}
	return false
}

// CounterName validates a counter name. The error wraps ErrInvalidName.
func CounterName(name string) error {
	if err := ValidateName(name, CounterNameRules()); err != nil {
		return fmt.Errorf("counter %q: %w: %v", name, errors.ErrInvalidName, err)
	}
	return nil
}

// ParticipantID validates a participant ID. The error wraps ErrInvalidConfig.
func ParticipantID(id string) error {
	if err := ValidateName(id, ParticipantIDRules()); err != nil {
		return fmt.Errorf("participant %q: %w: %v", id, errors.ErrInvalidConfig, err)
	}
	return nil
}
