package validation

import (
	"strings"
	"testing"

	"github.com/xtxerr/treemon/internal/errors"
)

func TestCounterNamesAreOpaque(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "iters", false},
		{"grouped", "mpi.sends", false},
		{"unit", "latency:us", false},
		{"unicode letters", "zähler", false},
		{"space", "queue depth", false},
		{"slash", "rng/samples", false},
		{"leading dot", ".hidden", false},
		{"brackets", "iters[0]", false},
		{"equals", "a=b", false},
		{"empty", "", true},
		{"invalid utf-8", "a\xffb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CounterName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("CounterName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidName) {
				t.Errorf("CounterName(%q) error = %v, want ErrInvalidName", tt.input, err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	rules := ParticipantIDRules()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "rank7", false},
		{"with hyphen", "node-7", false},
		{"with underscore", "node_7", false},
		{"numbers", "123", false},
		{"dotted", "node7.cluster", false},
		{"unicode letters", "knoten", false},
		{"empty", "", true},
		{"hidden", ".hidden", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"control char", "a\x00b", true},
		{"equals", "a=b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNameLength(t *testing.T) {
	rules := CounterNameRules()

	if err := ValidateName(strings.Repeat("a", rules.MaxLength), rules); err != nil {
		t.Errorf("name at max length should be valid: %v", err)
	}
	if err := ValidateName(strings.Repeat("a", rules.MaxLength+1), rules); err == nil {
		t.Error("name over max length should be invalid")
	}
}

func TestCounterNameWrapsSentinel(t *testing.T) {
	if err := CounterName("iters"); err != nil {
		t.Fatalf("CounterName(iters): %v", err)
	}
	err := CounterName(strings.Repeat("n", 256))
	if !errors.Is(err, errors.ErrInvalidName) {
		t.Errorf("CounterName error = %v, want ErrInvalidName", err)
	}
}

func TestParticipantID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"rank-0001", false},
		{"node7.cluster", false},
		{"R", false},
		{"", true},
		{"a=b", true},
		{"a,b", true},
		{"a:b", true},
		{strings.Repeat("x", 129), true},
	}

	for _, tt := range tests {
		err := ParticipantID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParticipantID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, errors.ErrInvalidConfig) {
			t.Errorf("ParticipantID(%q) error = %v, want ErrInvalidConfig", tt.input, err)
		}
	}
}
