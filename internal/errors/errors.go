// Package errors provides the error taxonomy shared by every treemon package.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Validation error collection
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Local resource errors
	ErrResourceExhausted = errors.New("resource exhausted")

	// Protocol errors
	ErrUnknownChild      = errors.New("unknown child")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrMessageTooLarge   = errors.New("message too large")
	ErrStaleUpdate       = errors.New("stale update")
	ErrPolicyConflict    = errors.New("merge policy conflict")

	// Liveness errors
	ErrChildTimeout      = errors.New("child timeout")
	ErrParentUnreachable = errors.New("parent unreachable")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrUnknownPeer       = errors.New("unknown peer")

	// Topology errors
	ErrTopologyInconsistent = errors.New("topology inconsistent")
	ErrInvalidFanOut        = errors.New("invalid fan-out")
	ErrNotRoot              = errors.New("not the root")

	// Validation errors
	ErrInvalidName   = errors.New("invalid counter name")
	ErrInvalidPolicy = errors.New("invalid merge policy")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrDraining     = errors.New("node is draining")
	ErrClosed       = errors.New("closed")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsProtocolError returns true if err means the peer sent something the
// node cannot accept. The link to that peer should be dropped.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrUnknownChild) ||
		errors.Is(err, ErrProtocolViolation) ||
		errors.Is(err, ErrMessageTooLarge)
}

// IsLivenessError returns true if err reports a stalled or unreachable peer.
func IsLivenessError(err error) bool {
	return errors.Is(err, ErrChildTimeout) ||
		errors.Is(err, ErrParentUnreachable) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidFanOut) ||
		errors.Is(err, ErrMissingField)
}

// IsStateError returns true if err is a state-related error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrDraining) ||
		errors.Is(err, ErrClosed)
}

// IsRetriable returns true if the operation may succeed when repeated later.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrParentUnreachable) ||
		errors.Is(err, ErrDraining)
}

// IsFatalAtStartup returns true for errors that must stop a process while
// it is building its first topology. During reconfiguration the same errors
// are recoverable and only logged.
func IsFatalAtStartup(err error) bool {
	return errors.Is(err, ErrTopologyInconsistent) ||
		errors.Is(err, ErrInvalidFanOut) ||
		errors.Is(err, ErrInvalidConfig)
}

// ============================================================================
// Validation helpers
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
