package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cortex/internal/vector"
)

// ErrDestroyed is returned by operations on a destroyed Cortex.
var ErrDestroyed = errors.New("cortex destroyed")

// ErrStopped is returned for requests submitted to a stopped Runner.
var ErrStopped = errors.New("runner stopped")

// RuntimeError represents a fault detected by the engine.
//
// Configuration faults (unknown ids, dimension mismatches, missing fan-in
// entries) indicate a broken static contract. Invariant violations signal
// a construction or algorithm bug. Neither is transient and neither is
// retried.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node names the node involved ("S1#2"), if any.
	Node string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeConfigInvalid indicates a malformed graph description.
	ErrCodeConfigInvalid RuntimeErrorCode = "CONFIG_INVALID"

	// ErrCodeUnknownNode indicates a reference to an undeclared node id.
	ErrCodeUnknownNode RuntimeErrorCode = "UNKNOWN_NODE"

	// ErrCodeDimensionMismatch indicates supplied and declared dimensions differ.
	ErrCodeDimensionMismatch RuntimeErrorCode = "DIMENSION_MISMATCH"

	// ErrCodeMissingFanIn indicates a node reachable from the resolve root
	// has no fan-in entry.
	ErrCodeMissingFanIn RuntimeErrorCode = "MISSING_FAN_IN"

	// ErrCodeInvariantViolated indicates the resolver reached an impossible state.
	ErrCodeInvariantViolated RuntimeErrorCode = "INVARIANT_VIOLATED"

	// ErrCodeResolveStalled indicates a resolver pass made no progress.
	ErrCodeResolveStalled RuntimeErrorCode = "RESOLVE_STALLED"

	// ErrCodeQuotaExceeded indicates a resolve exceeded its pass limit.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code RuntimeErrorCode, node string, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Node: node}
}

func hasCode(err error, codes ...RuntimeErrorCode) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsConfigError returns true for configuration faults: invalid
// descriptions, unknown ids, dimension mismatches and missing fan-in
// entries. Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfigInvalid, ErrCodeUnknownNode, ErrCodeDimensionMismatch, ErrCodeMissingFanIn) ||
		vector.IsDimensionError(err)
}

// IsDimensionError returns true if the error is a dimension mismatch,
// whether reported by the engine or by a vector operation.
func IsDimensionError(err error) bool {
	return hasCode(err, ErrCodeDimensionMismatch) || vector.IsDimensionError(err)
}

// IsInvariantError returns true if the resolver detected an invariant
// violation or stalled.
func IsInvariantError(err error) bool {
	return hasCode(err, ErrCodeInvariantViolated, ErrCodeResolveStalled)
}

// IsQuotaError returns true if the error is a pass quota error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and PassesExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var pe *PassesExceededError
	return errors.As(err, &pe)
}
