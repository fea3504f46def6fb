package engine

import (
	"fmt"
)

// DefaultMaxPasses bounds the merge/expand passes of a single resolve.
// An acyclic graph needs at most one pass per level of depth, so hitting
// this limit means the description is broken.
const DefaultMaxPasses = 10000

// QuotaEnforcer counts resolver passes and enforces a maximum.
//
// Together with the stall check in Resolve it guarantees termination even
// when the fan-in tables disagree with the wiring.
type QuotaEnforcer struct {
	maxPasses int
	current   int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxPasses int) *QuotaEnforcer {
	return &QuotaEnforcer{maxPasses: maxPasses}
}

// Check increments the pass counter and validates it against the limit.
func (q *QuotaEnforcer) Check(root string) error {
	q.current++
	if q.current > q.maxPasses {
		return &PassesExceededError{Root: root, Passes: q.current, Limit: q.maxPasses}
	}
	return nil
}

// Current returns the current pass count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// PassesExceededError is returned when a resolve exceeds its pass quota.
type PassesExceededError struct {
	Root   string // node the resolve started from
	Passes int
	Limit  int
}

// Error implements the error interface.
func (e *PassesExceededError) Error() string {
	return fmt.Sprintf("resolve from %s exceeded pass quota: %d passes > %d limit",
		e.Root, e.Passes, e.Limit)
}

// RuntimeError converts the quota error into the engine's error model.
func (e *PassesExceededError) RuntimeError() *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: e.Error(),
		Node:    e.Root,
		Details: map[string]string{
			"passes": fmt.Sprintf("%d", e.Passes),
			"limit":  fmt.Sprintf("%d", e.Limit),
		},
	}
}
