/**
 * @description
 * Typed errors surfaced by the financial core. Every failure a caller can act
 * on carries an ErrorKind, the entity it concerns, and a human-readable reason.
 * Boundary validation, state-machine conflicts, and uniqueness violations are
 * reported as structured failures; InternalInvariantViolated aborts the
 * operation and marks the entity for review.
 */

package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for programmatic callers and exit-code mapping.
type ErrorKind string

const (
	ErrValidation         ErrorKind = "ValidationError"
	ErrStateMachine       ErrorKind = "StateMachineConflict"
	ErrUniqueness         ErrorKind = "UniquenessViolation"
	ErrLinkIntegrity      ErrorKind = "LinkIntegrityError"
	ErrLimitExceeded      ErrorKind = "LimitExceeded"
	ErrApprovalRequired   ErrorKind = "ApprovalRequired"
	ErrInsufficientCredit ErrorKind = "InsufficientCredit"
	ErrReconciliation     ErrorKind = "ReconciliationVariance"
	ErrCycleImmutable     ErrorKind = "CycleImmutable"
	ErrDependency         ErrorKind = "DependencyUnavailable"
	ErrInternalInvariant  ErrorKind = "InternalInvariantViolated"
)

// Error is the structured failure type returned by every core operation.
type Error struct {
	Kind   ErrorKind
	Entity string // entity reference, e.g. "billing_cycle/COND-A-2025-01"
	Reason string
}

func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Reason)
}

// NewError builds a structured core error.
func NewError(kind ErrorKind, entity, format string, args ...any) *Error {
	return &Error{Kind: kind, Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from an error chain, or "" when the error is
// not a core error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
