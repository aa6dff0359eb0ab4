/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. Callers match with errors.Is/errors.As;
  the API layer maps these onto HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors  - rejected before any mutation
  2. Authorization      - wrong party on a role-gated transition
  3. State errors       - idempotency guards, illegal transitions
  4. Concurrency        - lock/check-after-write conflicts (retryable)

USAGE:
  if errors.Is(err, engine.ErrAlreadySettled) {
      // no-op: the work was already done
  }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all pre-mutation input rejections.
	ErrValidation = errors.New("validation failed")

	// ErrCurrencyMismatch is returned when the aggregator is handed
	// entries in more than one currency. Callers partition first.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrAlreadySettled is the idempotency guard: settling twice is
	// reported, not silently swallowed, so callers can distinguish
	// "no-op because already done" from genuine success.
	ErrAlreadySettled = errors.New("already settled")

	// ErrNotAuthorized is returned when the acting user holds the wrong
	// role for a transition (e.g. the payer confirming their own payment).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidTransition is returned for any transition not in the
	// lifecycle table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConcurrencyConflict is returned when the completion critical
	// section detects a race. Safe to retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNotFound is returned for missing entries or settlements.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected input. Fully local: nothing was
// mutated when one of these is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CurrencyMismatchError names the two currencies that collided.
type CurrencyMismatchError struct {
	Want string
	Got  string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("mixed currencies: %s and %s (partition by currency before aggregating)", e.Want, e.Got)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

// AlreadySettledError identifies which record the duplicate settle hit.
type AlreadySettledError struct {
	EntryID      string
	SettlementID string
}

func (e *AlreadySettledError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("ledger entry %s is already settled", e.EntryID)
	}
	return fmt.Sprintf("settlement %s is already completed", e.SettlementID)
}

func (e *AlreadySettledError) Unwrap() error { return ErrAlreadySettled }

// NotAuthorizedError names the actor and the action they may not take.
type NotAuthorizedError struct {
	ActorID string
	Action  string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("user %s may not %s", e.ActorID, e.Action)
}

func (e *NotAuthorizedError) Unwrap() error { return ErrNotAuthorized }

// InvalidStateTransitionError includes both states for debuggability.
type InvalidStateTransitionError struct {
	SettlementID string
	Current      Status
	Requested    Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("settlement %s: cannot go from %s to %s", e.SettlementID, e.Current, e.Requested)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidTransition }

// ConcurrencyConflictError wraps the storage-level detail of a detected race.
type ConcurrencyConflictError struct {
	Detail string
}

func (e *ConcurrencyConflictError) Error() string {
	return "concurrent settlement conflict: " + e.Detail
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "ledger entry" or "settlement"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if retrying the whole operation might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to the caller's input
// or timing rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrInvalidTransition)
}
