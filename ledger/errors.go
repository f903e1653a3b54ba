/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (registry, API) wrap these with additional context.

ERROR CATEGORIES:
  1. Reference errors - an event points at a product/family that is gone
  2. Conflict errors  - storage could not apply an adjustment atomically
  3. State errors     - prior state missing for an update/delete

USAGE:
  if errors.Is(err, ledger.ErrProductNotFound) { ... }

SEE ALSO:
  - engine.go: returns these from transition functions
  - store/sqlite: maps driver errors onto these sentinels
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrProductNotFound is returned when the product referenced by an event
	// (old or new) no longer exists at adjustment time. The enclosing write
	// transaction must abort.
	ErrProductNotFound = errors.New("product not found")

	// ErrEventNotFound is returned when a donation or delivery addressed by
	// identifier does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrFamilyNotFound is returned when a delivery's beneficiary family
	// does not exist.
	ErrFamilyNotFound = errors.New("family not found")

	// ErrMissingPriorState is returned when an update or delete transition is
	// attempted without a prior-state capture (the event vanished between
	// capture and adjust). Fatal for that operation; never treated as a create.
	ErrMissingPriorState = errors.New("missing prior state for update")

	// ErrConflict is returned when an atomic adjustment could not be applied
	// due to a concurrency conflict the storage layer could not resolve
	// transparently. The caller may retry the whole transition.
	ErrConflict = errors.New("reconciliation conflict")

	// ErrInvalidQuantity is returned when an event carries a negative
	// quantity. Quantity is a magnitude; the engine supplies the sign.
	ErrInvalidQuantity = errors.New("quantity must not be negative")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ReferenceMissingError reports which product was missing and for which delta.
type ReferenceMissingError struct {
	Product ProductID
	Delta   int64
}

func (e *ReferenceMissingError) Error() string {
	return fmt.Sprintf("product %d not found while applying delta %+d", e.Product, e.Delta)
}

func (e *ReferenceMissingError) Unwrap() error {
	return ErrProductNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if retrying the whole transition might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrFamilyNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) || IsNotFound(err)
}
