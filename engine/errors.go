/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  The API layer classifies these into HTTP statuses without inspecting
  messages.

ERROR CATEGORIES:
  1. Not-found errors  - missing agents/sales
  2. Validation errors - bad input shape or range, bad period keys
  3. Conflict errors   - duplicate policy numbers, double cancellation,
                         hierarchy invariant violations
  4. Store errors      - persistence failures (full rollback, 5xx)

USAGE:
  if engine.IsConflict(err) {
      // 409
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
	// ErrAgentNotFound is returned when a referenced agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrSaleNotFound is returned when a referenced sale doesn't exist.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrAlreadyCancelled is returned when cancelling a sale that is
	// already cancelled. Cancellation is a one-way, one-time transition;
	// under concurrent cancellations exactly one caller wins and the rest
	// observe this error.
	ErrAlreadyCancelled = errors.New("sale already cancelled")

	// ErrDuplicatePolicyNumber is returned when recording a sale whose
	// policy number is already taken.
	ErrDuplicatePolicyNumber = errors.New("duplicate policy number")

	// ErrInvalidSaleValue is returned when a policy value is outside
	// (0, 10,000,000].
	ErrInvalidSaleValue = errors.New("invalid policy value")

	// ErrInvalidPeriodFormat is returned when a period key does not match
	// its bonus type (YYYY-MM, YYYY-Qn, YYYY).
	ErrInvalidPeriodFormat = errors.New("invalid period format")

	// ErrHierarchyViolation is returned when an agent create/update would
	// break the level chain (parent must be exactly one level above, no
	// cycles, level 4 has no parent).
	ErrHierarchyViolation = errors.New("hierarchy invariant violation")

	// ErrAgentInUse is returned when deleting an agent that still has
	// sales, commission lines, or child agents.
	ErrAgentInUse = errors.New("agent has dependent records")

	// ErrStoreFailure wraps persistence-level failures. The surrounding
	// transaction has been rolled back; nothing was partially applied.
	ErrStoreFailure = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a bad input field before any mutation happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// HierarchyError explains which link rule an agent mutation would break.
type HierarchyError struct {
	AgentID AgentID
	Rule    string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("hierarchy violation for agent %d: %s", e.AgentID, e.Rule)
}

func (e *HierarchyError) Unwrap() error { return ErrHierarchyViolation }

// PeriodFormatError reports a period key that doesn't match its type.
type PeriodFormatError struct {
	Type   BonusType
	Period string
}

func (e *PeriodFormatError) Error() string {
	return fmt.Sprintf("invalid period %q for %s bonuses (use %s)", e.Period, e.Type, e.Type.Layout())
}

func (e *PeriodFormatError) Unwrap() error { return ErrInvalidPeriodFormat }

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrSaleNotFound)
}

// IsConflict returns true if the error is a state conflict the caller
// cannot fix by reshaping input (duplicate key, double cancel, chain break).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicatePolicyNumber) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrHierarchyViolation) ||
		errors.Is(err, ErrAgentInUse)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidSaleValue) ||
		errors.Is(err, ErrInvalidPeriodFormat)
}
