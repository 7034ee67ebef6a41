/*
errors.go - Centralized error types for the cashbook

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores wrap these with context; the API maps them to status codes.

ERROR CATEGORIES:
  1. Lookup errors - Entry or archive batch does not exist
  2. Validation errors - Malformed payloads, bad ranges, bad orders
  3. State errors - Operation not allowed on an archived entry

USAGE:
  if errors.Is(err, cashbook.ErrEntryNotFound) {
      // 404
  }

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package cashbook

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEntryNotFound is returned when an entry id does not exist.
	ErrEntryNotFound = errors.New("cashbook entry not found")

	// ErrArchiveNotFound is returned when no rows share a label+timestamp pair.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrInvalidEntry is returned for malformed entry payloads.
	ErrInvalidEntry = errors.New("invalid cashbook entry")

	// ErrInvalidRange is returned when an archive range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range: end before start")

	// ErrEmptyLabel is returned when archiving without a label.
	ErrEmptyLabel = errors.New("archive label is required")

	// ErrArchived is returned when mutating an archived entry. Archived rows
	// are frozen until their batch is restored.
	ErrArchived = errors.New("entry is archived")

	// ErrUnknownKind is returned for an unknown accumulator field name.
	ErrUnknownKind = errors.New("unknown accumulator field")

	// ErrInvalidOrder is returned when a reorder list is empty, repeats an id,
	// or names an archived entry.
	ErrInvalidOrder = errors.New("invalid reorder list")

	// ErrNoChanges is returned when an edit payload is empty.
	ErrNoChanges = errors.New("no fields to update")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEntry
}

// NotFoundError names the missing entry.
type NotFoundError struct {
	ID EntryID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cashbook entry not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrEntryNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrEmptyLabel) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrNoChanges)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrArchiveNotFound)
}

// IsConflict returns true if the operation clashes with the entry's state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrArchived)
}
