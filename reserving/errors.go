/*
errors.go - Error taxonomy for the reserving pipeline

PURPOSE:
  All error types in one place. Structural and reference errors abort a
  run; threshold breaches are Findings and never appear here.

ERROR CATEGORIES:
  1. Reference errors - A join key required by a stage is absent
  2. Ambiguity errors - More than one row where exactly one is allowed
  3. Input errors - A row fails basic shape rules (missing LOB, negative LDF)
  4. Integrity errors - An internal invariant did not hold

USAGE:
  if errors.Is(err, reserving.ErrMissingReferenceData) {
      var ref *reserving.MissingReferenceError
      errors.As(err, &ref) // ref.Table, ref.LOB, ref.Key
  }

SEE ALSO:
  - policy.go: RequireLDF turns the LDF default into a reference error
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package reserving

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingReferenceData is returned when a LOB/DY key required by a
	// join (risk adjustment, discount rate, payment pattern) is absent.
	ErrMissingReferenceData = errors.New("missing reference data")

	// ErrAmbiguousInput is returned when a table holds more than one row for
	// a key that must be unique, e.g. two diagonal cells for one (LOB, AY).
	ErrAmbiguousInput = errors.New("ambiguous input")

	// ErrMalformedPaymentPattern is returned in strict mode when a LOB's
	// payment percentages do not sum to 1.
	ErrMalformedPaymentPattern = errors.New("malformed payment pattern")

	// ErrInvalidInput is returned when a row fails basic shape rules.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInconsistentGroup is returned when a column that must be constant
	// within a (LOB, AY) group carries different values.
	ErrInconsistentGroup = errors.New("inconsistent values within group")

	// ErrInvariantViolation is returned when BEL recomputed at aggregation
	// disagrees with BEL from estimation.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrRunNotFound is returned by stores when a run ID is unknown.
	ErrRunNotFound = errors.New("run not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending key
// =============================================================================

// MissingReferenceError names the table and key that a join could not find.
type MissingReferenceError struct {
	Table string
	LOB   LOB
	Key   string // optional extra key, e.g. "DY=4" or "offset=11"
}

func (e *MissingReferenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("missing reference data: %s has no entry for LOB %q (%s)", e.Table, e.LOB, e.Key)
	}
	return fmt.Sprintf("missing reference data: %s has no entry for LOB %q", e.Table, e.LOB)
}

func (e *MissingReferenceError) Unwrap() error {
	return ErrMissingReferenceData
}

// AmbiguousInputError names the duplicated key and the rows that collide.
type AmbiguousInputError struct {
	Table string
	Key   string
	Rows  []int // zero-based input row indexes
}

func (e *AmbiguousInputError) Error() string {
	return fmt.Sprintf("ambiguous input: %s has more than one row for %s (rows %v)", e.Table, e.Key, e.Rows)
}

func (e *AmbiguousInputError) Unwrap() error {
	return ErrAmbiguousInput
}

// RowError attaches a table and row index to an input error.
type RowError struct {
	Table string
	Row   int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDataError returns true if the error is caused by the supplied tables
// rather than by the engine or its storage.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMissingReferenceData) ||
		errors.Is(err, ErrAmbiguousInput) ||
		errors.Is(err, ErrMalformedPaymentPattern) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInconsistentGroup)
}

// IsCalculationError returns true if the pipeline rejected the run: a data
// error or an internal invariant violation. Storage and context errors are
// not calculation errors.
func IsCalculationError(err error) bool {
	return IsDataError(err) || errors.Is(err, ErrInvariantViolation)
}

// IsNotFound returns true if the error indicates a missing run.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
