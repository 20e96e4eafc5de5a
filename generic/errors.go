/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error categories in one place for consistency and discoverability.
  Domain code returns the structured types; callers classify with errors.Is
  against the sentinels.

ERROR CATEGORIES:
  1. Validation     - malformed input, nothing touched
  2. Business rule  - legal input that violates a domain rule, rolled back
  3. Not found      - missing entity id
  4. Permission     - actor is not allowed to act on the entity
  5. Consistency    - an invariant broke despite validation; fatal, logged
  6. Lock timeout   - contention exceeded the bounded wait; retryable

USAGE:
  if errors.Is(err, generic.ErrBusinessRule) {
      // 409
  }
  var short *generic.InsufficientBalanceError
  if errors.As(err, &short) {
      fmt.Println(short.Shortfall)
  }

SEE ALSO:
  - vacation/*.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks malformed input (reversed dates, blank reason, unknown reference).
	ErrValidation = errors.New("validation failed")

	// ErrBusinessRule marks a legal request that violates a domain rule.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied marks an actor acting on something it does not own.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConsistency marks a broken invariant. Never expected; always logged.
	ErrConsistency = errors.New("consistency violation")

	// ErrLockTimeout is returned when a row or store lock could not be
	// acquired within the configured bound.
	ErrLockTimeout = errors.New("lock wait timeout")

	// ErrInsufficientBalance is returned when a usage exceeds the eligible balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RuleViolation describes which domain rule was violated.
type RuleViolation struct {
	Rule    string // e.g., "out_of_order", "revoke_after_use"
	Message string
}

func (e *RuleViolation) Error() string {
	return fmt.Sprintf("business rule %s: %s", e.Rule, e.Message)
}

func (e *RuleViolation) Unwrap() error { return ErrBusinessRule }

// Violation is shorthand for a *RuleViolation.
func Violation(rule, format string, args ...any) error {
	return &RuleViolation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError provides details about a balance shortage.
// It is both ErrInsufficientBalance and ErrBusinessRule.
type InsufficientBalanceError struct {
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %v, requested %v, shortfall %v",
		e.Available.Value, e.Requested.Value, e.Shortfall.Value)
}

func (e *InsufficientBalanceError) Unwrap() []error {
	return []error{ErrInsufficientBalance, ErrBusinessRule}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %v not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for a *NotFoundError.
func NotFound(kind string, id any) error { return &NotFoundError{Kind: kind, ID: id} }

// PermissionError names who tried to do what.
type PermissionError struct {
	Actor  string
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s may not %s", e.Actor, e.Action)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// ConsistencyError describes a broken invariant.
type ConsistencyError struct {
	Invariant string
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation (%s): %s", e.Invariant, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to the caller's input or request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrBusinessRule) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
