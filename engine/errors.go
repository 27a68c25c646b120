/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place. Callers classify with errors.Is against the
  sentinels or errors.As against the structured types; the HTTP layer maps
  them to status codes through IsNotFound / IsClientError.

ERROR KINDS:
  NotFound           referenced policy, payment, renewal or commission absent
  InvalidState       operation attempted from a state that disallows it
  UnderfundedPolicy  action would drop active payments below the premium
  NoApplicableRate   rate resolution found nothing; callers turn it into
                     "no commission generated", never an end-user error
  DuplicateCommission internal guard result during generation; surfaced only
                     as a skip count

RETRIES:
  Business violations are never retryable. Only store-level concurrency
  conflicts (ErrConcurrentModification) are.

SEE ALSO:
  - api/errors.go: HTTP status mapping
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the parent of every not-found error below.
	ErrNotFound = errors.New("not found")

	ErrPolicyNotFound     = fmt.Errorf("policy %w", ErrNotFound)
	ErrPaymentNotFound    = fmt.Errorf("payment %w", ErrNotFound)
	ErrRenewalNotFound    = fmt.Errorf("renewal %w", ErrNotFound)
	ErrCommissionNotFound = fmt.Errorf("commission %w", ErrNotFound)

	// ErrInvalidState is returned when an entity's current status disallows
	// the requested operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnderfundedPolicy is returned when an action would leave the active
	// payment total below the policy premium.
	ErrUnderfundedPolicy = errors.New("underfunded policy")

	// ErrNoApplicableRate is returned when neither a custom rate nor a rule
	// applies. Expected configuration gap, not a fault.
	ErrNoApplicableRate = errors.New("no applicable commission rate")

	// ErrDuplicateCommission is returned by stores when a commission for the
	// same payment already exists.
	ErrDuplicateCommission = errors.New("duplicate commission")

	// ErrDuplicatePolicyNumber is returned when a policy number is reused
	// within a company.
	ErrDuplicatePolicyNumber = errors.New("duplicate policy number")

	// ErrInvalidInput is returned for malformed operation input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTenant is returned when a tenant-scoped operation runs without a
	// tenant on its context.
	ErrNoTenant = errors.New("no tenant scope on context")

	// ErrConcurrentModification is returned when a store detects a write
	// conflict (e.g. a deadlock on concurrent voids). Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnderfundedPolicyError reports the exact shortfall an action would cause.
type UnderfundedPolicyError struct {
	PolicyID  PolicyID
	Premium   decimal.Decimal
	Remaining decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *UnderfundedPolicyError) Error() string {
	return fmt.Sprintf("underfunded policy %s: premium %s, remaining active payments %s, shortfall %s",
		e.PolicyID, e.Premium, e.Remaining, e.Shortfall)
}

func (e *UnderfundedPolicyError) Unwrap() error { return ErrUnderfundedPolicy }

// InvalidStateError names the entity, its state and the refused operation.
type InvalidStateError struct {
	Entity string
	ID     string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s", e.Op, e.Entity, e.ID, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ValidationError reports one invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is a business rule or input
// violation the caller can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrUnderfundedPolicy) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicatePolicyNumber)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
