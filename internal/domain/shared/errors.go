package shared

import (
	"errors"
	"fmt"
)

// DomainError is the base error type for all domain errors
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// BenignRaceError indicates an operation was rejected because another actor
// already applied the same effect (slot already collected, already planted).
// It is resolved silently: local state resynchronizes from the ledger and
// no user-visible error is produced.
type BenignRaceError struct {
	*DomainError
	Operation string
	SlotID    string
}

func NewBenignRaceError(operation, slotID string) *BenignRaceError {
	return &BenignRaceError{
		DomainError: &DomainError{Message: fmt.Sprintf("%s: nothing to do for slot %s (already applied elsewhere)", operation, slotID)},
		Operation:   operation,
		SlotID:      slotID,
	}
}

// TransientError indicates a network/timeout/server-unavailable failure.
// Callers retry with bounded backoff before surfacing it.
type TransientError struct {
	*DomainError
	Cause error
}

func NewTransientError(message string, cause error) *TransientError {
	return &TransientError{
		DomainError: &DomainError{Message: message},
		Cause:       cause,
	}
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// InsufficientResourcesError is a validation failure carrying the specific
// resource shortfall so user messages can name amounts instead of raw
// transport errors.
type InsufficientResourcesError struct {
	*DomainError
	Resource  string
	Required  int
	Available int
}

func NewInsufficientResourcesError(resource string, required, available int) *InsufficientResourcesError {
	return &InsufficientResourcesError{
		DomainError: &DomainError{Message: fmt.Sprintf("insufficient %s: need %d, have %d", resource, required, available)},
		Resource:    resource,
		Required:    required,
		Available:   available,
	}
}

// ValidationError indicates invalid parameters, occupied slots, or capacity
// limits. Never retried; surfaced immediately to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Classification helpers. Remote call errors are classified exactly once,
// at the API adapter boundary, and every layer above uses these.

func IsBenignRace(err error) bool {
	var target *BenignRaceError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var ire *InsufficientResourcesError
	return errors.As(err, &ire)
}
