// Package apperrors holds the error taxonomy shared by the order core.
// Every failure returned across a package boundary wraps one of these so
// callers can branch with errors.Is / errors.As.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrValidation marks input refused before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrAuthenticationRequired marks an operation attempted without identity.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrPersistence marks a failed remote read or write.
	ErrPersistence = errors.New("persistence failed")
	// ErrPlacementTimeout marks an order placement that did not finish in time.
	ErrPlacementTimeout = fmt.Errorf("%w: order placement timed out", ErrPersistence)
	ErrNotFound         = errors.New("not found")
	// ErrIllegalTransition marks a status change outside the lifecycle graph.
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrForbidden         = errors.New("forbidden")
)

// Validation wraps a message as a validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PartialCommitError reports that an order header may have been written while
// its line items were not, and the write could not be undone.
type PartialCommitError struct {
	OrderID     uuid.UUID
	Cause       error
	RollbackErr error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf(
		"order %s partially committed: %v (rollback: %v)",
		e.OrderID, e.Cause, e.RollbackErr,
	)
}

func (e *PartialCommitError) Unwrap() []error {
	return []error{ErrPersistence, e.Cause, e.RollbackErr}
}
