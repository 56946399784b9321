package reactive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrorCode categorises property errors.
type ErrorCode string

const (
	// ErrCodeDuplicateProperty indicates AddProperty on an existing name.
	ErrCodeDuplicateProperty ErrorCode = "DUPLICATE_PROPERTY"

	// ErrCodeUnknownProperty indicates the container has no such property.
	ErrCodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"
)

// PropertyError is returned by container operations.
type PropertyError struct {
	Code     ErrorCode
	Owner    uuid.UUID
	Property string
}

// Error implements the error interface.
func (e *PropertyError) Error() string {
	return fmt.Sprintf("%s: %q (instance=%s)", e.Code, e.Property, e.Owner)
}

func hasCode(err error, code ErrorCode) bool {
	var pe *PropertyError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsDuplicateProperty reports whether err is a DUPLICATE_PROPERTY error.
func IsDuplicateProperty(err error) bool { return hasCode(err, ErrCodeDuplicateProperty) }

// IsUnknownProperty reports whether err is an UNKNOWN_PROPERTY error.
func IsUnknownProperty(err error) bool { return hasCode(err, ErrCodeUnknownProperty) }

// TickNotConvergedError is returned when a tick hits the pass cap before
// reaching a fixed point. Values computed so far are kept. It is a report,
// not a failure: the write that started the tick has been applied.
type TickNotConvergedError struct {
	Tick    int64    // Tick sequence number
	Passes  int      // Passes executed
	Limit   int      // Configured cap
	Pending []string // Nodes still dirty when the cap was hit
}

// Error implements the error interface.
func (e *TickNotConvergedError) Error() string {
	return fmt.Sprintf("tick %d did not converge after %d passes (limit %d), pending: %s",
		e.Tick, e.Passes, e.Limit, strings.Join(e.Pending, ", "))
}

// IsTickNotConverged reports whether err is a TickNotConvergedError.
func IsTickNotConverged(err error) bool {
	var te *TickNotConvergedError
	return errors.As(err, &te)
}
