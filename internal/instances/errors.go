package instances

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorCode categorises instance manager errors.
type ErrorCode string

const (
	// ErrCodeUnknownInstance indicates no live instance has the id.
	ErrCodeUnknownInstance ErrorCode = "UNKNOWN_INSTANCE"

	// ErrCodeInvalidEndpoint indicates a relation endpoint does not satisfy
	// the relation type's constraint.
	ErrCodeInvalidEndpoint ErrorCode = "INVALID_ENDPOINT"

	// ErrCodeInvalidValue indicates an initial value does not match the
	// declared data type.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"
)

// Error is returned by instance manager operations.
type Error struct {
	Code    ErrorCode
	ID      uuid.UUID
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != uuid.Nil {
		return fmt.Sprintf("%s: %s (instance=%s)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}

// IsUnknownInstance reports whether err is an UNKNOWN_INSTANCE error.
func IsUnknownInstance(err error) bool { return hasCode(err, ErrCodeUnknownInstance) }

// IsInvalidEndpoint reports whether err is an INVALID_ENDPOINT error.
func IsInvalidEndpoint(err error) bool { return hasCode(err, ErrCodeInvalidEndpoint) }

// IsInvalidValue reports whether err is an INVALID_VALUE error.
func IsInvalidValue(err error) bool { return hasCode(err, ErrCodeInvalidValue) }
