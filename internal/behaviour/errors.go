package behaviour

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/types"
)

// ErrorCode categorises behaviour errors.
type ErrorCode string

const (
	// ErrCodeMissingProperty indicates the instance lacks a property the
	// subgraph needs. The behaviour is discarded.
	ErrCodeMissingProperty ErrorCode = "MISSING_PROPERTY"

	// ErrCodeInvalidTransition indicates a lifecycle call from the wrong
	// state, or on a destroyed behaviour.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is returned by lifecycle operations.
type Error struct {
	Code      ErrorCode
	Behaviour types.TypeId
	Instance  uuid.UUID
	Message   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: behaviour %s on %s: %s", e.Code, e.Behaviour, e.Instance, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsMissingProperty reports whether err is a MISSING_PROPERTY error.
func IsMissingProperty(err error) bool { return hasCode(err, ErrCodeMissingProperty) }

// IsInvalidTransition reports whether err is an INVALID_TRANSITION error.
func IsInvalidTransition(err error) bool { return hasCode(err, ErrCodeInvalidTransition) }
