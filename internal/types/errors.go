package types

import (
	"errors"
	"fmt"
)

// ErrorCode categorises registry errors.
type ErrorCode string

const (
	// ErrCodeDuplicateType indicates the TypeId is already registered.
	ErrCodeDuplicateType ErrorCode = "DUPLICATE_TYPE"

	// ErrCodeUnknownType indicates the TypeId is not registered.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrCodeTypeInUse indicates live instances still reference the type.
	ErrCodeTypeInUse ErrorCode = "TYPE_IN_USE"
)

// Error is returned by registry operations.
type Error struct {
	Code    ErrorCode
	Kind    Kind
	TypeId  TypeId
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Kind, e.TypeId, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Code, e.Kind, e.TypeId)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsDuplicateType reports whether err is a DUPLICATE_TYPE error.
func IsDuplicateType(err error) bool { return hasCode(err, ErrCodeDuplicateType) }

// IsUnknownType reports whether err is an UNKNOWN_TYPE error.
func IsUnknownType(err error) bool { return hasCode(err, ErrCodeUnknownType) }

// IsTypeInUse reports whether err is a TYPE_IN_USE error.
func IsTypeInUse(err error) bool { return hasCode(err, ErrCodeTypeInUse) }
