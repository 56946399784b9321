package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorises resolver errors.
type ErrorCode string

const (
	// ErrCodeCyclicDependency aborts a Start run; nothing is activated.
	ErrCodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"

	// ErrCodeActivationFailed isolates one plugin; the run continues.
	ErrCodeActivationFailed ErrorCode = "PLUGIN_ACTIVATION_FAILED"

	// ErrCodeDuplicatePlugin rejects an Install under a taken name.
	ErrCodeDuplicatePlugin ErrorCode = "DUPLICATE_PLUGIN"

	// ErrCodeInvalidManifest rejects an Install with an unusable manifest.
	ErrCodeInvalidManifest ErrorCode = "INVALID_MANIFEST"
)

// Error is returned by resolver operations.
type Error struct {
	Code    ErrorCode
	Plugin  string
	Cycles  [][]string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Plugin != "" {
		fmt.Fprintf(&b, " [%s]", e.Plugin)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, c := range e.Cycles {
		fmt.Fprintf(&b, " (%s)", strings.Join(c, " -> "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsCyclicDependency reports whether err is a CYCLIC_DEPENDENCY error.
func IsCyclicDependency(err error) bool { return hasCode(err, ErrCodeCyclicDependency) }

// IsActivationFailed reports whether err is a PLUGIN_ACTIVATION_FAILED error.
func IsActivationFailed(err error) bool { return hasCode(err, ErrCodeActivationFailed) }

// IsDuplicatePlugin reports whether err is a DUPLICATE_PLUGIN error.
func IsDuplicatePlugin(err error) bool { return hasCode(err, ErrCodeDuplicatePlugin) }
