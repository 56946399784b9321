package manifest

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrorCode categorises manifest errors.
type ErrorCode string

const (
	ErrCodeNotFound  ErrorCode = "MANIFEST_NOT_FOUND"
	ErrCodeSyntax    ErrorCode = "MANIFEST_SYNTAX"
	ErrCodeInvalid   ErrorCode = "MANIFEST_INVALID"
	ErrCodeNoPlugins ErrorCode = "MANIFEST_EMPTY"
)

// Error is returned when a manifest cannot be loaded.
type Error struct {
	Code    ErrorCode
	Source  string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	loc := e.Source
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("%s: %s: %s", loc, e.Code, msg)
}

// IsInvalid reports whether err is a MANIFEST_INVALID error.
func IsInvalid(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeInvalid
}

// IsSyntax reports whether err is a MANIFEST_SYNTAX error.
func IsSyntax(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeSyntax
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalid, Field: field, Message: fmt.Sprintf(format, args...)}
}

// cueError keeps the position of the first CUE error.
func cueError(source string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: ErrCodeSyntax, Source: source, Message: err.Error()}
	}
	first := errs[0]
	me := &Error{Code: ErrCodeSyntax, Source: source, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		me.Pos = pos[0]
	}
	return me
}
