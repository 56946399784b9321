package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation failure, failed scenarios, failed plugins
	ExitCommandError = 2 // Command error (bad flags, unreadable files, etc.)
)

// Error codes carried in CLIError.Code.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Config file unreadable or invalid
	ErrCodeManifest     = "E003" // Manifest failed to load
	ErrCodePlugin       = "E004" // Plugin failed to activate
	ErrCodeStore        = "E005" // Journal database error
	ErrCodeTestFailed   = "E006" // One or more scenarios failed
	ErrCodeInvalidInput = "E007" // Flag or argument value rejected
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with a plain message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Err: errors.New(message)}
}

// WrapExitError returns an ExitError reading "message: err" that unwraps
// to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf("%s: %w", message, err)}
}

// GetExitCode maps err to a process exit code.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; Writer when nil
	Verbose   bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the envelope for --format json.
type CLIResponse struct {
	Status string    `json:"status"` // ok | error
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failure in a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON reports whether output is machine readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data: as an ok response in JSON mode, otherwise with its
// default text form.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return f.respond(data, nil)
}

// Result writes a JSON response that is an error response when failure is
// set. Text output is left to the caller.
func (f *OutputFormatter) Result(data any, failure *CLIError) error {
	return f.respond(data, failure)
}

// Fail reports failure without a payload. Details are printed in text mode
// only with --verbose.
func (f *OutputFormatter) Fail(failure *CLIError) error {
	if f.JSON() {
		return f.respond(nil, failure)
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", failure.Code, failure.Message)
	if f.Verbose && failure.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", failure.Details)
	}
	return nil
}

func (f *OutputFormatter) respond(data any, failure *CLIError) error {
	resp := CLIResponse{Status: "ok", Data: data, Error: failure}
	if failure != nil {
		resp.Status = "error"
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Verbosef writes a diagnostic line when --verbose is set. Diagnostics
// never go to Writer unless ErrWriter is unset, so JSON stays parseable.
func (f *OutputFormatter) Verbosef(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

// Table writes rows as left-aligned columns separated by two spaces.
func (f *OutputFormatter) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	line := func(cells []string) {
		var b strings.Builder
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			width := 0
			if i < len(widths) {
				width = widths[i]
			}
			fmt.Fprintf(&b, "%-*s  ", width, cell)
		}
		fmt.Fprintln(f.Writer, strings.TrimRight(b.String(), " "))
	}
	line(header)
	for _, row := range rows {
		line(row)
	}
}
