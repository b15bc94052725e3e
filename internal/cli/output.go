package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/strataform/strata/internal/fault"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // operation reported a failure (stale check, prune error, ...)
	ExitCommandError = 2 // command error (bad flags, missing store, corrupt catalog)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure when the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// Response is the standard JSON envelope for CLI output.
type Response struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *ErrorDoc `json:"error,omitempty"`
}

// ErrorDoc is the error payload in a Response.
type ErrorDoc struct {
	Kind    string `json:"kind"` // fault kind, e.g. "NOT_FOUND"
	Message string `json:"message"`
}

// JSON emits data inside the standard envelope. Text-format callers render
// their own tables and never reach this.
func (f *OutputFormatter) JSON(data any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(Response{Status: "ok", Data: data})
}

// Fail renders err in the configured format and returns an ExitError with
// the appropriate exit code.
func (f *OutputFormatter) Fail(err error) error {
	kind := string(fault.KindOf(err))
	if kind == "" {
		kind = "ERROR"
	}
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		enc.Encode(Response{Status: "error", Error: &ErrorDoc{Kind: kind, Message: err.Error()}})
	} else {
		fmt.Fprintf(f.Writer, "error [%s]: %v\n", kind, err)
	}
	return WrapExitError(ExitCommandError, kind, err)
}

// Textf writes formatted text output (text format only).
func (f *OutputFormatter) Textf(format string, args ...any) {
	fmt.Fprintf(f.Writer, format+"\n", args...)
}

// VerboseLog writes a diagnostic line only when verbose mode is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.Writer, format+"\n", args...)
	}
}
