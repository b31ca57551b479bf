package accel

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// APIError is a non-success status returned by an accelerator API call.
// File and Line locate the call site once the error passed through Check.
type APIError struct {
	Code Status
	Op   string
	File string
	Line int
	Err  error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: error code %d (%s)", e.Op, int32(e.Code), e.Code)
	if e.File != "" {
		msg += fmt.Sprintf(" encountered at %s:%d", e.File, e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// NewError returns an APIError for op failing with code.
func NewError(op string, code Status) *APIError {
	return &APIError{Op: op, Code: code}
}

// Errorf returns an APIError for op failing with code, carrying a formatted cause.
func Errorf(op string, code Status, format string, args ...any) *APIError {
	return &APIError{Op: op, Code: code, Err: fmt.Errorf(format, args...)}
}

// Check annotates err with the caller's file and line and attaches a stack
// trace. It returns nil for a nil error. Errors that already carry a call
// site keep it.
func Check(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) && apiErr.File == "" {
		located := *apiErr
		if _, file, line, ok := runtime.Caller(1); ok {
			located.File = filepath.Base(file)
			located.Line = line
		}
		return errors.WithStack(&located)
	}
	return errors.WithStack(err)
}

// StatusOf extracts the status code carried by err.
func StatusOf(err error) (Status, bool) {
	if err == nil {
		return StatusSuccess, true
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return 0, false
}

// IsStatus reports whether err carries the given status.
func IsStatus(err error, code Status) bool {
	got, ok := StatusOf(err)
	return ok && got == code
}
