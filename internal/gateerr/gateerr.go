// Package gateerr defines the typed error envelope shared by every
// public operation of the gateway.
//
// All user-visible failures carry one of the canonical codes below.
// Internal code wraps errors with %w as usual; the envelope is only
// produced at operation boundaries.
package gateerr

import (
	"errors"
	"fmt"
)

// Canonical error codes. These are part of the wire contract — clients
// dispatch on them, so they never change spelling.
const (
	CodeBadRequest       = "bad_request"
	CodeDenied           = "denied_by_policy"
	CodeNotConnected     = "not_connected"
	CodeMissingToken     = "missing_token"
	CodeUpstream         = "upstream_error"
	CodeVaultEmpty       = "vault_empty"
	CodeVaultDisabled    = "vault_disabled"
	CodeAllSourcesFailed = "all_sources_failed"
	CodeNotSupported     = "not_supported"
	CodeTimeout          = "timeout"
	CodeInternal         = "internal"
)

// Error is the typed failure every public operation returns.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an Error with the given code and formatted message.
func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error carrying cause, so callers keep the typed
// envelope without losing the original error from their unwrap chain.
func Wrap(code string, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetails attaches a details object and returns the same error,
// so it chains off New.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the canonical code from err, or CodeInternal when the
// error is not a gateerr.Error.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}

// As unwraps err into an *Error, converting foreign errors into a
// generic internal one so raw failure text never leaks verbatim into
// a response envelope with an unexpected shape.
func As(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return New(CodeInternal, "internal error")
}

// Envelope renders err as the wire-level error object:
// {"error": {"code": ..., "message": ..., "details": ...}}.
func Envelope(err error) map[string]any {
	ge := As(err)
	inner := map[string]any{
		"code":    ge.Code,
		"message": ge.Message,
	}
	if len(ge.Details) > 0 {
		inner["details"] = ge.Details
	}
	return map[string]any{"error": inner}
}
