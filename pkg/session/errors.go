package session

import (
	"errors"
	"fmt"
)

// Code is the closed error taxonomy surfaced to callers. The UI maps each
// code to a distinct message and action (reconnect prompt, "check
// connection", generic retry), so the distinctions must survive intact.
type Code string

const (
	// CodeMissingInstance means no instance is configured; the caller must
	// redirect to setup. Effectively fatal for the current operation.
	CodeMissingInstance Code = "missing_instance"

	// CodeMissingSecrets means required credentials are absent (no apiKey on
	// a cloud instance, or no username/password to re-login with). The
	// caller should prompt for reconnect.
	CodeMissingSecrets Code = "missing_secrets"

	// CodeHostDown means the backend could not be reached at the transport
	// level. Never retried automatically: retrying a login against an
	// unreachable host just wastes the user's time.
	CodeHostDown Code = "host_down"

	// CodeInvalidCredentials means the backend rejected our credentials.
	CodeInvalidCredentials Code = "invalid_credentials"

	// CodeHTTPError is any other non-OK response.
	CodeHTTPError Code = "http_error"

	// CodeParseError means the response was not the JSON we expected.
	CodeParseError Code = "parse_error"
)

// Error is a typed failure from session resolution or an authenticated
// request. Status carries the HTTP status when one was observed.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or CodeHTTPError if err is not
// a session Error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeHTTPError
}
