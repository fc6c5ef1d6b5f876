// Package httpx holds small JSON response helpers shared by HTTP handlers.
package httpx

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/pocketumami/pocketumami/pkg/session"
)

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// RespondError writes err with the given status code.
func RespondError(w http.ResponseWriter, status int, err error) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

// RespondErrorString writes a plain error message with the given status code.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// RespondSessionError maps a session/API failure onto an HTTP status, keeping
// the taxonomy code in the body so the dashboard can react per-code.
func RespondSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""

	var se *session.Error
	if errors.As(err, &se) {
		code = string(se.Code)
		switch se.Code {
		case session.CodeMissingInstance, session.CodeMissingSecrets:
			status = http.StatusPreconditionFailed
		case session.CodeInvalidCredentials:
			status = http.StatusUnauthorized
		case session.CodeHostDown:
			status = http.StatusBadGateway
		case session.CodeHTTPError:
			status = http.StatusBadGateway
			if se.Status >= 400 && se.Status < 500 {
				status = se.Status
			}
		case session.CodeParseError:
			status = http.StatusBadGateway
		}
	}

	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: err.Error(),
	})
}
