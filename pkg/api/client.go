// Package api performs authenticated HTTP requests against the active
// instance, with automatic session acquisition and exactly one retry when
// the backend rejects our auth.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/session"
)

const httpTimeout = 30 * time.Second

// Client wraps the session manager for issuing API calls. All failures are
// *session.Error values from the closed taxonomy.
type Client struct {
	sessions *session.Manager
	http     *http.Client
	log      *zap.Logger
}

// NewClient creates an API client over the given session manager.
func NewClient(sessions *session.Manager, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		sessions: sessions,
		http:     &http.Client{Timeout: httpTimeout},
		log:      log,
	}
}

// GetJSON performs one logical GET against the active instance and decodes
// the JSON response into out.
//
// On a 401/403 the session is invalidated and re-acquired with force
// revalidation, and the request is retried exactly once. A second rejection
// is surfaced as-is -- the bounded retry keeps a server that always rejects
// us from looping forever.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	sess, err := c.sessions.EnsureSession(ctx, false)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, sess, endpoint, query)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.log.Debug("auth rejected, refreshing session once",
			zap.String("endpoint", endpoint), zap.Int("status", status))
		c.sessions.MarkRejected(ctx)

		sess, err = c.sessions.EnsureSession(ctx, true)
		if err != nil {
			// Tag the session failure with the HTTP status that exposed it.
			var se *session.Error
			if errors.As(err, &se) && se.Status == 0 {
				se.Status = status
			}
			return err
		}

		status, body, err = c.do(ctx, sess, endpoint, query)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		code := session.CodeHTTPError
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			code = session.CodeInvalidCredentials
		}
		message := errorMessage(body)
		if message == "" {
			message = http.StatusText(status)
		}
		return &session.Error{Code: code, Status: status, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &session.Error{Code: session.CodeParseError, Message: "unexpected response body", Err: err}
	}
	return nil
}

// do issues a single HTTP GET with the session's auth headers. Transport
// failures (no response at all) classify as host_down.
func (c *Client) do(ctx context.Context, sess *session.Session, endpoint string, query url.Values) (int, []byte, error) {
	target := sess.BaseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, &session.Error{Code: session.CodeHTTPError, Message: "failed to build request", Err: err}
	}
	for key, values := range sess.Headers {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &session.Error{Code: session.CodeHostDown, Message: "host unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &session.Error{Code: session.CodeHostDown, Message: "connection interrupted", Err: err}
	}
	return resp.StatusCode, body, nil
}

// errorMessage pulls a human-readable message from a JSON error body,
// preferring message over error.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func newParseError(message string) *session.Error {
	return &session.Error{Code: session.CodeParseError, Message: message}
}

// queryParams is a tiny helper for building url.Values inline.
func queryParams(pairs ...string) url.Values {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("queryParams: odd argument count %d", len(pairs)))
	}
	values := url.Values{}
	for i := 0; i < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			values.Set(pairs[i], pairs[i+1])
		}
	}
	return values
}
