package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pocketumami/pocketumami/pkg/instance"
)

// verifyTTL is how long a successful verify suppresses further verify calls.
// Screens re-request a session on every focus; without this window each
// focus would cost a server round-trip.
const verifyTTL = 5 * time.Minute

const httpTimeout = 30 * time.Second

// Session is a ready-to-use connection descriptor: the versioned base URL
// for API calls plus the auth headers to attach.
type Session struct {
	BaseURL string
	Headers http.Header
}

// Manager produces valid sessions for the active instance, abstracting over
// the two auth schemes. Self-hosted resolution is single-flight per
// instance: concurrent callers share one verify/login instead of storming
// the backend.
type Manager struct {
	instances *instance.Store
	store     *Store
	http      *http.Client
	group     singleflight.Group
	log       *zap.Logger
	now       func() time.Time
}

// NewManager creates a session manager over the given instance store.
func NewManager(instances *instance.Store, store *Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		instances: instances,
		store:     store,
		http:      &http.Client{Timeout: httpTimeout},
		log:       log,
		now:       time.Now,
	}
}

// EnsureSession returns a valid session for the active instance, verifying
// or re-minting the token as needed. With forceRevalidate the verify-skip
// window is ignored. Failures are always *Error values from the closed
// taxonomy.
func (m *Manager) EnsureSession(ctx context.Context, forceRevalidate bool) (*Session, error) {
	inst, err := m.instances.Current(ctx)
	if errors.Is(err, instance.ErrNoInstance) {
		return nil, &Error{Code: CodeMissingInstance, Message: "no instance configured", Err: err}
	}
	if err != nil {
		return nil, &Error{Code: CodeHTTPError, Message: "failed to load instance", Err: err}
	}

	if inst.SetupType == instance.SetupCloud {
		return m.cloudSession(ctx, inst)
	}

	// All concurrent callers for this instance share one resolution.
	v, err, _ := m.group.Do(inst.ID, func() (any, error) {
		return m.resolveSelfHosted(ctx, inst, forceRevalidate)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Invalidate clears the cached session for the active instance. The next
// EnsureSession re-verifies or re-logins.
func (m *Manager) Invalidate(ctx context.Context) {
	inst, err := m.instances.Current(ctx)
	if err != nil {
		return
	}
	m.store.Invalidate(inst.ID)
	m.group.Forget(inst.ID)
}

// MarkRejected is Invalidate for tokens the backend refused through a real
// API call: the next resolution skips re-verifying the refused token and
// goes straight to login.
func (m *Manager) MarkRejected(ctx context.Context) {
	inst, err := m.instances.Current(ctx)
	if err != nil {
		return
	}
	m.store.MarkRejected(inst.ID)
	m.group.Forget(inst.ID)
}

// cloudSession requires only the stored API key; no network call is made.
func (m *Manager) cloudSession(ctx context.Context, inst *instance.Instance) (*Session, error) {
	sec, err := m.instances.Secrets(ctx, inst.ID)
	if err != nil {
		return nil, &Error{Code: CodeHTTPError, Message: "failed to load secrets", Err: err}
	}
	if sec.APIKey == "" {
		return nil, NewError(CodeMissingSecrets, "no API key stored for cloud instance")
	}

	headers := http.Header{}
	headers.Set("x-umami-api-key", sec.APIKey)
	return &Session{BaseURL: inst.Host + "/v1", Headers: headers}, nil
}

func (m *Manager) resolveSelfHosted(ctx context.Context, inst *instance.Instance, force bool) (*Session, error) {
	now := m.now()

	// Fast path: recently verified token, no server round-trip.
	if !force {
		if token, verifiedAt, ok := m.store.Get(inst.ID); ok && token != "" &&
			now.Sub(verifiedAt) <= verifyTTL && !tokenExpired(token, now) {
			return bearerSession(inst, token), nil
		}
	}

	sec, err := m.instances.Secrets(ctx, inst.ID)
	if err != nil {
		return nil, &Error{Code: CodeHTTPError, Message: "failed to load secrets", Err: err}
	}

	token, _, _ := m.store.Get(inst.ID)
	if token == "" {
		token = sec.Token
	}

	// Don't re-verify a token the backend just rejected through a real API
	// call; go straight to login.
	if token != "" && token == m.store.Rejected(inst.ID) {
		token = ""
	}

	if token != "" {
		user, err := m.verifyToken(ctx, inst, token)
		switch {
		case err == nil:
			m.store.Set(inst.ID, token, now)
			m.reconcileUser(ctx, inst, user)
			return bearerSession(inst, token), nil
		case isHostDown(err):
			// Unreachable is not an auth failure; never burn a login attempt
			// on it.
			return nil, &Error{Code: CodeHostDown, Message: "host unreachable", Err: err}
		case isAuthRejection(err):
			m.log.Debug("token rejected, falling through to login",
				zap.String("instance", inst.ID))
			// fall through to re-login below
		default:
			return nil, &Error{Code: CodeInvalidCredentials, Message: serverMessage(err), Err: err}
		}
	}

	return m.login(ctx, inst, sec)
}

// login re-mints a token with the stored username and password. Partial
// credentials never reach the wire: the caller is told to reconnect instead.
func (m *Manager) login(ctx context.Context, inst *instance.Instance, sec instance.Secrets) (*Session, error) {
	if inst.Username == "" || sec.Password == "" {
		return nil, NewError(CodeMissingSecrets, "stored credentials incomplete, reconnect required")
	}

	body, err := json.Marshal(map[string]string{
		"username": inst.Username,
		"password": sec.Password,
	})
	if err != nil {
		return nil, &Error{Code: CodeParseError, Err: err}
	}

	var resp loginResponse
	if err := m.postJSON(ctx, inst.Host+"/api/auth/login", nil, body, &resp); err != nil {
		switch {
		case isHostDown(err):
			return nil, &Error{Code: CodeHostDown, Message: "host unreachable", Err: err}
		case isAuthRejection(err):
			return nil, NewError(CodeInvalidCredentials, "username or password no longer valid")
		default:
			// Any other login failure is reported as a credentials problem,
			// not retried.
			return nil, &Error{Code: CodeInvalidCredentials, Message: serverMessage(err), Err: err}
		}
	}
	if resp.Token == "" {
		return nil, NewError(CodeParseError, "login response missing token")
	}

	now := m.now()
	if err := m.instances.SetToken(ctx, inst.ID, resp.Token); err != nil {
		m.log.Warn("failed to persist token", zap.Error(err))
	}
	m.store.Set(inst.ID, resp.Token, now)
	m.reconcileUser(ctx, inst, &resp.User)

	m.log.Info("logged in", zap.String("instance", inst.ID), zap.String("username", inst.Username))
	return bearerSession(inst, resp.Token), nil
}

// verifyToken asks the backend whether token is still valid and returns the
// current user on success.
func (m *Manager) verifyToken(ctx context.Context, inst *instance.Instance, token string) (*remoteUser, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	var user remoteUser
	if err := m.postJSON(ctx, inst.Host+"/api/auth/verify", headers, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// reconcileUser opportunistically syncs the local username/userID with what
// the server reports. Best-effort: a failed save never fails the session.
func (m *Manager) reconcileUser(ctx context.Context, inst *instance.Instance, user *remoteUser) {
	if user == nil || (user.ID == "" && user.Username == "") {
		return
	}

	changed := false
	if user.Username != "" && user.Username != inst.Username {
		inst.Username = user.Username
		changed = true
	}
	if user.ID != "" && user.ID != inst.RemoteUserID {
		inst.RemoteUserID = user.ID
		changed = true
	}
	if !changed {
		return
	}
	if err := m.instances.Save(ctx, inst); err != nil {
		m.log.Warn("failed to sync remote user", zap.Error(err))
	}
}

type remoteUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	IsAdmin  bool   `json:"isAdmin,omitempty"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  remoteUser `json:"user"`
}

// statusError is an internal carrier for non-OK responses during
// login/verify, classified into the taxonomy by the callers above.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("http %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("http %d: %s", e.status, http.StatusText(e.status))
}

// hostDownError marks a transport-level failure (no response at all).
type hostDownError struct{ err error }

func (e *hostDownError) Error() string { return e.err.Error() }
func (e *hostDownError) Unwrap() error { return e.err }

func isHostDown(err error) bool {
	var hd *hostDownError
	return errors.As(err, &hd)
}

func isAuthRejection(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status == http.StatusUnauthorized || se.status == http.StatusForbidden
}

func serverMessage(err error) string {
	var se *statusError
	if errors.As(err, &se) && se.message != "" {
		return se.message
	}
	return err.Error()
}

// postJSON issues one POST and decodes the JSON response into out. Non-OK
// statuses become *statusError with the body's message/error field when
// present; transport failures become *hostDownError.
func (m *Manager) postJSON(ctx context.Context, url string, headers http.Header, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range headers {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return &hostDownError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &hostDownError{err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, message: extractMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// extractMessage pulls a human-readable error out of a JSON body, looking at
// the message then error fields.
func extractMessage(body []byte) string {
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

func bearerSession(inst *instance.Instance, token string) *Session {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	return &Session{BaseURL: inst.Host + "/api", Headers: headers}
}

// tokenExpired reports whether the JWT's exp claim is already past. The
// claim is read without signature verification -- only the server can truly
// validate the token, this just skips a verify round-trip that is guaranteed
// to fail.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false // opaque token, let the server decide
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now)
}
