package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pocketumami/pocketumami/pkg/instance"
	"github.com/pocketumami/pocketumami/pkg/storage/memory"
)

// fakeBackend is an httptest Umami that counts auth traffic.
type fakeBackend struct {
	mux          *http.ServeMux
	server       *httptest.Server
	loginCalls   atomic.Int64
	verifyCalls  atomic.Int64
	loginDelay   time.Duration
	validToken   string
	rejectVerify bool
	rejectLogin  bool
	password     string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		mux:        http.NewServeMux(),
		validToken: "fresh-token",
		password:   "hunter2",
	}

	b.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.loginCalls.Add(1)
		if b.loginDelay > 0 {
			time.Sleep(b.loginDelay)
		}
		var creds struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if b.rejectLogin || creds.Password != b.password {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "incorrect username or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": b.validToken,
			"user":  map[string]any{"id": "user-1", "username": creds.Username},
		})
	})

	b.mux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		b.verifyCalls.Add(1)
		auth := r.Header.Get("Authorization")
		if b.rejectVerify || auth != "Bearer "+b.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "username": "admin"})
	})

	b.server = httptest.NewServer(b.mux)
	t.Cleanup(b.server.Close)
	return b
}

func newTestManager(t *testing.T, host string, setup instance.SetupType, sec instance.Secrets) (*Manager, *instance.Store, *instance.Instance) {
	t.Helper()
	ctx := context.Background()

	instances := instance.NewStore(memory.New(), memory.New())
	inst := &instance.Instance{Name: "test", Host: host, SetupType: setup, Username: "admin"}
	require.NoError(t, instances.Create(ctx, inst))
	require.NoError(t, instances.SetSecrets(ctx, inst.ID, sec))

	return NewManager(instances, NewStore(), zap.NewNop()), instances, inst
}

func TestEnsureSession_NoInstance(t *testing.T) {
	instances := instance.NewStore(memory.New(), memory.New())
	m := NewManager(instances, NewStore(), zap.NewNop())

	_, err := m.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, CodeMissingInstance, CodeOf(err))
}

func TestEnsureSession_CloudNoNetwork(t *testing.T) {
	// Host deliberately unreachable: the cloud path must not touch it.
	m, _, _ := newTestManager(t, "https://api.umami.is", instance.SetupCloud, instance.Secrets{APIKey: "api-key-1"})

	sess, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "https://api.umami.is/v1", sess.BaseURL)
	assert.Equal(t, "api-key-1", sess.Headers.Get("x-umami-api-key"))
}

func TestEnsureSession_CloudMissingAPIKey(t *testing.T) {
	m, _, _ := newTestManager(t, "https://api.umami.is", instance.SetupCloud, instance.Secrets{})

	_, err := m.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, CodeMissingSecrets, CodeOf(err))
}

func TestEnsureSession_VerifyFastPath(t *testing.T) {
	b := newFakeBackend(t)
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: b.validToken, Password: "hunter2"})

	// First call verifies against the server.
	sess, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+b.validToken, sess.Headers.Get("Authorization"))
	assert.Equal(t, int64(1), b.verifyCalls.Load())

	// Within the TTL no further round-trips happen.
	for i := 0; i < 5; i++ {
		_, err := m.EnsureSession(context.Background(), false)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), b.verifyCalls.Load())
	assert.Equal(t, int64(0), b.loginCalls.Load())

	// After the TTL elapses the next call re-verifies.
	m.now = func() time.Time { return time.Now().Add(verifyTTL + time.Minute) }
	_, err = m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.verifyCalls.Load())
}

func TestEnsureSession_ForceRevalidate(t *testing.T) {
	b := newFakeBackend(t)
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: b.validToken, Password: "hunter2"})

	_, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	_, err = m.EnsureSession(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.verifyCalls.Load())
}

func TestEnsureSession_ExpiredTokenRelogin(t *testing.T) {
	b := newFakeBackend(t)
	// Stored token is stale: verify rejects it, login mints a fresh one.
	m, instances, inst := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: "stale-token", Password: "hunter2"})

	sess, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-token", sess.Headers.Get("Authorization"))
	assert.Equal(t, int64(1), b.verifyCalls.Load())
	assert.Equal(t, int64(1), b.loginCalls.Load())

	// The new token is persisted for the next process.
	sec, err := instances.Secrets(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", sec.Token)
}

func TestEnsureSession_LoginRejected(t *testing.T) {
	b := newFakeBackend(t)
	b.password = "changed-on-server"
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: "stale-token", Password: "hunter2"})

	_, err := m.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidCredentials, CodeOf(err))
}

func TestEnsureSession_MissingPassword(t *testing.T) {
	b := newFakeBackend(t)
	b.rejectVerify = true
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: "stale-token"}) // no password stored

	_, err := m.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, CodeMissingSecrets, CodeOf(err))
	// Partial credentials never reach the login endpoint.
	assert.Equal(t, int64(0), b.loginCalls.Load())
}

func TestEnsureSession_HostDown(t *testing.T) {
	b := newFakeBackend(t)
	b.server.Close() // connection refused from here on

	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: "some-token", Password: "hunter2"})

	_, err := m.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, CodeHostDown, CodeOf(err))
	// Unreachable must not be treated as an auth failure: no login attempt.
	assert.Equal(t, int64(0), b.loginCalls.Load())
}

func TestEnsureSession_SingleFlight(t *testing.T) {
	b := newFakeBackend(t)
	b.loginDelay = 100 * time.Millisecond
	// No token anywhere: every caller needs a login.
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Password: "hunter2"})

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.EnsureSession(context.Background(), false)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), b.loginCalls.Load(), "concurrent callers must share one login")
}

func TestInvalidate(t *testing.T) {
	b := newFakeBackend(t)
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: b.validToken, Password: "hunter2"})

	_, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.verifyCalls.Load())

	m.Invalidate(context.Background())

	// Post-invalidate the fast path is gone; the server is consulted again.
	// The token was never refused, so it is re-verified rather than thrown
	// away for a fresh login.
	_, err = m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.verifyCalls.Load())
	assert.Equal(t, int64(0), b.loginCalls.Load())
}

func TestMarkRejected_SkipsVerifyAndLogsIn(t *testing.T) {
	b := newFakeBackend(t)
	m, _, _ := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: b.validToken, Password: "hunter2"})

	_, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.verifyCalls.Load())

	// A real auth rejection costs exactly one login on the next resolution,
	// never a doomed re-verify of the refused token.
	m.MarkRejected(context.Background())

	_, err = m.EnsureSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.verifyCalls.Load())
	assert.Equal(t, int64(1), b.loginCalls.Load())
}

func TestEnsureSession_ReconcilesRemoteUser(t *testing.T) {
	b := newFakeBackend(t)
	m, instances, inst := newTestManager(t, b.server.URL, instance.SetupSelfHosted,
		instance.Secrets{Token: b.validToken, Password: "hunter2"})

	_, err := m.EnsureSession(context.Background(), false)
	require.NoError(t, err)

	got, err := instances.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.RemoteUserID)
}

func makeJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Opaque strings are left to the server to judge.
	assert.False(t, tokenExpired("not-a-jwt", now))

	// exp in the past -> expired; exp in the future -> fine.
	assert.True(t, tokenExpired(makeJWT(t, now.Add(-time.Hour)), now))
	assert.False(t, tokenExpired(makeJWT(t, now.Add(time.Hour)), now))
}
