package authapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authd/modules/authapi"
	"github.com/dmitrymomot/authd/pkg/mailer"
	"github.com/dmitrymomot/authd/pkg/secrets"
	"github.com/dmitrymomot/authd/svc/auth"
)

type mailerStub struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *mailerStub) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testAPI struct {
	store  *auth.MemoryStore
	tokens *auth.TokenService
	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := auth.NewMemoryStore()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	cipher, err := secrets.New("v1", key)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(store, []byte("api-test-signing-key-0123456789"))
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(store)
	require.NoError(t, err)
	engine, err := auth.NewMFAEngine(store, cipher, &mailerStub{}, "authd", "Authd", auth.WithBcryptCost(4))
	require.NoError(t, err)
	orchestrator, err := auth.NewOrchestrator(store, authn, engine, tokens, nil)
	require.NoError(t, err)
	account, err := auth.NewAccountService(store, &mailerStub{}, "Authd", "https://app.example.com",
		auth.WithAccountBcryptCost(4))
	require.NoError(t, err)

	module := authapi.NewModule(orchestrator, account, engine, tokens, nil)
	server := httptest.NewServer(module.Handle())
	t.Cleanup(server.Close)

	return &testAPI{store: store, tokens: tokens, server: server}
}

func (a *testAPI) request(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (a *testAPI) seedActive(t *testing.T, email, password string) *auth.Identity {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	identity := &auth.Identity{
		Email:         email,
		Status:        auth.StatusActive,
		PasswordHash:  string(hash),
		EmailVerified: true,
	}
	require.NoError(t, a.store.CreateIdentity(context.Background(), identity))
	return identity
}

func errorCode(body map[string]any) string {
	if e, ok := body["error"].(map[string]any); ok {
		code, _ := e["code"].(string)
		return code
	}
	return ""
}

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	resp, body := api.request(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":        "reg@example.com",
		"password":     "SecurePass123!",
		"display_name": "Reg User",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	user := body["user"].(map[string]any)
	assert.Equal(t, "reg@example.com", user["email"])
	assert.Equal(t, "pending_verification", user["status"])

	t.Run("duplicate email", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/auth/register", "", map[string]any{
			"email":    "reg@example.com",
			"password": "SecurePass123!",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "duplicate_email", errorCode(body))
	})

	t.Run("weak password lists fields", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/auth/register", "", map[string]any{
			"email":    "weak@example.com",
			"password": "nope",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_input", errorCode(body))
		errObj := body["error"].(map[string]any)
		assert.Contains(t, errObj["fields"], "password")
	})

	t.Run("malformed json", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/auth/register", bytes.NewBufferString("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedActive(t, "login@example.com", "Password1!")

	t.Run("success", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "login@example.com",
			"password": "Password1!",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["requires_mfa"])
		assert.Equal(t, "bearer", body["token_type"])
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "login@example.com",
			"password": "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_credentials", errorCode(body))
	})
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedActive(t, "rt@example.com", "Password1!")

	_, login := api.request(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "rt@example.com",
		"password": "Password1!",
	})
	refreshToken := login["refresh_token"].(string)

	resp, rotated := api.request(t, http.MethodPost, "/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, refreshToken, rotated["refresh_token"])

	t.Run("replay is rejected", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/auth/refresh", "", map[string]any{
			"refresh_token": refreshToken,
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_refresh", errorCode(body))
	})

	t.Run("logout kills the session", func(t *testing.T) {
		current := rotated["refresh_token"].(string)
		resp, _ := api.request(t, http.MethodPost, "/auth/logout", "", map[string]any{
			"refresh_token": current,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := api.request(t, http.MethodPost, "/auth/refresh", "", map[string]any{
			"refresh_token": current,
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_refresh", errorCode(body))
	})
}

func TestBearerMiddleware(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedActive(t, "bearer@example.com", "Password1!")

	t.Run("missing token", func(t *testing.T) {
		resp, body := api.request(t, http.MethodGet, "/profile", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "token_invalid", errorCode(body))
	})

	t.Run("garbage token", func(t *testing.T) {
		resp, _ := api.request(t, http.MethodGet, "/profile", "garbage", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		_, login := api.request(t, http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "bearer@example.com",
			"password": "Password1!",
		})
		access := login["access_token"].(string)

		resp, profile := api.request(t, http.MethodGet, "/profile", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "bearer@example.com", profile["email"])
	})
}

func TestTOTPEndpoints(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedActive(t, "totp-api@example.com", "Password1!")

	_, login := api.request(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "totp-api@example.com",
		"password": "Password1!",
	})
	access := login["access_token"].(string)

	resp, setup := api.request(t, http.MethodPost, "/mfa/totp/setup", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, setup["secret"])
	assert.NotEmpty(t, setup["provisioning_uri"])
	assert.Len(t, setup["backup_codes"], 10)

	t.Run("activation with a wrong code", func(t *testing.T) {
		resp, body := api.request(t, http.MethodPost, "/mfa/totp/activate", access, map[string]any{
			"code": "000000",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_mfa", errorCode(body))
	})

	t.Run("status reflects pending enrollment", func(t *testing.T) {
		resp, status := api.request(t, http.MethodGet, "/mfa/status", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, status["totp_enabled"])
		assert.Equal(t, false, status["mfa_required"])
	})
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedActive(t, "sess-api@example.com", "Password1!")

	_, login := api.request(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "sess-api@example.com",
		"password": "Password1!",
	})
	access := login["access_token"].(string)

	resp, body := api.request(t, http.MethodGet, "/sessions", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 1)

	sessionID := sessions[0].(map[string]any)["id"].(string)
	resp, _ = api.request(t, http.MethodDelete, "/sessions/"+sessionID, access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = api.request(t, http.MethodGet, "/sessions", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["sessions"])
}

// Forgot-password always answers positively, valid email or not.
func TestForgotPasswordNoEnumeration(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedActive(t, "enum@example.com", "Password1!")

	for _, email := range []string{"enum@example.com", "ghost@example.com"} {
		resp, body := api.request(t, http.MethodPost, "/auth/forgot-password", "", map[string]any{
			"email": email,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["sent"])
	}
}
