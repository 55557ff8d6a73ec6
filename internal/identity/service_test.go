package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/idm-dashboard/internal/apiclient"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/storage"
)

// fakeAPI is a minimal identity backend. Access tokens are valid while
// listed in tokens; the refresh cookie "rt" mints a new one.
type fakeAPI struct {
	mu      sync.Mutex
	tokens  map[string]bool
	calls   []string
	bodies  map[string]map[string]any
	failing map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tokens:  map[string]bool{},
		bodies:  map[string]map[string]any{},
		failing: map[string]int{},
	}
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	auth := r.Header.Get("Authorization")
	return len(auth) > len("Bearer ") && f.tokens[auth[len("Bearer "):]]
}

func (f *fakeAPI) expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.calls = append(f.calls, key)
		if r.Body != nil {
			var body map[string]any
			if json.NewDecoder(r.Body).Decode(&body) == nil {
				f.bodies[key] = body
			}
		}
		status := f.failing[key]
		f.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"message": "backend says no"})
			return
		}

		switch key {
		case "POST /api/auth/login":
			f.mu.Lock()
			f.tokens["t1"] = true
			f.mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: "rt", Value: "refresh-1", Path: "/"})
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "t1"})
			return
		case "POST /api/auth/refresh":
			if c, err := r.Cookie("rt"); err != nil || c.Value != "refresh-1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
				return
			}
			f.mu.Lock()
			f.tokens["t2"] = true
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "t2"})
			return
		}

		if !f.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}

		switch key {
		case "GET /api/auth/me":
			writeJSON(w, http.StatusOK, User{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com", Roles: []string{"user"}})
		case "PUT /api/auth/profile":
			writeJSON(w, http.StatusOK, User{ID: "u1", Name: "Ada King", Email: "ada@example.com"})
		case "GET /api/auth/sessions":
			writeJSON(w, http.StatusOK, map[string]any{"sessions": []Session{{ID: "s1", IsCurrent: true}, {ID: "s2"}}})
		case "GET /api/keys":
			writeJSON(w, http.StatusOK, map[string]any{"keys": []APIKey{{ID: "k1", Name: "ci", KeyPrefix: "idm_ab12"}}})
		case "POST /api/keys":
			writeJSON(w, http.StatusCreated, map[string]string{"apiKey": "idm_ab12secret"})
		case "POST /api/clients/register":
			writeJSON(w, http.StatusCreated, map[string]any{"client": RegisteredClient{Name: "app", ClientID: "cid", ClientSecret: "csecret"}})
		case "POST /api/2fa/generate":
			writeJSON(w, http.StatusOK, TwoFactorSetup{QRCodeURL: "data:image/png;base64,AA==", Secret: "JBSWY3DP"})
		case "GET /api/auth/activity":
			writeJSON(w, http.StatusOK, map[string]any{"activity": []ActivityEvent{{ID: "a1", Action: "login"}}})
		default:
			writeJSON(w, http.StatusOK, map[string]string{})
		}
	})
	return mux
}

func newTestService(t *testing.T) (*Service, *fakeAPI, *session.Session) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	client, err := apiclient.New(srv.URL + "/api")
	require.NoError(t, err)
	return NewService(client), api, session.New(storage.NewMemoryStore(), "profile")
}

func TestService_LoginAndRefresh(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)

	token, err := svc.Login(ctx, sess, Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "t1", token)

	user, err := svc.SignIn(ctx, sess, token)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.Name)

	// The access token expires; the refresh cookie set at login renews it
	api.expire("t1")
	user, err = svc.Me(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	stored, ok := sess.Token(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t2", stored)
}

func TestService_LoginBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)
	api.failing["POST /api/auth/login"] = http.StatusUnauthorized

	_, err := svc.Login(ctx, sess, Credentials{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "backend says no", apiclient.Message(err, "Login failed."))
	assert.NotContains(t, api.calls, "POST /api/auth/refresh")
}

func TestService_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("signed_out", func(t *testing.T) {
		svc, api, sess := newTestService(t)
		_, err := svc.Restore(ctx, sess)
		assert.ErrorIs(t, err, ErrSignedOut)
		assert.Empty(t, api.calls)
	})

	t.Run("rejected_token_cleared", func(t *testing.T) {
		svc, _, sess := newTestService(t)
		sess.SetToken(ctx, "stale")

		_, err := svc.Restore(ctx, sess)
		assert.ErrorIs(t, err, apiclient.ErrSessionExpired)
		_, ok := sess.Token(ctx)
		assert.False(t, ok)
	})

	t.Run("valid_token", func(t *testing.T) {
		svc, api, sess := newTestService(t)
		api.tokens["t9"] = true
		sess.SetToken(ctx, "t9")

		user, err := svc.Restore(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", user.Email)
	})
}

func TestService_LogoutAlwaysClears(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)
	api.tokens["t9"] = true
	api.failing["POST /api/auth/logout"] = http.StatusInternalServerError
	sess.SetToken(ctx, "t9")

	err := svc.Logout(ctx, sess)
	assert.Error(t, err)
	_, ok := sess.Token(ctx)
	assert.False(t, ok, "token should be cleared even when logout fails")
}

func TestService_SignInKeepsTokenOnFailure(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)
	api.tokens["t9"] = true
	api.failing["GET /api/auth/me"] = http.StatusInternalServerError

	_, err := svc.SignIn(ctx, sess, "t9")
	require.Error(t, err)
	token, ok := sess.Token(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t9", token)
}

func TestService_AccountOperations(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)
	api.tokens["t9"] = true
	sess.SetToken(ctx, "t9")

	user, err := svc.UpdateProfile(ctx, sess, ProfileUpdate{Name: "Ada King", Gender: DefaultGender})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", user.Name)
	assert.Equal(t, map[string]any{"name": "Ada King", "gender": DefaultGender}, api.bodies["PUT /api/auth/profile"])

	require.NoError(t, svc.ChangePassword(ctx, sess, "old", "new-password"))
	assert.Equal(t, map[string]any{"currentPassword": "old", "newPassword": "new-password"}, api.bodies["POST /api/auth/change-password"])

	sessions, err := svc.Sessions(ctx, sess)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	require.NoError(t, svc.RevokeSession(ctx, sess, "s2"))
	require.NoError(t, svc.RevokeAllSessions(ctx, sess))

	setup, err := svc.GenerateTwoFactor(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DP", setup.Secret)
	require.NoError(t, svc.VerifyTwoFactor(ctx, sess, "123456"))
	assert.Equal(t, map[string]any{"token": "123456"}, api.bodies["POST /api/2fa/verify"])
	require.NoError(t, svc.DisableTwoFactor(ctx, sess))

	events, err := svc.Activity(ctx, sess)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Successful Login", events[0].Label())

	assert.Contains(t, api.calls, "DELETE /api/auth/sessions/s2")
	assert.Contains(t, api.calls, "POST /api/auth/sessions/revoke-all")
	assert.Contains(t, api.calls, "POST /api/2fa/disable")
}

func TestService_DeveloperOperations(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)
	api.tokens["t9"] = true
	sess.SetToken(ctx, "t9")

	keys, err := svc.APIKeys(ctx, sess)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "idm_ab12", keys[0].KeyPrefix)

	secret, err := svc.CreateAPIKey(ctx, sess, "ci")
	require.NoError(t, err)
	assert.Equal(t, "idm_ab12secret", secret)
	require.NoError(t, svc.RevokeAPIKey(ctx, sess, "k1"))
	assert.Contains(t, api.calls, "DELETE /api/keys/k1")

	client, err := svc.RegisterClient(ctx, sess, "app", []string{"http://localhost:3000/callback"})
	require.NoError(t, err)
	assert.Equal(t, "cid", client.ClientID)
	assert.Equal(t, map[string]any{
		"name":         "app",
		"redirectUris": []any{"http://localhost:3000/callback"},
	}, api.bodies["POST /api/clients/register"])
}

func TestService_MeWithToken(t *testing.T) {
	ctx := context.Background()
	svc, api, sess := newTestService(t)
	api.tokens["issued"] = true

	user, err := svc.MeWithToken(ctx, "issued")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	// The stored session is untouched
	_, ok := sess.Token(ctx)
	assert.False(t, ok)

	_, err = svc.MeWithToken(ctx, "unknown")
	var apiErr *apiclient.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.NotContains(t, api.calls, "POST /api/auth/refresh")
}
