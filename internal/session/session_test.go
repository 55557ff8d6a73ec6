package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/idm-dashboard/internal/storage"
)

// failingStore fails every call with err
type failingStore struct {
	err error
}

func (f failingStore) Get(context.Context, string) (string, error) { return "", f.err }

func (f failingStore) Set(context.Context, string, string, time.Duration) error { return f.err }

func (f failingStore) Delete(context.Context, string) error { return f.err }

func (f failingStore) CheckHealth(context.Context) error { return f.err }

func TestSession_Token(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sess := New(store, "profile-a")

	if _, ok := sess.Token(ctx); ok {
		t.Fatal("Token() reported a token on an empty profile")
	}

	sess.SetToken(ctx, "abc")
	if got, ok := sess.Token(ctx); !ok || got != "abc" {
		t.Errorf("Token() = %q, %v, want %q, true", got, ok, "abc")
	}

	other := New(store, "profile-b")
	if _, ok := other.Token(ctx); ok {
		t.Error("Token() leaked across profiles")
	}

	sess.ClearToken(ctx)
	if _, ok := sess.Token(ctx); ok {
		t.Error("Token() still present after ClearToken()")
	}
}

func TestSession_NoStorage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		sess *Session
	}{
		{name: "nil_store", sess: New(nil, "profile")},
		{name: "empty_profile", sess: New(storage.NewMemoryStore(), "")},
		{name: "failing_store", sess: New(failingStore{err: errors.New("connection refused")}, "profile")},
		{name: "outside_middleware", sess: FromContext(ctx)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sess.SetToken(ctx, "abc")
			if _, ok := tt.sess.Token(ctx); ok {
				t.Error("Token() returned a value without storage")
			}
			tt.sess.ClearToken(ctx)
		})
	}
}

func TestSession_OAuthState(t *testing.T) {
	ctx := context.Background()
	sess := New(storage.NewMemoryStore(), "profile")

	if _, _, err := sess.TakeOAuthState(ctx); !errors.Is(err, ErrNoState) {
		t.Fatalf("TakeOAuthState() error = %v, want %v", err, ErrNoState)
	}

	if err := sess.SaveOAuthState(ctx, "state-1", "verifier-1"); err != nil {
		t.Fatalf("SaveOAuthState() error = %v", err)
	}
	state, verifier, err := sess.TakeOAuthState(ctx)
	if err != nil {
		t.Fatalf("TakeOAuthState() error = %v", err)
	}
	if state != "state-1" || verifier != "verifier-1" {
		t.Errorf("TakeOAuthState() = %q, %q, want state-1, verifier-1", state, verifier)
	}

	// State is single use
	if _, _, err := sess.TakeOAuthState(ctx); !errors.Is(err, ErrNoState) {
		t.Errorf("second TakeOAuthState() error = %v, want %v", err, ErrNoState)
	}

	// A new request without PKCE drops the stale verifier
	_ = sess.SaveOAuthState(ctx, "state-2", "verifier-2")
	_ = sess.SaveOAuthState(ctx, "state-3", "")
	state, verifier, _ = sess.TakeOAuthState(ctx)
	if state != "state-3" || verifier != "" {
		t.Errorf("TakeOAuthState() = %q, %q, want state-3 and no verifier", state, verifier)
	}
}

func TestSession_CookieJar(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sess := New(store, "profile")
	backend, _ := url.Parse("http://backend.local/api/auth/refresh")

	sess.CookieJar(ctx).SetCookies(backend, []*http.Cookie{
		{Name: "refreshToken", Value: "r1", MaxAge: 3600},
		{Name: "lang", Value: "en"},
	})

	// A fresh jar over the same profile sees the persisted cookies
	got := sess.CookieJar(ctx).Cookies(backend)
	want := []*http.Cookie{
		{Name: "lang", Value: "en"},
		{Name: "refreshToken", Value: "r1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Cookies() mismatch (-want +got):\n%s", diff)
	}

	// Rotation and deletion
	sess.CookieJar(ctx).SetCookies(backend, []*http.Cookie{
		{Name: "refreshToken", Value: "r2"},
		{Name: "lang", MaxAge: -1},
	})
	got = sess.CookieJar(ctx).Cookies(backend)
	want = []*http.Cookie{{Name: "refreshToken", Value: "r2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Cookies() after rotation mismatch (-want +got):\n%s", diff)
	}

	other, _ := url.Parse("http://other.local/")
	if cookies := sess.CookieJar(ctx).Cookies(other); len(cookies) != 0 {
		t.Errorf("Cookies() for another host = %v, want none", cookies)
	}
}

func TestManager_Middleware(t *testing.T) {
	store := storage.NewMemoryStore()
	manager := NewManager(ManagerConfig{Store: store})

	var seen *Session
	handler := manager.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	t.Run("issues_profile", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := w.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != DefaultCookieName {
			t.Fatalf("cookies = %v, want one %s cookie", cookies, DefaultCookieName)
		}
		if seen == nil || seen.Profile() != cookies[0].Value {
			t.Errorf("session profile does not match issued cookie")
		}
		if !cookies[0].HttpOnly {
			t.Error("profile cookie must be HttpOnly")
		}
	})

	t.Run("reuses_profile", func(t *testing.T) {
		const profile = "7d444840-9dc0-11d1-b245-5ffdce74fad2"
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: profile})
		handler.ServeHTTP(httptest.NewRecorder(), r)

		if seen.Profile() != profile {
			t.Errorf("Profile() = %q, want %q", seen.Profile(), profile)
		}
	})

	t.Run("replaces_malformed_profile", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "../../etc"})
		handler.ServeHTTP(httptest.NewRecorder(), r)

		if seen.Profile() == "../../etc" || seen.Profile() == "" {
			t.Errorf("Profile() = %q, want a freshly issued id", seen.Profile())
		}
	})
}
