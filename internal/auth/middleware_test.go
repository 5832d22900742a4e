package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/gisportal/internal/obs"
)

func newTestMiddleware(t *testing.T) (*Middleware, *SessionService, *User) {
	t.Helper()
	store := openTestDB(t)
	users := NewUserService(store, PlaintextHasher{})
	user, err := users.EnsureUser(context.Background(), "admin@example.com", "admin")
	require.NoError(t, err)
	sessions := NewSessionService(store, time.Hour, false)
	return NewMiddleware(sessions, users), sessions, user
}

func TestOptionalAuth_AttachesUser(t *testing.T) {
	mw, sessions, user := newTestMiddleware(t)
	id, err := sessions.Create(context.Background(), user.ID)
	require.NoError(t, err)

	var seen *User
	var corr obs.Correlation
	h := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		corr = obs.CorrelationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	require.Equal(t, user.Email, seen.Email)
	require.Equal(t, user.ID, corr.UserID)
}

func TestOptionalAuth_AnonymousPassesThrough(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)
	called := false
	h := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.False(t, IsAuthenticated(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, called)
}

func TestRequireAuthWithRedirect(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)
	h := mw.RequireAuthWithRedirect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("anonymous request reached protected handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/maps/?layer=1", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login/?return_to=%2Fmaps%2F%3Flayer%3D1", rec.Header().Get("Location"))
}
