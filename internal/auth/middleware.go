package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kuitang/gisportal/internal/obs"
)

type contextKey string

const userKey contextKey = "user"

// LoginPath is the route of the login page.
const LoginPath = "/login/"

// Middleware provides authentication middleware for HTTP handlers.
type Middleware struct {
	sessions *SessionService
	users    *UserService
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(sessions *SessionService, users *UserService) *Middleware {
	return &Middleware{
		sessions: sessions,
		users:    users,
	}
}

// OptionalAuth adds the signed-in user to the context when the session is valid.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := m.resolve(r); user != nil {
			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = obs.WithUserID(ctx, user.ID)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthWithRedirect sends anonymous visitors to the login page.
func (m *Middleware) RequireAuthWithRedirect(next http.Handler) http.Handler {
	return m.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(r.Context()) {
			target := LoginPath + "?return_to=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (m *Middleware) resolve(r *http.Request) *User {
	sessionID, err := GetFromRequest(r)
	if err != nil {
		return nil
	}
	userID, err := m.sessions.Validate(r.Context(), sessionID)
	if err != nil {
		return nil
	}
	user, err := m.users.GetByID(r.Context(), userID)
	if err != nil {
		obs.From(r.Context()).Warn("auth_session_user_missing", "pkg", "auth", "user_id", userID, "error", err)
		return nil
	}
	return user
}

// GetUser returns the signed-in user, or nil.
func GetUser(ctx context.Context) *User {
	user, _ := ctx.Value(userKey).(*User)
	return user
}

// IsAuthenticated checks if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUser(ctx) != nil
}
