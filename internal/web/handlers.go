package web

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/kuitang/gisportal/internal/auth"
	"github.com/kuitang/gisportal/internal/errs"
	"github.com/kuitang/gisportal/internal/logutil"
	"github.com/kuitang/gisportal/internal/obs"
	"github.com/kuitang/gisportal/internal/ratelimit"
	"github.com/kuitang/gisportal/internal/ui"
	"github.com/kuitang/gisportal/internal/urlutil"
	"github.com/kuitang/gisportal/internal/vitals"
)

// Routes
const (
	VitalsPath  = "/vitals/"
	LogoutPath  = "/logout/"
	AccountPath = "/account/"
	CrashPath   = "/debug/crash/"
)

// SiteTitle is the banner headline and document title.
const SiteTitle = "Cloud Native GIS"

// PageData contains data common to all pages.
type PageData struct {
	Title string
	User  *auth.User
}

// HomePageData fills pages/home.html.
type HomePageData struct {
	PageData
	Intro template.HTML
}

// LoginPageData fills pages/login.html.
type LoginPageData struct {
	PageData
	Email    string
	ReturnTo string
	Error    string
}

// Deps are the collaborators of WebHandler.
type Deps struct {
	Renderer *Renderer
	Root     *Root
	Users    *auth.UserService
	Sessions *auth.SessionService
	Auth     *auth.Middleware
	Limiter  *ratelimit.RateLimiter
	// BaseURL is the site origin used when a request carries no usable Host.
	BaseURL string
	// Tunnel relays crash envelopes at TunnelPath. Nil leaves the route unregistered.
	Tunnel     http.Handler
	TunnelPath string
	// EnableCrashRoute registers CrashPath, a page that always fails to render.
	EnableCrashRoute bool
}

// WebHandler provides HTTP handlers for web UI pages.
type WebHandler struct {
	Deps
}

// NewWebHandler creates a new web handler.
func NewWebHandler(deps Deps) *WebHandler {
	return &WebHandler{Deps: deps}
}

// RegisterRoutes registers all web routes on the given mux.
func (h *WebHandler) RegisterRoutes(mux *http.ServeMux) {
	limited := func(prefix string, next http.Handler) http.Handler {
		if h.Limiter == nil {
			return next
		}
		return ratelimit.Middleware(h.Limiter, func(r *http.Request) string {
			return prefix + ratelimit.ClientIP(r)
		})(next)
	}

	mux.Handle("GET /{$}", h.Auth.OptionalAuth(http.HandlerFunc(h.HandleHome)))

	mux.Handle("GET /login", http.RedirectHandler(auth.LoginPath, http.StatusMovedPermanently))
	mux.Handle("GET "+auth.LoginPath, h.Auth.OptionalAuth(http.HandlerFunc(h.HandleLoginPage)))
	mux.Handle("POST "+auth.LoginPath, h.sameOriginOnly(limited("login:", http.HandlerFunc(h.HandleLogin))))
	mux.Handle("POST "+LogoutPath, h.sameOriginOnly(http.HandlerFunc(h.HandleLogout)))
	mux.Handle("GET "+AccountPath, h.Auth.RequireAuthWithRedirect(http.HandlerFunc(h.HandleAccount)))

	static := NewStaticHandler(h.Renderer, h.Root)
	static.RegisterRoutes(mux, h.Auth)

	mux.Handle("POST "+VitalsPath, limited("vitals:", vitals.Handler()))
	if h.Tunnel != nil && h.TunnelPath != "" {
		mux.Handle("POST "+h.TunnelPath, limited("tunnel:", h.Tunnel))
	}
	if h.EnableCrashRoute {
		mux.HandleFunc("GET "+CrashPath, h.HandleCrash)
	}

	mux.HandleFunc("GET /healthz", HandleHealth)
}

// HandleHome handles GET / - the landing page.
func (h *WebHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	intro, _ := h.Renderer.Content("landing")
	data := HomePageData{
		PageData: PageData{Title: SiteTitle, User: auth.GetUser(r.Context())},
		Intro:    intro,
	}
	h.Root.Mount(w, r, http.StatusOK, appTree("HomePage", h.Renderer.Page("home.html", data)))
}

// HandleLoginPage handles GET /login/ - shows the login form.
// Signed-in users go back to the landing page.
func (h *WebHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.IsAuthenticated(r.Context()) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.renderLogin(w, r, http.StatusOK, LoginPageData{
		ReturnTo: r.URL.Query().Get("return_to"),
	})
}

// HandleLogin handles POST /login/ - verifies credentials and starts a session.
func (h *WebHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, LoginPageData{Error: "Invalid form submission"})
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	returnTo := r.PostForm.Get("return_to")
	logger := obs.From(r.Context()).With("pkg", "web")

	if email == "" || password == "" {
		h.renderLogin(w, r, http.StatusBadRequest, LoginPageData{
			Email: email, ReturnTo: returnTo, Error: "E-mail address and password are required",
		})
		return
	}

	user, err := h.Users.VerifyLogin(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logger.Info("login_rejected", "form", logutil.FormatFormForLog(r.PostForm))
			h.renderLogin(w, r, http.StatusUnauthorized, LoginPageData{
				Email: email, ReturnTo: returnTo, Error: "Invalid e-mail address or password",
			})
			return
		}
		logger.Error("login_failed", "error", err)
		h.renderLogin(w, r, http.StatusInternalServerError, LoginPageData{
			Email: email, ReturnTo: returnTo, Error: "Login is unavailable, try again later",
		})
		return
	}

	sessionID, err := h.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		logger.Error("session_create_failed", "user_id", user.ID, "error", err)
		h.renderLogin(w, r, http.StatusInternalServerError, LoginPageData{
			Email: email, ReturnTo: returnTo, Error: "Login is unavailable, try again later",
		})
		return
	}
	h.Sessions.SetCookie(w, sessionID)
	logger.Info("login_succeeded", "user_id", user.ID)

	http.Redirect(w, r, safeReturnTo(returnTo), http.StatusSeeOther)
}

// HandleLogout handles POST /logout/.
func (h *WebHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, err := auth.GetFromRequest(r); err == nil {
		if err := h.Sessions.Delete(r.Context(), sessionID); err != nil {
			obs.From(r.Context()).Warn("session_delete_failed", "pkg", "web", "error", err)
		}
	}
	h.Sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleCrash handles GET /debug/crash/ - a page whose widget panics while
// rendering, used to check the fallback and the reporting path end to end.
func (h *WebHandler) HandleCrash(w http.ResponseWriter, r *http.Request) {
	h.Root.Mount(w, r, http.StatusOK, appTree("CrashPage", ui.Named("BrokenWidget", brokenWidget)))
}

var brokenWidget = templ.ComponentFunc(func(context.Context, io.Writer) error {
	panic(errors.New("deliberate render failure"))
})

// HandleAccount handles GET /account/ - the signed-in user's page. Visitors
// are sent to the login page first and come back here afterwards.
func (h *WebHandler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Account", User: auth.GetUser(r.Context())}
	h.Root.Mount(w, r, http.StatusOK, appTree("AccountPage", h.Renderer.Page("account.html", data)))
}

// HandleHealth handles GET /healthz.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *WebHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data LoginPageData) {
	data.Title = "Login"
	data.ReturnTo = safeReturnTo(data.ReturnTo)
	h.Root.Mount(w, r, status, appTree("LoginPage", h.Renderer.Page("login.html", data)))
}

// safeReturnTo only allows local paths other than the login page.
func safeReturnTo(raw string) string {
	target, ok := urlutil.LocalPath(raw)
	if !ok || strings.HasPrefix(target, auth.LoginPath) {
		return "/"
	}
	return target
}

// sameOriginOnly rejects cross-site form posts.
func (h *WebHandler) sameOriginOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !urlutil.SameOrigin(r, h.BaseURL) {
			obs.From(r.Context()).Warn("cross_origin_post_rejected", "pkg", "web",
				"path", r.URL.Path, "headers", logutil.FormatHeadersForLog(r.Header))
			errs.WriteHTTP(w, errs.New(errs.PermissionDenied, "cross-origin request rejected"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
