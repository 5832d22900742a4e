package web

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/kuitang/gisportal/internal/obs"
)

// RecoverPanic converts handler panics that escape the page boundary into HTTP 500 responses.
func RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				obs.From(r.Context()).Error("panic_recovered",
					"pkg", "web",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", recovered,
					"stack", strings.TrimSpace(string(debug.Stack())),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Chain wraps h in the standard middleware stack, outermost first.
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
