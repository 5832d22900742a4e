package web

import (
	"html/template"
	"net/http"
	"time"

	"github.com/kuitang/gisportal/internal/auth"
)

// StaticPageData fills pages/static.html.
type StaticPageData struct {
	PageData
	Content template.HTML
	Updated time.Time
}

// staticPage is a markdown document under content/ served at Path.
type staticPage struct {
	Path  string
	Slug  string
	Title string
}

var staticPages = []staticPage{
	{Path: "/about/", Slug: "about", Title: "About"},
}

// StaticHandler serves markdown-backed informational pages.
type StaticHandler struct {
	renderer *Renderer
	root     *Root
	started  time.Time
}

// NewStaticHandler creates a new static page handler.
func NewStaticHandler(renderer *Renderer, root *Root) *StaticHandler {
	return &StaticHandler{renderer: renderer, root: root, started: time.Now()}
}

// RegisterRoutes registers static page routes on the given mux.
func (h *StaticHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	for _, p := range staticPages {
		mux.Handle("GET "+p.Path, authMiddleware.OptionalAuth(h.servePage(p)))
	}
}

func (h *StaticHandler) servePage(p staticPage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := h.renderer.Content(p.Slug)
		if !ok {
			http.NotFound(w, r)
			return
		}
		data := StaticPageData{
			PageData: PageData{Title: p.Title, User: auth.GetUser(r.Context())},
			Content:  content,
			Updated:  h.started,
		}
		h.root.Mount(w, r, http.StatusOK, appTree("StaticPage", h.renderer.Page("static.html", data)))
	})
}
