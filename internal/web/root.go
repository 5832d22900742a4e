package web

import (
	"bytes"
	"net/http"

	"github.com/a-h/templ"

	"github.com/kuitang/gisportal/internal/crash"
	"github.com/kuitang/gisportal/internal/errs"
	"github.com/kuitang/gisportal/internal/obs"
	"github.com/kuitang/gisportal/internal/ui"
)

// LoadHostDocument renders the host page and locates its mount point.
// A missing mount point is a startup failure.
func LoadHostDocument(r *Renderer, data HostData) (*ui.Document, error) {
	var buf bytes.Buffer
	if err := r.RenderHost(&buf, data); err != nil {
		return nil, err
	}
	return ui.ParseDocument(&buf, ui.DefaultMountID)
}

// Root mounts one page tree per request, wrapped in a new error boundary.
type Root struct {
	doc      *ui.Document
	reporter crash.Reporter
}

// NewRoot creates the root mounter. reporter is the process reporter from crash.Init.
func NewRoot(doc *ui.Document, reporter crash.Reporter) *Root {
	if reporter == nil {
		reporter = crash.Nop{}
	}
	return &Root{doc: doc, reporter: reporter}
}

// Mount writes the host document with tree inside the mount point.
func (rt *Root) Mount(w http.ResponseWriter, r *http.Request, status int, tree templ.Component) {
	boundary := ui.NewBoundary(tree, rt.reporter)

	var buf bytes.Buffer
	if err := rt.doc.Mount(r.Context(), &buf, boundary); err != nil {
		obs.From(r.Context()).Error("mount_failed", "pkg", "web", "error", err)
		errs.WriteHTTP(w, errs.Wrap(errs.Internal, "failed to render page", err))
		return
	}
	if d, ok := boundary.State().(ui.Degraded); ok {
		obs.From(r.Context()).Warn("render_failure",
			"pkg", "web",
			"path", r.URL.Path,
			"error", d.Err.Error(),
			"component_stack", d.Err.ComponentStack,
			"panic", d.Err.Panicked(),
		)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// appTree is the top-level component tree: the page inside the App shell.
func appTree(page string, content templ.Component) templ.Component {
	return ui.Named("App", ui.Named(page, content))
}
