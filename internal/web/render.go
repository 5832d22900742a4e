// Package web serves the portal pages, each mounted under the host document's
// mount point inside a fresh error boundary.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/gisportal/internal/crash"
)

//go:embed templates
var embeddedTemplates embed.FS

// Template layout inside the templates FS.
const (
	HostTemplate = "index.html"
	pagesGlob    = "pages/*.html"
	contentGlob  = "content/*.md"
)

// TemplatesFS returns the embedded templates, or dir when set (for local editing).
func TemplatesFS(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embeddedTemplates, "templates")
	}
	// os.Root keeps template reads inside dir.
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open templates directory: %w", err)
	}
	return root.FS(), nil
}

// HostData fills the host document.
type HostData struct {
	Title      string
	Sentry     crash.BrowserConfig
	VitalsPath string
}

// Renderer holds the parsed host document, page fragments and markdown content.
type Renderer struct {
	host    *template.Template
	pages   map[string]*template.Template
	content map[string]template.HTML
	funcMap template.FuncMap
}

// NewRenderer parses index.html, every pages/*.html fragment and every content/*.md file.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	r := &Renderer{
		pages:   make(map[string]*template.Template),
		content: make(map[string]template.HTML),
		funcMap: createFuncMap(),
	}
	if err := r.parseTemplates(fsys); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return r, nil
}

func (r *Renderer) parseTemplates(fsys fs.FS) error {
	host, err := template.New(HostTemplate).Funcs(r.funcMap).ParseFS(fsys, HostTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse host template: %w", err)
	}
	r.host = host

	pages, err := fs.Glob(fsys, pagesGlob)
	if err != nil {
		return err
	}
	for _, p := range pages {
		name := path.Base(p)
		tmpl, err := template.New(name).Funcs(r.funcMap).ParseFS(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", p, err)
		}
		r.pages[name] = tmpl
	}
	if len(r.pages) == 0 {
		return fmt.Errorf("no page templates found")
	}

	docs, err := fs.Glob(fsys, contentGlob)
	if err != nil {
		return err
	}
	for _, p := range docs {
		md, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read content %s: %w", p, err)
		}
		r.content[strings.TrimSuffix(path.Base(p), ".md")] = template.HTML(renderMarkdownContent(md))
	}
	return nil
}

// RenderHost writes the host document.
func (r *Renderer) RenderHost(w io.Writer, data HostData) error {
	if err := r.host.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute host template: %w", err)
	}
	return nil
}

// Page returns a component that executes the named page fragment.
// A missing template or execution error is returned from Render.
func (r *Renderer) Page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		tmpl, ok := r.pages[name]
		if !ok {
			return fmt.Errorf("template %q not found", name)
		}
		if err := tmpl.Execute(w, data); err != nil {
			return fmt.Errorf("failed to execute template %q: %w", name, err)
		}
		return nil
	})
}

// Content returns rendered markdown content by slug.
func (r *Renderer) Content(slug string) (template.HTML, bool) {
	c, ok := r.content[slug]
	return c, ok
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatTime": formatTime,
		"truncate":   truncate,
		"markdown":   renderMarkdown,
	}
}

// formatTime formats a time.Time as a human-readable date string.
// Example: "Jan 2, 2006"
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// truncate truncates a string to n characters, adding "..." if truncated.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func renderMarkdown(s string) template.HTML {
	return template.HTML(renderMarkdownContent([]byte(s)))
}

// renderMarkdownContent converts markdown to sanitized HTML.
func renderMarkdownContent(md []byte) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	htmlContent := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	return policy.SanitizeBytes(htmlContent)
}
