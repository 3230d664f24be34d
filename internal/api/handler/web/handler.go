// internal/api/handler/web/handler.go
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/view"
)

//go:embed templates/*
var templateFS embed.FS

// pages lists the page templates (excluding layout.html)
var pages = []string{"dashboard.html"}

// StateSource provides the latest merged state
type StateSource interface {
	Get() (view.State, bool)
}

// Selector changes the active symbol
type Selector interface {
	Select(symbol string) error
}

// Toggler flips pause/resume on the bot
type Toggler interface {
	Toggle(ctx context.Context) (core.BotStatus, error)
}

// Deps are the data providers behind the pages
type Deps struct {
	State    StateSource
	Selector Selector
	Toggler  Toggler
	Chart    *chart.SVG
	// Location renders timestamps. Defaults to time.Local.
	Location *time.Location
	// RefreshSeconds drives the page's meta refresh.
	RefreshSeconds int
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// Each instance contains layout.html + the specific page template
	pageTemplates map[string]*template.Template
	deps          Deps
}

// NewHandler creates a new web handler with templates loaded from the given directory.
// If templatesDir is empty, it falls back to embedded templates.
func NewHandler(templatesDir string, deps Deps) (*Handler, error) {
	if templatesDir == "" {
		return NewHandlerWithFS(TemplateFS(), deps)
	}

	pageTemplates := make(map[string]*template.Template)
	for _, page := range pages {
		layoutPath := filepath.Join(templatesDir, "layout.html")
		pagePath := filepath.Join(templatesDir, page)
		tmpl, err := template.ParseFiles(layoutPath, pagePath)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	return newHandler(pageTemplates, deps), nil
}

// NewHandlerWithFS creates a new web handler using a custom filesystem.
func NewHandlerWithFS(fsys fs.FS, deps Deps) (*Handler, error) {
	pageTemplates := make(map[string]*template.Template)
	for _, page := range pages {
		tmpl, err := template.ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s from fs: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	return newHandler(pageTemplates, deps), nil
}

func newHandler(pageTemplates map[string]*template.Template, deps Deps) *Handler {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Chart == nil {
		deps.Chart = chart.NewSVG()
	}
	if deps.RefreshSeconds <= 0 {
		deps.RefreshSeconds = 3
	}
	return &Handler{pageTemplates: pageTemplates, deps: deps}
}

// render executes the specified page template with the given data
func (h *Handler) render(w http.ResponseWriter, page string, data any) {
	tmpl, ok := h.pageTemplates[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// TemplateFS returns the embedded template filesystem for external use.
func TemplateFS() fs.FS {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return templateFS
	}
	return subFS
}
