// Package handler turns HTTP requests into service calls and service
// results into pages, redirects or JSON.
//
// Handlers parse input and pick a response; they hold no business rules.
// Every failure goes through respondError, which maps the apperror sentinel
// to the redirect (browser routes) or status code (API routes) for it.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/skillbarter/internal/auth"
)

// pages lists the templates parsed at startup. Each is combined with
// base.html into its own set, so every page can define "content".
var pages = []string{
	"home", "category", "skill", "profile", "history",
	"login", "signup", "forgot", "reset", "404",
}

// ImageURLer resolves a stored image reference to a URL a browser can load.
type ImageURLer interface {
	URL(ref string) string
}

// Renderer executes the page templates.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses base.html plus one file per page from dir.
func NewRenderer(dir string, images ImageURLer, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"imageURL": images.URL,
		"stars": func(value, count int) string {
			if count == 0 {
				return "unrated"
			}
			return fmt.Sprintf("%.1f (%d)", float64(value)/float64(count), count)
		},
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pages)), logger: logger}
	for _, name := range pages {
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFiles(
			filepath.Join(dir, "base.html"),
			filepath.Join(dir, name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// pageData is what every template receives.
type pageData struct {
	Title   string
	Session *auth.Session
	Error   string
	Data    any
}

// render executes page into a buffer first, so a template error becomes a
// clean 500 rather than half a page.
func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	pd := pageData{Title: title, Error: r.URL.Query().Get("error"), Data: data}
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		pd.Session = &sess
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", pd); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
