package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"road-severity/session"
	"road-severity/severity"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is the data every template receives.
type Page struct {
	Title    string
	Username string
	Flash    *session.Flash
	Data     any
}

// PredictForm backs the predict page, both fresh and re-rendered after a rejected submit.
type PredictForm struct {
	Fields  []string
	Options map[string][]string
	Values  map[string]string
	Error   string
	Field   string
}

type Result struct {
	Decision severity.Decision
	Advice   string
}

type History struct {
	Entries []HistoryRow
	Limit   int
}

type HistoryRow struct {
	When       string
	Inputs     severity.TripRecord
	Prediction severity.Severity
}

// Renderer holds one parsed template set per page, each joined with the layout.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"label":       fieldLabel,
	"isNumeric":   severity.IsNumericField,
	"severityCSS": severityClass,
}

func NewRenderer() (*Renderer, error) {
	return newRenderer(templateFS)
}

func newRenderer(fsys fs.FS) (*Renderer, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing layout: %w", err)
	}

	names, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template)
	for _, path := range names {
		name := strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".html")
		if name == "layout" {
			continue
		}
		clone, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(fsys, path); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
		pages[name] = clone
	}
	return &Renderer{pages: pages}, nil
}

// Render writes page name with status 200.
func (r *Renderer) Render(w http.ResponseWriter, name string, page Page) error {
	return r.RenderStatus(w, http.StatusOK, name, page)
}

func (r *Renderer) RenderStatus(w http.ResponseWriter, status int, name string, page Page) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	// Buffer so a template failure does not leave a half-written 200.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		return fmt.Errorf("error rendering %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func fieldLabel(field string) string {
	words := strings.Split(field, "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func severityClass(s severity.Severity) string {
	return strings.ToLower(s.String())
}
