package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"liftlog/internal/domain"
	"liftlog/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLogin    = "login.html"
	pageRegister = "register.html"
	pageWorkouts = "workouts.html"
	pageAccount  = "account.html"
	pageError    = "error.html"
)

// PageData is the data passed to every page template.
type PageData struct {
	Title     string
	Error     string
	Notice    string
	User      *domain.User
	CSRFToken string

	// Form values echoed back after a failed submission.
	Username string
	Email    string

	Sessions         []*domain.Session
	SessionExpiresAt time.Time
	StatusCode       int
}

// Views holds one parsed template set per page, each sharing the layout.
type Views struct {
	pages map[string]*template.Template
}

func NewViews() (*Views, error) {
	funcs := template.FuncMap{
		"date": func(t time.Time) string {
			return t.UTC().Format("2 Jan 2006 15:04 MST")
		},
	}

	v := &Views{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageLogin, pageRegister, pageWorkouts, pageAccount, pageError} {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		v.pages[page] = tmpl
	}
	return v, nil
}

// Render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (v *Views) Render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	tmpl, ok := v.pages[page]
	if !ok {
		observability.FromContext(r.Context()).Error("unknown template", "page", page)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		observability.FromContext(r.Context()).Error("failed to render template", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// RenderError renders the error page with a user-facing message.
func (v *Views) RenderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	v.Render(w, r, status, pageError, PageData{
		Title:      http.StatusText(status),
		Error:      message,
		StatusCode: status,
	})
}
