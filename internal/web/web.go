// Package web serves the browser pages: the submission form, the dashboard
// and the login-protected status override.
package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joescharf/campusreport/internal/auth"
	"github.com/joescharf/campusreport/internal/issues"
	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/stats"
	"github.com/joescharf/campusreport/internal/store"
)

// SessionCookie is the name of the cookie carrying the login session token.
const SessionCookie = "campusreport_session"

// Options configures page chrome.
type Options struct {
	Title  string
	MapURL string
}

// Server renders the HTML pages.
type Server struct {
	issues *issues.Service
	auth   *auth.Service
	opts   Options
	tmpl   map[string]*template.Template
	static http.Handler
}

// NewServer parses the embedded templates and returns a page server.
func NewServer(is *issues.Service, as *auth.Service, opts Options) (*Server, error) {
	if opts.Title == "" {
		opts.Title = "Campus Reporting Tool"
	}
	tmpl, err := parseTemplates(funcMap)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := staticHandler()
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}
	return &Server{issues: is, auth: as, opts: opts, tmpl: tmpl, static: static}, nil
}

// Router returns an http.Handler for the page routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register adds the page routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /static/", s.static)

	mux.HandleFunc("GET /{$}", s.showForm)
	mux.HandleFunc("POST /submit", s.submit)
	mux.HandleFunc("GET /dashboard", s.dashboard)

	mux.HandleFunc("GET /login", s.showLogin)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /logout", s.logout)

	mux.HandleFunc("GET /override", s.requireSession(s.showOverride))
	mux.HandleFunc("POST /override/{id}", s.requireSession(s.override))
}

var funcMap = template.FuncMap{
	"has": func(list []string, v string) bool {
		for _, item := range list {
			if item == v {
				return true
			}
		}
		return false
	},
	"barWidth": func(count, peak int) string {
		if peak <= 0 || count <= 0 {
			return "0%"
		}
		return fmt.Sprintf("%.1f%%", float64(count)*100/float64(peak))
	},
	"percent": func(p float64) string {
		return fmt.Sprintf("%.1f%%", p)
	},
	"stamp": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

// page is embedded in every view.
type page struct {
	Title  string
	MapURL string
	Active string
	User   *models.User
}

func (s *Server) pageFor(r *http.Request, active string) page {
	p := page{Title: s.opts.Title, MapURL: s.opts.MapURL, Active: active}
	if u, ok := s.currentUser(r); ok {
		p.User = u
	}
	return p
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := s.tmpl[name]
	if !ok {
		slog.Error("unknown template", "name", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("render template", "name", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	slog.Error("web request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// --- Submission form ---

type formView struct {
	page
	Categories  []string
	Importances []models.Importance
	Domain      string
	MaxComment  int
	Values      issues.Submission
	Errors      map[string]string
	Success     string
	Warning     string
}

func (s *Server) formView(r *http.Request) formView {
	return formView{
		page:        s.pageFor(r, "form"),
		Categories:  models.Categories,
		Importances: models.Importances,
		Domain:      s.issues.Rules().Domain,
		MaxComment:  issues.MaxCommentLength,
		Values:      issues.Submission{Importance: string(models.ImportanceLow)},
	}
}

func (s *Server) showForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "form", s.formView(r))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sub := issues.Submission{
		Name:       r.PostForm.Get("name"),
		Email:      r.PostForm.Get("email"),
		RoomNumber: r.PostForm.Get("room_number"),
		IssueTypes: r.PostForm["issue_types"],
		Importance: r.PostForm.Get("importance"),
		Comment:    r.PostForm.Get("comment"),
	}

	view := s.formView(r)
	issue, err := s.issues.Create(r.Context(), sub)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		view.Values = sub
		view.Errors = make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			view.Errors[f.Field] = f.Message
		}
		s.render(w, http.StatusUnprocessableEntity, "form", view)
		return
	case err != nil && !issues.IsNotificationOnly(err):
		s.serverError(w, err)
		return
	}

	view.Success = fmt.Sprintf("Submission successful! Your issue #%d has been recorded.", issue.ID)
	if err != nil {
		view.Warning = "Your issue was saved, but the confirmation email could not be sent: " + err.Error()
	} else {
		view.Success += " A confirmation email is on its way to " + issue.SubmitterEmail + "."
	}
	s.render(w, http.StatusOK, "form", view)
}

// --- Dashboard ---

type dashboardView struct {
	page
	Issues         []*models.Issue
	Summary        *stats.Summary
	TypePeak       int
	DayPeak        int
	ImportancePeak int
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	list, err := s.issues.List(r.Context(), store.IssueListFilter{})
	if err != nil {
		s.serverError(w, err)
		return
	}
	summary := stats.Summarize(list, s.issues.Location())
	s.render(w, http.StatusOK, "dashboard", dashboardView{
		page:           s.pageFor(r, "dashboard"),
		Issues:         list,
		Summary:        summary,
		TypePeak:       stats.Max(summary.ByIssueType),
		DayPeak:        stats.Max(summary.ByDay),
		ImportancePeak: stats.Max(summary.ByImportance),
	})
}

// --- Sessions ---

type loginView struct {
	page
	Username string
	Error    string
}

func (s *Server) currentUser(r *http.Request) (*models.User, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	u, err := s.auth.Authenticate(r.Context(), c.Value)
	if err != nil {
		return nil, false
	}
	return u, true
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.currentUser(r); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func (s *Server) showLogin(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login", loginView{page: s.pageFor(r, "override")})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	sess, err := s.auth.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.serverError(w, err)
			return
		}
		s.render(w, http.StatusUnauthorized, "login", loginView{
			page:     s.pageFor(r, "override"),
			Username: username,
			Error:    "Incorrect username or password.",
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/override", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := s.auth.Logout(r.Context(), c.Value); err != nil {
			slog.Warn("logout failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// --- Status override ---

type overrideView struct {
	page
	Issues   []*models.Issue
	Statuses []models.IssueStatus
	Updated  int64
	Warning  string
	Error    string
}

func (s *Server) overrideView(r *http.Request) (overrideView, error) {
	list, err := s.issues.List(r.Context(), store.IssueListFilter{})
	if err != nil {
		return overrideView{}, err
	}
	return overrideView{
		page:     s.pageFor(r, "override"),
		Issues:   list,
		Statuses: models.IssueStatuses,
	}, nil
}

func (s *Server) showOverride(w http.ResponseWriter, r *http.Request) {
	view, err := s.overrideView(r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	q := r.URL.Query()
	if id, err := strconv.ParseInt(q.Get("updated"), 10, 64); err == nil {
		view.Updated = id
	}
	if q.Get("notify") == "failed" {
		view.Warning = "Status updated, but the notification email could not be sent."
	}
	s.render(w, http.StatusOK, "override", view)
}

func (s *Server) override(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid issue id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	status, _ := models.ParseIssueStatus(r.PostForm.Get("status"))

	_, err = s.issues.UpdateStatus(r.Context(), id, status)
	var verr *models.ValidationError
	var nf *models.NotFoundError
	switch {
	case err == nil, issues.IsNotificationOnly(err):
		q := url.Values{"updated": {strconv.FormatInt(id, 10)}}
		if err != nil {
			q.Set("notify", "failed")
		}
		http.Redirect(w, r, "/override?"+q.Encode(), http.StatusSeeOther)
	case errors.As(err, &verr), errors.As(err, &nf):
		view, lerr := s.overrideView(r)
		if lerr != nil {
			s.serverError(w, lerr)
			return
		}
		view.Error = err.Error()
		code := http.StatusBadRequest
		if nf != nil {
			code = http.StatusNotFound
		}
		s.render(w, code, "override", view)
	default:
		s.serverError(w, err)
	}
}
