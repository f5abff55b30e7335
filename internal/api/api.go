package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/campusreport/internal/auth"
	"github.com/joescharf/campusreport/internal/issues"
	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/stats"
	"github.com/joescharf/campusreport/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	issues *issues.Service
	auth   *auth.Service
}

// NewServer creates a new API server.
func NewServer(is *issues.Service, as *auth.Service) *Server {
	return &Server{issues: is, auth: as}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return corsMiddleware(mux)
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}/status", s.requireAuth(s.updateIssueStatus))

	mux.HandleFunc("GET /api/v1/stats", s.getStats)
	mux.HandleFunc("GET /api/v1/categories", s.listCategories)

	mux.HandleFunc("POST /api/v1/login", s.login)
	mux.HandleFunc("POST /api/v1/logout", s.logout)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the error taxonomy to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	var nf *models.NotFoundError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		slog.Error("api request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// issueResponse carries an issue plus a warning when its email could not be sent.
type issueResponse struct {
	*models.Issue
	NotificationError string `json:"notification_error,omitempty"`
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.Authenticate(r.Context(), bearerToken(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		next(w, r)
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IssueListFilter{IssueType: q.Get("type")}
	if filter.IssueType != "" && !models.IsCategory(filter.IssueType) {
		writeError(w, http.StatusBadRequest, "unknown issue type: "+filter.IssueType)
		return
	}
	if v := q.Get("status"); v != "" {
		st, ok := models.ParseIssueStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status: "+v)
			return
		}
		filter.Status = st
	}
	if v := q.Get("importance"); v != "" {
		imp, ok := models.ParseImportance(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid importance: "+v)
			return
		}
		filter.Importance = imp
	}

	list, err := s.issues.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var sub issues.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	issue, err := s.issues.Create(r.Context(), sub)
	if err != nil && !issues.IsNotificationOnly(err) {
		writeServiceError(w, err)
		return
	}
	resp := issueResponse{Issue: issue}
	if err != nil {
		resp.NotificationError = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}
	issue, err := s.issues.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssueStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	status, _ := models.ParseIssueStatus(body.Status)

	issue, err := s.issues.UpdateStatus(r.Context(), id, status)
	if err != nil && !issues.IsNotificationOnly(err) {
		writeServiceError(w, err)
		return
	}
	resp := issueResponse{Issue: issue}
	if err != nil {
		resp.NotificationError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Dashboard ---

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	list, err := s.issues.List(r.Context(), store.IssueListFilter{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize(list, s.issues.Location()))
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	importances := make([]string, len(models.Importances))
	for i, imp := range models.Importances {
		importances[i] = string(imp)
	}
	statuses := make([]string, len(models.IssueStatuses))
	for i, st := range models.IssueStatuses {
		statuses[i] = string(st)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issue_types": models.Categories,
		"importances": importances,
		"statuses":    statuses,
	})
}

// --- Sessions ---

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sess, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
