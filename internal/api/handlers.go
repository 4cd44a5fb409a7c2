// Package api exposes the HTTP read surface over the presence journal.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/presence/internal/auth"
	"example.com/presence/internal/domain"
)

// Handler coordinates HTTP requests with the tracker.
type Handler struct {
	tracker *domain.Tracker
}

// NewHandler builds a Handler.
func NewHandler(tracker *domain.Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/subjects/", h.subjectBreakdown)
	mux.HandleFunc("/v1/leaderboard", h.leaderboard)
	mux.HandleFunc("/v1/activities/top", h.topActivities)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) subjectBreakdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireReadScope(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/subjects/")
	idPart, ok := strings.CutSuffix(rest, "/breakdown")
	if !ok || idPart == "" || strings.Contains(idPart, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	subjectID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || subjectID <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid subject id")
		return
	}

	rows, err := h.tracker.Breakdown(r.Context(), subjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, BreakdownResponse{SubjectID: subjectID, Activities: rows})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireReadScope(w, r) {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var since *time.Time
	var windowSeconds int64
	if raw := r.URL.Query().Get("window_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "window_hours must be a positive integer")
			return
		}
		window := time.Duration(hours) * time.Hour
		cutoff := time.Now().UTC().Add(-window)
		since = &cutoff
		windowSeconds = int64(window.Seconds())
	}

	rows, err := h.tracker.Leaderboard(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: rows, WindowSeconds: windowSeconds})
}

func (h *Handler) topActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireReadScope(w, r) {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	rows, err := h.tracker.TopActivities(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TopActivitiesResponse{Entries: rows})
}

func requireReadScope(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(auth.ScopePresenceRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope presence:read required")
		return false
	}
	return true
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errLimit
	}
	return parsed, nil
}

var errLimit = errors.New("limit must be a positive integer")

// BreakdownResponse lists per-activity hours for one subject.
type BreakdownResponse struct {
	SubjectID  int64                  `json:"subject_id"`
	Activities []domain.ActivityHours `json:"activities"`
}

// LeaderboardResponse lists ranked subjects. WindowSeconds is zero when the
// rollup spans the full history.
type LeaderboardResponse struct {
	Entries       []domain.SubjectHours `json:"entries"`
	WindowSeconds int64                 `json:"window_seconds,omitempty"`
}

// TopActivitiesResponse lists ranked activities.
type TopActivitiesResponse struct {
	Entries []domain.ActivityHours `json:"entries"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
