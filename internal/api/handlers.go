// Package api exposes HTTP handlers for the unistellar activity service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jacobhenn/unistellar/internal/auth"
	"github.com/jacobhenn/unistellar/internal/domain"
	"github.com/jacobhenn/unistellar/internal/observability"
	"github.com/jacobhenn/unistellar/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/users/", h.userStatus)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submitActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) submitActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var req SubmitActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	act, err := h.service.SubmitActivity(r.Context(), domain.SubmitActivityInput{
		UserID:       req.UserID,
		CourseID:     req.CourseID,
		AssignmentID: req.AssignmentID,
		Kind:         domain.Kind(req.Kind),
		DurationSecs: req.DurationSecs,
		RecordedAt:   req.RecordedAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActivityView(*act))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user_id parameter")
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	// Repositories pre-allocate page buffers from the limit, so an
	// unbounded value would let a caller force huge allocations.
	if limit > maxPageSize {
		limit = maxPageSize
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid cursor")
		return
	}

	acts, next, err := h.service.ListActivities(r.Context(), userID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(acts))
	for _, act := range acts {
		items = append(items, toActivityView(act))
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) userStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, tail, found := strings.Cut(rest, "/")
	if userID == "" || !found || tail != "status" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	status, err := h.service.GetUserStatus(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserStatusView(*status))
}

// SubmitActivityRequest is the payload for POST /v1/activities.
type SubmitActivityRequest struct {
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id"`
	Kind         string    `json:"kind"`
	DurationSecs *int64    `json:"duration_secs,omitempty"`
	RecordedAt   time.Time `json:"recorded_at,omitempty"`
}

// Validate ensures request shape correctness; kind-specific rules live in the
// domain validator.
func (r SubmitActivityRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.CourseID) == "" {
		return errors.New("course_id is required")
	}
	if strings.TrimSpace(r.AssignmentID) == "" {
		return errors.New("assignment_id is required")
	}
	if strings.TrimSpace(r.Kind) == "" {
		return errors.New("kind is required")
	}
	return nil
}

// ActivityView exposes a ledger entry.
type ActivityView struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id"`
	Kind         string    `json:"kind"`
	DurationSecs int64     `json:"duration_secs,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
	CreatedAt    time.Time `json:"created_at"`
	Seq          int64     `json:"seq"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// StatsView mirrors the user's aggregate counters.
type StatsView struct {
	SecsWorked           int64 `json:"secs_worked"`
	AssignmentsCompleted int64 `json:"assignments_completed"`
}

// UserStatusView exposes the derived status sets and stats. The sets serialize
// as sorted arrays.
type UserStatusView struct {
	UserID                string    `json:"user_id"`
	AssignmentsPlanning   []string  `json:"assignments_planning"`
	AssignmentsInProgress []string  `json:"assignments_in_progress"`
	AssignmentsCompleted  []string  `json:"assignments_completed"`
	Stats                 StatsView `json:"stats"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func toActivityView(act domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:   act.ID,
		UserID:       act.UserID,
		CourseID:     act.CourseID,
		AssignmentID: act.AssignmentID,
		Kind:         string(act.Kind),
		DurationSecs: act.DurationSecs,
		RecordedAt:   act.RecordedAt,
		CreatedAt:    act.CreatedAt,
		Seq:          act.Seq,
	}
}

func toUserStatusView(status domain.UserStatus) UserStatusView {
	return UserStatusView{
		UserID:                status.UserID,
		AssignmentsPlanning:   status.Planning.Sorted(),
		AssignmentsInProgress: status.InProgress.Sorted(),
		AssignmentsCompleted:  status.Completed.Sorted(),
		Stats: StatsView{
			SecsWorked:           status.Stats.SecsWorked,
			AssignmentsCompleted: status.Stats.AssignmentsCompleted,
		},
		UpdatedAt: status.UpdatedAt,
	}
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses, keeping
// the four kinds distinguishable in the response body.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		observability.RecordActivityRejected("invalid_payload")
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
	case errors.Is(err, domain.ErrInvalidReference):
		observability.RecordActivityRejected("invalid_reference")
		writeError(w, http.StatusBadRequest, "invalid_reference", err.Error())
	case errors.Is(err, domain.ErrUnknownUser):
		writeError(w, http.StatusInternalServerError, "unknown_user", err.Error())
	case errors.Is(err, domain.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage_failure", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
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
