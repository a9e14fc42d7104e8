package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/model"
	"github.com/trainerbook/scheduling-server-go/internal/service"
	"github.com/trainerbook/scheduling-server-go/internal/util"
)

type SessionHandler struct {
	lifecycle *service.LifecycleManager
	detector  *service.ConflictDetector
}

func NewSessionHandler(lifecycle *service.LifecycleManager, detector *service.ConflictDetector) *SessionHandler {
	return &SessionHandler{
		lifecycle: lifecycle,
		detector:  detector,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Patch("/{sessionID}", h.UpdateSession)
	r.Delete("/{sessionID}", h.CancelSession)

	return r
}

type createSessionRequest struct {
	TrainerID   string  `json:"trainerId"`
	BootcampID  *string `json:"bootcampId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StartAt     string  `json:"startAt"`
	EndAt       string  `json:"endAt"`
	Location    string  `json:"location"`
	Format      string  `json:"format"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}

	startAt, err := parseTimestamp("startAt", req.StartAt)
	if err != nil {
		writeError(w, err)
		return
	}
	endAt, err := parseTimestamp("endAt", req.EndAt)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.lifecycle.Create(r.Context(), model.CreateSessionParams{
		TrainerID:   req.TrainerID,
		BootcampID:  req.BootcampID,
		Title:       req.Title,
		Description: req.Description,
		StartAt:     startAt,
		EndAt:       endAt,
		Location:    req.Location,
		Format:      model.SessionFormat(req.Format),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

type updateSessionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartAt     *string `json:"startAt"`
	EndAt       *string `json:"endAt"`
	Location    *string `json:"location"`
	Format      *string `json:"format"`
}

// PATCH /v1/sessions/{sessionID}
func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionID", "must be a UUID"))
		return
	}

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}

	patch := model.SessionPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
	}
	if req.StartAt != nil {
		t, err := parseTimestamp("startAt", *req.StartAt)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.StartAt = &t
	}
	if req.EndAt != nil {
		t, err := parseTimestamp("endAt", *req.EndAt)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.EndAt = &t
	}
	if req.Format != nil {
		format := model.SessionFormat(*req.Format)
		patch.Format = &format
	}

	session, err := h.lifecycle.Update(r.Context(), sessionID, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// DELETE /v1/sessions/{sessionID}
//
// Sessions are never physically deleted; this transitions the record to
// cancelled, preserving history and freeing the interval.
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionID", "must be a UUID"))
		return
	}

	session, err := h.lifecycle.Cancel(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /v1/trainers/{trainerID}/sessions?from=&to=&status=
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseTimestamp("from", v)
		if err != nil {
			writeError(w, err)
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseTimestamp("to", v)
		if err != nil {
			writeError(w, err)
			return
		}
		to = &t
	}

	var status *model.SessionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		if !util.IsValidEnum(v, model.ValidStatuses()) {
			writeError(w, apperrors.InvalidInput("status", "unknown status"))
			return
		}
		s := model.SessionStatus(v)
		status = &s
	}

	sessions, err := h.lifecycle.ListSessions(r.Context(), trainerID, from, to, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GET /v1/trainers/{trainerID}/conflicts?start=&end=&exclude=
func (h *SessionHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")

	start, err := parseTimestamp("start", r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseTimestamp("end", r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	exclude := r.URL.Query().Get("exclude")

	conflicts, err := h.detector.FindConflicts(r.Context(), trainerID, start, end, exclude)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Debug().
		Str("trainerId", trainerID).
		Int("conflictCount", len(conflicts)).
		Msg("conflict check")

	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}
