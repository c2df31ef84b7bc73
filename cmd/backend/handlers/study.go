package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
	"github.com/hairizuanbinnoorazman/persona-navigator/studyrun"
)

// StudySubmitter queues studies for execution.
type StudySubmitter interface {
	Submit(ctx context.Context, study agent.Study) (agent.Study, error)
}

// StudyHandler handles study-related requests.
type StudyHandler struct {
	submitter StudySubmitter
	runs      studyrun.Store
	store     recorder.Store
	live      *recorder.LiveState
	logger    logger.Logger
}

// NewStudyHandler creates a new study handler.
func NewStudyHandler(submitter StudySubmitter, runs studyrun.Store, store recorder.Store, live *recorder.LiveState, log logger.Logger) *StudyHandler {
	return &StudyHandler{
		submitter: submitter,
		runs:      runs,
		store:     store,
		live:      live,
		logger:    log,
	}
}

// CreateStudyRequest represents a study submission.
type CreateStudyRequest struct {
	Name     string          `json:"name"`
	Task     agent.Task      `json:"task"`
	Personas []agent.Persona `json:"personas"`
}

// CreateStudyResponse is returned once a study is queued.
type CreateStudyResponse struct {
	StudyID  string `json:"study_id"`
	Personas int    `json:"personas"`
	Status   string `json:"status"`
}

// Create handles submitting a new study run.
func (h *StudyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStudyRequest
	if err := parseJSON(w, r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	study, err := h.submitter.Submit(r.Context(), agent.Study{
		Name:     req.Name,
		Task:     req.Task,
		Personas: req.Personas,
	})
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrInvalidStudy):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, agent.ErrQueueFull), errors.Is(err, agent.ErrWorkerPoolStopped):
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error(r.Context(), "failed to submit study", map[string]interface{}{
				"error": err.Error(),
			})
			respondError(w, http.StatusInternalServerError, "failed to submit study")
		}
		return
	}

	h.logger.Info(r.Context(), "study queued", map[string]interface{}{
		"study_id": study.ID.String(),
		"personas": len(study.Personas),
	})
	respondJSON(w, http.StatusAccepted, CreateStudyResponse{
		StudyID:  study.ID.String(),
		Personas: len(study.Personas),
		Status:   "queued",
	})
}

// List returns a page of study runs, optionally filtered by ?status=.
func (h *StudyHandler) List(w http.ResponseWriter, r *http.Request) {
	status := studyrun.Status(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	limit, offset := parsePagination(r)

	total, err := h.runs.Count(r.Context(), status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count studies")
		return
	}

	runs, err := h.runs.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list studies")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(runs, total, limit, offset))
}

// Get returns the run record of one study.
func (h *StudyHandler) Get(w http.ResponseWriter, r *http.Request) {
	studyID, ok := parseUUIDOrRespond(w, r, "id", "study")
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), studyID)
	if err != nil {
		if errors.Is(err, studyrun.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "study not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get study", map[string]interface{}{
			"error":    err.Error(),
			"study_id": studyID.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to get study")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// Snapshot returns the live state of every session of a study.
func (h *StudyHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	studyID, ok := parseUUIDOrRespond(w, r, "id", "study")
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, recorder.SnapshotEvent{
		Type:     recorder.EventSnapshot,
		StudyID:  studyID.String(),
		Sessions: h.live.Study(studyID),
	})
}

// ListSessions returns the persisted sessions of a study.
func (h *StudyHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	studyID, ok := parseUUIDOrRespond(w, r, "id", "study")
	if !ok {
		return
	}
	sessions, err := h.store.ListSessionsByStudy(r.Context(), studyID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list sessions", map[string]interface{}{
			"error":    err.Error(),
			"study_id": studyID.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, ListResponse{Items: sessions, Total: len(sessions)})
}

// SessionDetail is a persona session with its recorded steps and issues.
type SessionDetail struct {
	Session *recorder.PersonaSession `json:"session"`
	Steps   []*recorder.Step         `json:"steps"`
	Issues  []*recorder.Issue        `json:"issues"`
}

// GetSession returns one session with its steps and issues.
func (h *StudyHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUIDOrRespond(w, r, "id", "session")
	if !ok {
		return
	}

	ps, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, recorder.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get session", map[string]interface{}{
			"error":      err.Error(),
			"session_id": sessionID.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	steps, err := h.store.ListSteps(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list steps")
		return
	}
	issues, err := h.store.ListIssues(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list issues")
		return
	}
	respondJSON(w, http.StatusOK, SessionDetail{Session: ps, Steps: steps, Issues: issues})
}
