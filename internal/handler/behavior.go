package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loanpilot/sentinel/internal/auth"
	"github.com/loanpilot/sentinel/internal/domain"
	"github.com/loanpilot/sentinel/internal/guard"
	"github.com/loanpilot/sentinel/internal/service"
	"github.com/loanpilot/sentinel/internal/telemetry"
)

// BehaviorHandler exposes session monitoring, scoring and baseline routes.
type BehaviorHandler struct {
	svc     *service.BehaviorService
	limiter *guard.RateLimiter
}

// NewBehaviorHandler creates the behavior HTTP handler.
func NewBehaviorHandler(svc *service.BehaviorService, limiter *guard.RateLimiter) *BehaviorHandler {
	return &BehaviorHandler{svc: svc, limiter: limiter}
}

type startSessionRequest struct {
	SessionID string               `json:"session_id"`
	Device    telemetry.DeviceInfo `json:"device"`
}

type startSessionResponse struct {
	SessionID         string `json:"session_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// StartSession begins monitoring a session for the authenticated user.
// POST /sessions
func (h *BehaviorHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	userID := auth.SubjectFromContext(r.Context())
	fingerprint, err := h.svc.StartSession(r.Context(), userID, req.SessionID, req.Device)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, startSessionResponse{
		SessionID:         req.SessionID,
		DeviceFingerprint: fingerprint,
	})
}

type ingestRequest struct {
	Events []telemetry.InteractionEvent `json:"events"`
}

// IngestEvents feeds a batch of raw interaction events into the session.
// POST /sessions/{sessionID}/events
func (h *BehaviorHandler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if res := h.limiter.Check(r.Context(), "ingest:"+sessionID); !res.Allowed {
		RespondError(w, domain.ErrRateLimited(res.Reason))
		return
	}

	var req ingestRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if len(req.Events) == 0 {
		RespondError(w, domain.ErrValidation("events must not be empty"))
		return
	}

	if err := h.svc.Ingest(r.Context(), sessionID, req.Events); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, map[string]int{"accepted": len(req.Events)})
}

// GetSnapshot returns the session's current derived behavior snapshot.
// GET /sessions/{sessionID}/snapshot
func (h *BehaviorHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snapshot, err := h.svc.Snapshot(r.Context(), sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

// ScoreSession scores the session on demand.
// POST /sessions/{sessionID}/score
func (h *BehaviorHandler) ScoreSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := h.svc.ScoreSession(r.Context(), sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// EndSession stops monitoring and releases the session.
// DELETE /sessions/{sessionID}
func (h *BehaviorHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.svc.EndSession(r.Context(), sessionID); err != nil {
		RespondError(w, err)
		return
	}
	h.limiter.Forget("ingest:" + sessionID)
	RespondJSON(w, http.StatusNoContent, nil)
}

// GetBaseline returns the authenticated user's stored baseline.
// GET /baseline
func (h *BehaviorHandler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())

	baseline, err := h.svc.GetBaseline(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, baseline)
}

type updateBaselineRequest struct {
	SessionID string `json:"session_id"`
}

// UpdateBaseline marks the session's current behavior as the user's normal.
// PUT /baseline
func (h *BehaviorHandler) UpdateBaseline(w http.ResponseWriter, r *http.Request) {
	var req updateBaselineRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.SessionID == "" {
		RespondError(w, domain.ErrValidation("session_id is required"))
		return
	}

	userID := auth.SubjectFromContext(r.Context())
	baseline, err := h.svc.UpdateBaseline(r.Context(), userID, req.SessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, baseline)
}
