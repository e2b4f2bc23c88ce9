package handler

import (
	"net/http"
	"strconv"

	"github.com/loanpilot/sentinel/internal/service"
)

// SecurityHandler exposes the admin review surface over security events.
type SecurityHandler struct {
	svc *service.BehaviorService
}

// NewSecurityHandler creates the security events HTTP handler.
func NewSecurityHandler(svc *service.BehaviorService) *SecurityHandler {
	return &SecurityHandler{svc: svc}
}

// ListEvents returns the most recent security events.
// GET /admin/security/events?limit=N
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.svc.ListSecurityEvents(r.Context(), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
