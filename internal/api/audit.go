package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/HLeNam/user-registration-system-backend/internal/audit"
	"github.com/HLeNam/user-registration-system-backend/internal/auth"
)

// handleActivity returns the caller's recent session events.
//
// Query parameters:
//   - action: filter by event type (e.g. "login")
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset (default 0)
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())

	if s.auditRepo == nil {
		writeSuccess(w, r, http.StatusOK, "activity retrieved", audit.ListResult{Logs: []audit.AuditLog{}})
		return
	}

	filter := audit.Filter{
		AccountID: caller.ID,
		Action:    r.URL.Query().Get("action"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, r, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.writeAuthError(w, r, fmt.Errorf("listing activity: %w", err))
		return
	}
	writeSuccess(w, r, http.StatusOK, "activity retrieved", result)
}
