// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/audit"
)

// handleAuditEvents serves the most recent audit events, newest first.
// Query parameters: type (event type filter), limit (default 100).
func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store is disabled")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	eventType := audit.EventType(r.URL.Query().Get("type"))

	events, err := s.cfg.Audit.Query(eventType, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
