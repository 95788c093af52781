// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/config"
)

func (s *Server) handleGetAccessList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.AccessList.Document())
}

// handlePutAccessList replaces the whole list. Validation happens before
// the swap; a rejected document leaves the published snapshot untouched.
func (s *Server) handlePutAccessList(w http.ResponseWriter, r *http.Request) {
	var doc config.AccessListDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.cfg.AccessList.Update(doc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info().
		Int("entries", len(doc.Entries)).
		Msg("origin access list replaced via API")
	w.WriteHeader(http.StatusNoContent)
}
