package api

import (
	"net/http"
	"strconv"
)

const defaultLogLimit = 100

// @Title: Get Recent Logs
// @Route: GET /api/logs?limit=
// @Description: Returns the most recent node log records, newest first
// @Response: Array of {"timestamp": "...", "text": "...", "level": "..."}
func (s *Service) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.ring.GetRecent(limit))
}
