package api

import (
	"errors"
	"net/http"

	"github.com/go-kit/log/level"

	"kvstore.contract/kvs/internal/docs"
)

// @Title: Get Docs
// @Route: GET /api/docs?name=
// @Description: Lists the manuals, or renders one to HTML when name is given
// @Response: Array of file names, or text/html
func (s *Service) HandleDocs(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	if s.docs == nil {
		s.writeError(w, http.StatusNotFound, "documentation is not configured")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		list, err := s.docs.ListDocs()
		if err != nil {
			level.Warn(s.log).Log("msg", "list docs", "err", err)
			s.writeError(w, http.StatusInternalServerError, "Failed to list docs")
			return
		}
		s.writeJSON(w, http.StatusOK, list)
		return
	}

	html, err := s.docs.GetDoc(r.Context(), name)
	switch {
	case errors.Is(err, docs.ErrInvalidName):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, docs.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		level.Error(s.log).Log("msg", "render doc", "name", name, "err", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to render doc")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
