package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log/level"
)

type backupEntry struct {
	Filename string    `json:"filename"`
	Height   int64     `json:"height"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// @Title: List Backups
// @Route: GET /api/backups/list
// @Description: Lists the height-named database backups, newest first
// @Response: Array of {"filename": "...", "height": 100, "size": 4096, "mod_time": "..."}
func (s *Service) HandleBackupsList(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	if s.backups == nil {
		s.writeJSON(w, http.StatusOK, []backupEntry{})
		return
	}

	backups, err := s.backups.Backups()
	if err != nil {
		level.Error(s.log).Log("msg", "list backups", "err", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list backups")
		return
	}

	out := make([]backupEntry, 0, len(backups))
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		info, err := os.Stat(b.Path)
		if err != nil {
			continue
		}
		out = append(out, backupEntry{
			Filename: filepath.Base(b.Path),
			Height:   b.Height,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}
