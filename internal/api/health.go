package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"

	"kvstore.contract/kvs/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns kvs version, build and chain identity
// @Response: {"version": "...", "status": "ok", "chain_id": "...", "contract_address": "..."}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	status := s.node.Status()

	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":          types.Version,
		"build_time":       types.BuildTime,
		"status":           "ok",
		"hostname":         hostname,
		"go_ver":           runtime.Version(),
		"os_arch":          fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		"chain_id":         status.ChainID,
		"contract_address": status.ContractAddress,
	})
}

// @Title: Get Chain Status
// @Route: GET /api/status
// @Description: Returns the last committed height and app hash
// @Response: {"height": 12, "app_hash": "...", "contract_address": "...", "chain_id": "..."}
func (s *Service) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.node.Status())
}
