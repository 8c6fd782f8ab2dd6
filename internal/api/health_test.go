package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kvstore.contract/kvs/internal/types"
)

func TestHandleHealth(t *testing.T) {
	svc, _ := setupTest(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	svc.HandleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status OK, got %v", resp.Status)
	}
}

func TestHandleVersion(t *testing.T) {
	svc, _ := setupTest(t, Options{})

	w := httptest.NewRecorder()
	svc.HandleVersion(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["version"] != types.Version {
		t.Errorf("Expected version %s, got %s", types.Version, body["version"])
	}
	if body["chain_id"] != testChain {
		t.Errorf("Expected chain id %s, got %s", testChain, body["chain_id"])
	}
	if body["contract_address"] == "" {
		t.Errorf("Expected a contract address")
	}
}

func TestHandleStatusTracksCommits(t *testing.T) {
	svc, node := setupTest(t, Options{})
	node.set(t, "a", "1")
	node.set(t, "b", "2")

	w := httptest.NewRecorder()
	svc.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var status struct {
		Height  int64  `json:"height"`
		AppHash string `json:"app_hash"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Height != 2 {
		t.Errorf("Expected height 2, got %d", status.Height)
	}
	if status.AppHash == "" {
		t.Errorf("Expected an app hash")
	}
}
