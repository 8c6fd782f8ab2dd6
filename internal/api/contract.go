package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-kit/log/level"

	"kvstore.contract/kvs/internal/abci"
	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/ledger"
)

// @Title: Get Value
// @Route: GET /api/value?key=
// @Description: Returns the value stored under key, or null when absent
// @Response: {"key": "...", "value": "..."}
func (s *Service) HandleValue(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	key := r.URL.Query().Get("key")
	if !r.URL.Query().Has("key") {
		s.writeError(w, http.StatusBadRequest, "key parameter is required")
		return
	}
	s.query(w, contract.Value{Key: key})
}

// @Title: Get Contract Config
// @Route: GET /api/config
// @Description: Returns the contract owner and the minimum storage fee
// @Response: {"owner": "...", "base_fee": {"denom": "...", "amount": "..."}}
func (s *Service) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	s.query(w, contract.Config{})
}

// @Title: Get Balances
// @Route: GET /api/balances?address=
// @Description: Returns the committed coin holdings of an address
// @Response: {"address": "...", "coins": [{"denom": "...", "amount": "..."}]}
func (s *Service) HandleBalances(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	coins, err := s.node.Balances(address)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"address": address, "coins": coins})
}

func (s *Service) query(w http.ResponseWriter, msg contract.QueryMsg) {
	raw, err := contract.EncodeQueryMsg(msg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("encode query: %v", err))
		return
	}
	res, err := s.node.QueryContract(raw)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(json.RawMessage(res))
}

func (s *Service) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contract.ErrInvalidMsg), errors.Is(err, abci.ErrInvalidQuery):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "contract is not instantiated")
	default:
		level.Error(s.log).Log("msg", "query failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
	}
}
