// Package api serves the node's read-only HTTP surface: contract queries
// against committed state, balances, recent logs, rendered docs, metrics and
// a websocket stream of contract events.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/log"

	"kvstore.contract/kvs/internal/abci"
	"kvstore.contract/kvs/internal/docs"
	"kvstore.contract/kvs/internal/logger"
	"kvstore.contract/kvs/internal/metrics"
	"kvstore.contract/kvs/internal/ratelimit"
	"kvstore.contract/kvs/internal/storage"
	"kvstore.contract/kvs/internal/types"
)

// Node is the subset of the ABCI application the API reads from.
type Node interface {
	Status() abci.Status
	QueryContract(raw []byte) ([]byte, error)
	Balances(address string) (types.Coins, error)
}

// BackupLister reports the height-named database backups.
type BackupLister interface {
	Backups() ([]storage.Backup, error)
}

// Options wires the optional parts of a Service.
type Options struct {
	Logger  log.Logger
	Ring    *logger.Logger
	Docs    *docs.Service
	Metrics *metrics.Metrics
	Hub     *Hub
	Backups BackupLister
	Limiter *ratelimit.Limiter
}

// Service handles API requests
type Service struct {
	node    Node
	log     log.Logger
	ring    *logger.Logger
	docs    *docs.Service
	metrics *metrics.Metrics
	hub     *Hub
	backups BackupLister
	limiter *ratelimit.Limiter
}

// NewService creates a new API service
func NewService(node Node, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Ring == nil {
		opts.Ring = logger.New(200)
	}
	return &Service{
		node:    node,
		log:     log.With(opts.Logger, "module", "api"),
		ring:    opts.Ring,
		docs:    opts.Docs,
		metrics: opts.Metrics,
		hub:     opts.Hub,
		backups: opts.Backups,
		limiter: opts.Limiter,
	}
}

// Handler returns the routed API. Every /api route is rate limited per
// client; /metrics and the websocket are not.
func (s *Service) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/health", s.HandleHealth)
	api.HandleFunc("/api/version", s.HandleVersion)
	api.HandleFunc("/api/status", s.HandleStatus)
	api.HandleFunc("/api/value", s.HandleValue)
	api.HandleFunc("/api/config", s.HandleConfig)
	api.HandleFunc("/api/balances", s.HandleBalances)
	api.HandleFunc("/api/logs", s.HandleLogs)
	api.HandleFunc("/api/docs", s.HandleDocs)
	api.HandleFunc("/api/backups/list", s.HandleBackupsList)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.limiter.Middleware(api))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		mux.HandleFunc("/ws/events", s.hub.HandleEvents)
	}
	return mux
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Service) allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
