// Package management provides a lightweight, loopback-only HTTP API for
// read-only runtime inspection of a running engine instance.
//
// Endpoints:
//
//	GET /status   - engine identity, uptime, active mask count
//	GET /metrics  - full metrics.Snapshot() as JSON
//
// Off by default: ListenAndServe is only called when config.Management.MetricsAddr
// is non-empty. There is no mutation surface here — operators change engine
// state exclusively through PM commands (internal/command), per the
// Non-goal that autonomous/external policy changes are out of scope.
package management

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"maskwatch/internal/config"
	"maskwatch/internal/maskset"
	"maskwatch/internal/metrics"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	set       *maskset.Set
	token     string // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics
}

// New creates a management server. set is read for the /status endpoint's
// active-mask count only; New never mutates it.
func New(cfg *config.Config, set *maskset.Set, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		set:       set,
		token:     cfg.Management.Token,
		metrics:   m,
	}
	if s.token != "" {
		log.Printf("[MANAGEMENT] bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[MANAGEMENT] unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	type response struct {
		Status      string `json:"status"`
		Uptime      string `json:"uptime"`
		Nickname    string `json:"nickname"`
		Channel     string `json:"channel"`
		ActiveMasks int    `json:"activeMasks"`
	}
	writeJSON(w, http.StatusOK, response{
		Status:      "running",
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		Nickname:    s.cfg.Nickname,
		Channel:     s.cfg.Channel,
		ActiveMasks: s.set.Len(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[MANAGEMENT] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server on the configured
// metricsAddr. Callers should only invoke this when MetricsAddr is
// non-empty.
func (s *Server) ListenAndServe() error {
	log.Printf("[MANAGEMENT] listening on %s", s.cfg.Management.MetricsAddr)
	srv := &http.Server{
		Addr:              s.cfg.Management.MetricsAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
