// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation). POST endpoints require
// a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/climate-chain/internal/agents"
	"github.com/talgya/climate-chain/internal/engine"
	"github.com/talgya/climate-chain/internal/persistence"
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Runner   *engine.Runner
	DB       *persistence.DB
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	hub *Hub
}

// Handler builds the route table. Separate from Start so tests can drive
// the routes without binding a port.
func (s *Server) Handler() http.Handler {
	if s.hub == nil {
		s.hub = NewHub()
		go s.hub.Run()
	}

	// Shock injection mutates every in-scope agent; keep it hard to spam
	// even with a leaked admin key.
	shockLimiter := NewRateLimiter(30, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only — anyone can check in on the run).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/climate", s.handleClimate)
	mux.HandleFunc("/api/v1/round", s.handleRound)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	// WebSocket stream of finished rounds.
	mux.HandleFunc("/api/v1/stream", s.hub.Handler())

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/shock", s.adminOnly(RateLimitMiddleware(shockLimiter, s.handleShock)))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	handler := s.Handler()
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// BroadcastRound pushes a finished round to stream subscribers. Safe to
// call before Handler; rounds finished with nobody listening are dropped.
func (s *Server) BroadcastRound(rec engine.RoundRecord) {
	if s.hub != nil {
		s.hub.Broadcast(rec)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.StatsSnapshot()

	status := map[string]any{
		"run_id":      s.RunID,
		"scenario":    s.Sim.Scenario.Simulation.Name,
		"round":       st.Round,
		"agents":      st.Agents,
		"total_money": st.TotalMoney,
		"total_debt":  st.TotalDebt,
		"net_balance": s.Sim.NetBalance(),
		"trades":      st.Trades,
		"underfed":    st.Underfed,
		"stressed":    st.Stressed,
		"avg_utility": st.AvgUtility,
	}
	if s.Runner != nil {
		status["speed"] = s.Runner.Speed()
		status["running"] = s.Runner.Running()
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")
	roleFilter := r.URL.Query().Get("role")

	records := s.Sim.AgentRecords()
	result := make([]engine.AgentRecord, 0, len(records))
	for _, rec := range records {
		if typeFilter != "" && rec.Type != typeFilter {
			continue
		}
		if roleFilter != "" && rec.Role != roleFilter {
			continue
		}
		result = append(result, rec)
	}
	writeJSON(w, result)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	for _, rec := range s.Sim.AgentRecords() {
		if rec.Agent == agents.AgentID(id) {
			writeJSON(w, rec)
			return
		}
	}
	http.Error(w, "agent not found", http.StatusNotFound)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(500)

	// Optional category filter ("climate", "debt", "production", "consumption").
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.StatsSnapshot())
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	rows, err := s.DB.StatsHistory(s.RunID)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Return empty array instead of error — the run may not have
		// persisted anything yet.
		writeJSON(w, []engine.SimStats{})
		return
	}
	if rows == nil {
		rows = []engine.SimStats{}
	}

	if l := r.URL.Query().Get("last"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n < len(rows) {
			rows = rows[len(rows)-n:]
		}
	}
	writeJSON(w, rows)
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"rules": s.Sim.ShockRules(),
	}
	if s.DB != nil {
		history, err := s.DB.ClimateHistory(s.RunID)
		if err != nil {
			slog.Error("climate history query failed", "error", err)
		} else {
			resp["history"] = history
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.Sim.LastRecord()
	if !ok {
		http.Error(w, "no rounds completed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.ListRuns()
	if err != nil {
		slog.Error("run listing failed", "error", err)
		http.Error(w, "run listing failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunInfo{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		http.Error(w, "no runner attached", http.StatusServiceUnavailable)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Runner.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Runner.Speed()})
}

func (s *Server) handleShock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Rule string `json:"rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Rule == "" {
		http.Error(w, "rule required", http.StatusBadRequest)
		return
	}

	details, err := s.Sim.InjectShock(req.Rule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"success": true, "details": details})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	rec, ok := s.Sim.LastRecord()
	if !ok {
		http.Error(w, "no completed round to snapshot", http.StatusConflict)
		return
	}
	if err := s.DB.SaveRunState(s.RunID, rec, s.Sim.AgentRecords()); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"round":   rec.Round,
		"message": "snapshot saved",
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
