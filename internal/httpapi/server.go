// Package httpapi provides the HTTP surface (§6): POST /enter and
// POST /action for agents, plus GET projection endpoints over world,
// agent, zone, boss, arena, and event state.
//
// Grounded on the teacher's internal/api/server.go: same mux-per-Server,
// CORS middleware, and admin-bearer-token pattern for write endpoints —
// generalized from settlement/faction projections to agent/zone/boss
// projections, and from an Engine tick loop to the Action Router.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/reef-engine/internal/action"
	"github.com/talgya/reef-engine/internal/engineerr"
	"github.com/talgya/reef-engine/internal/persistence"
	"github.com/talgya/reef-engine/internal/state"
)

// Server serves the Reef world over HTTP.
type Server struct {
	Router   *action.Router
	World    *state.World
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for admin POST endpoints. Empty = disabled.
	DevMode  bool   // bypasses on-chain season-entry verification
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/enter", s.handleEnter)
	mux.HandleFunc("/action", s.handleAction)

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/zone/", s.handleZoneDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/boss", s.handleBoss)
	mux.HandleFunc("/api/v1/abyss", s.handleAbyss)
	mux.HandleFunc("/api/v1/arena/duels", s.handleArenaDuels)
	mux.HandleFunc("/api/v1/arena/tournaments", s.handleArenaTournaments)
	mux.HandleFunc("/api/v1/market/listings", s.handleMarketListings)

	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "dev_mode", s.DevMode)

	go func() {
		if err := http.ListenAndServe(addr, corsMiddleware(mux)); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- /enter --------------------------------------------------------------

type enterRequest struct {
	Wallet string `json:"wallet"`
	Name   string `json:"name"`
}

type enterResponse struct {
	APIKey  string `json:"apiKey"`
	AgentID uint64 `json:"agentId"`
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req enterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet == "" || req.Name == "" {
		http.Error(w, "wallet and name required", http.StatusBadRequest)
		return
	}

	if !s.DevMode && s.Router.Treasury != nil {
		season, err := s.Router.Treasury.GetSeasonInfo(r.Context())
		if err == nil {
			entered, err := s.Router.Treasury.HasEnteredSeason(r.Context(), season.Season.Uint64(), req.Wallet)
			if err != nil || !entered {
				http.Error(w, "wallet has not entered the current season on-chain", http.StatusForbidden)
				return
			}
		}
	}

	apiKey := "reef_" + uuid.NewString()
	a := s.World.CreateAgent(req.Wallet, req.Name, apiKey)
	writeJSON(w, enterResponse{APIKey: a.APIKey, AgentID: a.ID})
}

// --- /action ---------------------------------------------------------------

type actionRequest struct {
	Action string            `json:"action"`
	Target string            `json:"target,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

type actionResponse struct {
	Success      bool              `json:"success"`
	Narrative    string            `json:"narrative"`
	Agent        *state.Agent      `json:"agent,omitempty"`
	Inventory    []state.ItemStack `json:"inventory,omitempty"`
	StateChanges []string          `json:"stateChanges,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		http.Error(w, "missing X-API-Key", http.StatusUnauthorized)
		return
	}
	a := s.World.AgentByAPIKey(apiKey)
	if a == nil {
		http.Error(w, "invalid API key", http.StatusUnauthorized)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		http.Error(w, "invalid action request", http.StatusBadRequest)
		return
	}

	result := s.Router.ProcessAction(action.Request{
		AgentID: a.ID,
		Action:  req.Action,
		Target:  req.Target,
		Params:  req.Params,
	})

	status := http.StatusOK
	switch {
	case result.Kind == engineerr.RateLimited:
		status = http.StatusTooManyRequests
		retryAfter := action.ActionRateLimit
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	case result.Kind == engineerr.InvalidInput:
		status = http.StatusBadRequest
	case result.Kind == engineerr.Unauthorized:
		status = http.StatusUnauthorized
	case !result.Success:
		status = http.StatusOK // domain-level failure still 200, narrative explains why
	}

	w.WriteHeader(status)
	writeJSON(w, actionResponse{
		Success:      result.Success,
		Narrative:    result.Narrative,
		Agent:        a,
		Inventory:    s.World.Inventory(a.ID),
		StateChanges: result.StateChanges,
	})
}

// --- read-only projections --------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"tick":   s.World.Tick(),
		"meta":   s.World.Meta(),
		"agents": len(s.World.AllAgents()),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.World.AllAgents())
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/agent/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	a := s.World.Agent(id)
	if a == nil {
		http.Error(w, "no such agent", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{
		"agent":     a,
		"inventory": s.World.Inventory(id),
		"vault":     s.World.Vault(id),
	})
}

func (s *Server) handleZoneDetail(w http.ResponseWriter, r *http.Request) {
	zoneID := strings.TrimPrefix(r.URL.Path, "/api/v1/zone/")
	zone, ok := s.Router.Catalog.Zones[zoneID]
	if !ok {
		http.Error(w, "no such zone", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{
		"zone":   zone,
		"agents": s.World.AgentsAt(zoneID),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	writeJSON(w, s.World.RecentEvents(n))
}

func (s *Server) handleBoss(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Router.Boss.Snapshot())
}

func (s *Server) handleAbyss(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Router.Abyss.Snapshot())
}

func (s *Server) handleArenaDuels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Router.Duels.AllDuels())
}

func (s *Server) handleArenaTournaments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Router.Tournaments.AllTournaments())
}

func (s *Server) handleMarketListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Router.Listings.ActiveListings())
}

// --- admin -------------------------------------------------------------------

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subsystems := persistence.Subsystems{
		Parties:     s.Router.Parties,
		Engagements: s.Router.Engagements,
		Boss:        s.Router.Boss,
		Abyss:       s.Router.Abyss,
		Duels:       s.Router.Duels,
		Tournaments: s.Router.Tournaments,
		Board:       s.Router.Board,
		Quests:      s.Router.Quests,
		Listings:    s.Router.Listings,
		Predictions: s.Router.Predictions,
		Tutorial:    s.Router.Tutorial,
	}
	if err := persistence.SaveAll(s.DB, s.World, subsystems); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}
