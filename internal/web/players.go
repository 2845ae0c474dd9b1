package web

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/padelclub/padelclub/internal/booking"
	"github.com/padelclub/padelclub/internal/rating"
	"github.com/padelclub/padelclub/internal/store"
)

// handleRegisterPlayer creates the ranking record for the authenticated
// player. The declared starting level seeds the cumulative points so that
// future rating math is consistent from the first match.
func (s *Server) handleRegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string  `json:"name"`
		Level float64 `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("bad request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, fmt.Errorf("name required"))
		return
	}
	if req.Level == 0 {
		req.Level = rating.MinLevel
	}
	if req.Level < rating.MinLevel || req.Level > rating.MaxLevel {
		writeError(w, fmt.Errorf("level must be between %.2f and %.2f", rating.MinLevel, rating.MaxLevel))
		return
	}
	// Snap to the 0.01 grid the rating walk moves on.
	req.Level = math.Round(req.Level*100) / 100

	id := PlayerFromContext(r.Context())
	existing, err := s.store.GetPlayer(r.Context(), id)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	if existing != nil {
		writeError(w, fmt.Errorf("player %s already registered", id))
		return
	}

	// The declared level becomes the player's permanent registration seed:
	// a replay rewinds them to exactly this state before reprocessing, so
	// replayed history lands where live application did.
	now := time.Now().UTC()
	points := rating.CumulativeThreshold(req.Level)
	p := &store.Player{
		ID:            id,
		Name:          req.Name,
		Level:         req.Level,
		Points:        points,
		InitialLevel:  req.Level,
		InitialPoints: points,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreatePlayer(r.Context(), p); err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.store.ListPlayers(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	if players == nil {
		players = []store.Player{}
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPlayer(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	if p == nil {
		writeError(w, booking.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleLeaderboard returns players ranked by level, cumulative points
// breaking ties.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	players, err := s.store.ListPlayers(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Level != players[j].Level {
			return players[i].Level > players[j].Level
		}
		return players[i].Points > players[j].Points
	})
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(players) {
			players = players[:n]
		}
	}

	type entry struct {
		Rank int `json:"rank"`
		store.Player
	}
	out := make([]entry, len(players))
	for i, p := range players {
		out[i] = entry{Rank: i + 1, Player: p}
	}
	writeJSON(w, http.StatusOK, out)
}
