package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/padelclub/padelclub/internal/booking"
	"github.com/padelclub/padelclub/internal/store"
)

const (
	handlerTimeout = 10 * time.Second
	// A full-history replay can legitimately take a while.
	replayTimeout = 5 * time.Minute
)

// waitForResponse waits for a command response with a timeout.
func waitForResponse(resp <-chan error, timeout time.Duration) error {
	select {
	case err := <-resp:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("request timed out")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a lifecycle error kind to an HTTP status and surfaces
// the kind to the client unchanged.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, booking.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, booking.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, booking.ErrPersistence):
		status = http.StatusInternalServerError
	case errors.Is(err, booking.ErrSlotConflict),
		errors.Is(err, booking.ErrIneligibleLevel),
		errors.Is(err, booking.ErrFull),
		errors.Is(err, booking.ErrAlreadyJoined),
		errors.Is(err, booking.ErrNotFull),
		errors.Is(err, booking.ErrAlreadyPlayed):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusOK, s.grid)
		return
	}

	type slotStatus struct {
		Start   string `json:"start"`
		End     string `json:"end"`
		MatchID string `json:"matchId,omitempty"`
	}
	out := make([]slotStatus, 0, len(s.grid))
	for _, slot := range s.grid {
		st := slotStatus{Start: slot.Start, End: slot.End}
		m, err := s.store.FindActiveMatch(r.Context(), date, slot.Start)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
			return
		}
		if m != nil {
			st.MatchID = m.ID
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category  store.Category `json:"category"`
		Date      string         `json:"date"`
		StartTime string         `json:"startTime"`
		LevelMin  float64        `json:"levelMin"`
		LevelMax  float64        `json:"levelMax"`
		Roster    []string       `json:"roster"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("bad request body: %v", err))
		return
	}

	resp := make(chan booking.CreateMatchResult, 1)
	s.coordinator.Send(booking.CreateMatch{
		CreatorID: PlayerFromContext(r.Context()),
		Category:  req.Category,
		Date:      req.Date,
		StartTime: req.StartTime,
		LevelMin:  req.LevelMin,
		LevelMax:  req.LevelMax,
		Roster:    req.Roster,
		Response:  resp,
	})

	select {
	case res := <-resp:
		if res.Err != nil {
			writeError(w, res.Err)
			return
		}
		writeJSON(w, http.StatusCreated, res.Match)
	case <-time.After(handlerTimeout):
		writeError(w, fmt.Errorf("request timed out"))
	}
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	var (
		matches []store.Match
		err     error
	)
	if r.URL.Query().Get("status") == "played" {
		matches, err = s.store.ListPlayedMatches(r.Context(), r.URL.Query().Get("after"))
	} else {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
				limit = n
			}
		}
		matches, err = s.store.ListMatches(r.Context(), limit)
	}
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	if m == nil {
		writeError(w, booking.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// matchCommand sends a simple (match, actor) command and reports the
// outcome.
func (s *Server) matchCommand(w http.ResponseWriter, build func(matchID, actorID string, resp chan error) booking.Command, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	resp := make(chan error, 1)
	s.coordinator.Send(build(matchID, PlayerFromContext(r.Context()), resp))
	if err := waitForResponse(resp, handlerTimeout); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.JoinMatch{MatchID: matchID, PlayerID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.LeaveMatch{MatchID: matchID, PlayerID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.CloseMatch{MatchID: matchID, ActorID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.ReopenMatch{MatchID: matchID, ActorID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.CancelMatch{MatchID: matchID, ActorID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleRemoveSlot(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, fmt.Errorf("bad slot index"))
		return
	}
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.RemoveSlot{MatchID: matchID, ActorID: actorID, Index: index, Response: resp}
	}, r)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, fmt.Errorf("playerId required"))
		return
	}
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.InvitePlayer{MatchID: matchID, ActorID: actorID, PlayerID: req.PlayerID, Response: resp}
	}, r)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.AcceptInvite{MatchID: matchID, PlayerID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleRejectInvite(w http.ResponseWriter, r *http.Request) {
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.RejectInvite{MatchID: matchID, PlayerID: actorID, Response: resp}
	}, r)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sets []store.SetScore `json:"sets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("bad request body: %v", err))
		return
	}
	s.matchCommand(w, func(matchID, actorID string, resp chan error) booking.Command {
		return booking.SubmitResult{MatchID: matchID, ActorID: actorID, Sets: req.Sets, Response: resp}
	}, r)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	resp := make(chan error, 1)
	s.coordinator.Send(booking.ReplayRatings{Response: resp})
	if err := waitForResponse(resp, replayTimeout); err != nil {
		writeError(w, err)
		return
	}
	s.log.WithField("actor", PlayerFromContext(r.Context())).Info("ratings replayed")
	w.WriteHeader(http.StatusNoContent)
}
