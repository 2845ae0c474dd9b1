package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/padelclub/padelclub/internal/booking"
	"github.com/padelclub/padelclub/internal/store"
)

func (s *Server) handlePushKey(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		http.Error(w, "push not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.push.PublicKey()})
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		http.Error(w, "push not configured", http.StatusNotFound)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("bad request body: %v", err))
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, fmt.Errorf("endpoint and keys required"))
		return
	}

	sub := &store.PushSubscription{
		PlayerID:  PlayerFromContext(r.Context()),
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SavePushSubscription(r.Context(), sub); err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, fmt.Errorf("endpoint required"))
		return
	}
	if err := s.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		writeError(w, fmt.Errorf("%w: %w", booking.ErrPersistence, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
