// Package web exposes the booking and ranking operations as a JSON API.
// Authentication terminates upstream; the authenticated player id arrives
// in the X-Player-ID header.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/booking"
	"github.com/padelclub/padelclub/internal/notify"
	"github.com/padelclub/padelclub/internal/schedule"
	"github.com/padelclub/padelclub/internal/store"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	router      *chi.Mux
	coordinator *booking.Coordinator
	store       store.Store
	push        *notify.PushSink // nil when push is not configured
	grid        schedule.Grid
	admins      map[string]bool
	log         *logrus.Entry
}

// NewServer creates the HTTP server.
func NewServer(
	coord *booking.Coordinator,
	st store.Store,
	push *notify.PushSink,
	grid schedule.Grid,
	admins map[string]bool,
	log *logrus.Logger,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		coordinator: coord,
		store:       st,
		push:        push,
		grid:        grid,
		admins:      admins,
		log:         log.WithField("component", "web"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Public reads
	r.Get("/slots", s.handleSlots)
	r.Get("/matches", s.handleListMatches)
	r.Get("/matches/{matchID}", s.handleGetMatch)
	r.Get("/players", s.handleListPlayers)
	r.Get("/players/{playerID}", s.handleGetPlayer)
	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/push/key", s.handlePushKey)

	// Player operations
	r.Group(func(r chi.Router) {
		r.Use(requirePlayer)

		r.Post("/players", s.handleRegisterPlayer)
		r.Post("/matches", s.handleCreateMatch)
		r.Post("/matches/{matchID}/join", s.handleJoin)
		r.Post("/matches/{matchID}/leave", s.handleLeave)
		r.Post("/matches/{matchID}/close", s.handleClose)
		r.Post("/matches/{matchID}/reopen", s.handleReopen)
		r.Post("/matches/{matchID}/cancel", s.handleCancel)
		r.Post("/matches/{matchID}/result", s.handleSubmitResult)
		r.Delete("/matches/{matchID}/slots/{index}", s.handleRemoveSlot)
		r.Post("/matches/{matchID}/invites", s.handleInvite)
		r.Post("/matches/{matchID}/invites/accept", s.handleAcceptInvite)
		r.Post("/matches/{matchID}/invites/reject", s.handleRejectInvite)
		r.Post("/push/subscribe", s.handlePushSubscribe)
		r.Delete("/push/subscribe", s.handlePushUnsubscribe)
	})

	// Admin operations
	r.Group(func(r chi.Router) {
		r.Use(requirePlayer)
		r.Use(s.requireAdmin)

		r.Post("/admin/replay", s.handleReplay)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type contextKey string

const playerKey contextKey = "player"

// requirePlayer pulls the authenticated player id from the X-Player-ID
// header set by the upstream auth layer.
func requirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Player-ID")
		if id == "" {
			http.Error(w, "missing X-Player-ID", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey, id)))
	})
}

// PlayerFromContext returns the acting player id, or "".
func PlayerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(playerKey).(string)
	return id
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.admins[PlayerFromContext(r.Context())] {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
