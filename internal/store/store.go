package store

import (
	"context"
	"errors"
	"time"
)

// ErrMalformed marks a persisted record that fails validation on load.
// Malformed rows are never silently defaulted; the caller decides what a
// storage-level failure means for its operation.
var ErrMalformed = errors.New("malformed record")

// RosterSize is the number of slots every match has.
const RosterSize = 4

// Player is the ranking subsystem's record of one club member. Rating
// fields are only ever written by the ledger (or reset by a replay).
// InitialLevel and InitialPoints are the registration seed: the state a
// replay rewinds this player to before reprocessing history.
type Player struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Level         float64   `json:"level"`
	Points        float64   `json:"points"`
	InitialLevel  float64   `json:"initialLevel"`
	InitialPoints float64   `json:"initialPoints"`
	MatchesPlayed int       `json:"matchesPlayed"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Streak        int       `json:"streak"`
	BestStreak    int       `json:"bestStreak"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Category of a match.
type Category string

const (
	CategoryFriendly  Category = "friendly"
	CategoryChallenge Category = "challenge"
)

// Status of a match within its lifecycle.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusPlayed Status = "played"
	// StatusCancelled is accepted on load for rows written by external
	// tooling; the lifecycle itself deletes cancelled matches outright.
	StatusCancelled Status = "cancelled"
)

// SetScore is one set's games for the home side (roster slots 0 and 1)
// versus the away side (slots 2 and 3).
type SetScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Match is one bookable court reservation and its roster. Roster entries
// hold a player id, a guest pseudo-id, or "" for an empty slot. Invited
// tracks rostered challenge invitees that have not accepted yet.
type Match struct {
	ID        string             `json:"id"`
	Category  Category           `json:"category"`
	Date      string             `json:"date"`      // 2006-01-02
	StartTime string             `json:"startTime"` // 15:04, from the daily grid
	Roster    [RosterSize]string `json:"roster"`
	Invited   map[string]bool    `json:"invited,omitempty"`
	LevelMin  float64            `json:"levelMin"`
	LevelMax  float64            `json:"levelMax"`
	Status    Status             `json:"status"`
	Result    []SetScore         `json:"result,omitempty"`
	CreatorID string             `json:"creatorId"`
	CreatedAt time.Time          `json:"createdAt"`
	PlayedAt  *time.Time         `json:"playedAt,omitempty"`
}

// PushSubscription is one browser push endpoint registered by a player.
type PushSubscription struct {
	ID        int
	PlayerID  string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

// Store is the persistence seam. Lookups return (nil, nil) when the record
// does not exist; every other failure is a storage error the caller must
// surface.
type Store interface {
	CreatePlayer(ctx context.Context, p *Player) error
	GetPlayer(ctx context.Context, id string) (*Player, error)
	SavePlayer(ctx context.Context, p *Player) error
	ListPlayers(ctx context.Context) ([]Player, error)
	// ResetPlayers puts every player back to their own registration seed
	// with zeroed counters, atomically.
	ResetPlayers(ctx context.Context) error

	CreateMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, id string) (*Match, error)
	SaveMatch(ctx context.Context, m *Match) error
	DeleteMatch(ctx context.Context, id string) error
	// ListMatches returns the newest matches first, up to limit (0 = all).
	ListMatches(ctx context.Context, limit int) ([]Match, error)
	// ListPlayedMatches returns played matches ordered by scheduled time
	// ascending (date, start time, id). afterDate, if non-empty, restricts
	// the listing to matches on or after that date.
	ListPlayedMatches(ctx context.Context, afterDate string) ([]Match, error)
	// ListActiveMatches returns every open or closed match.
	ListActiveMatches(ctx context.Context) ([]Match, error)
	// FindActiveMatch returns the open or closed match occupying the given
	// (date, start) pair, if any.
	FindActiveMatch(ctx context.Context, date, start string) (*Match, error)

	// RecordResult persists a played match together with the updated player
	// records in a single transaction. A failure applies nothing.
	RecordResult(ctx context.Context, m *Match, players []*Player) error

	SavePushSubscription(ctx context.Context, sub *PushSubscription) error
	GetPushSubscriptions(ctx context.Context, playerID string) ([]PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	Close() error
}

// SideSets counts sets won by the home side (slots 0 and 1) and the away
// side (slots 2 and 3).
func SideSets(sets []SetScore) (home, away int) {
	for _, set := range sets {
		if set.Home > set.Away {
			home++
		} else if set.Away > set.Home {
			away++
		}
	}
	return home, away
}

// Occupants returns the non-empty roster entries in slot order.
func (m *Match) Occupants() []string {
	var out []string
	for _, id := range m.Roster {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// HasPlayer reports whether id occupies a roster slot.
func (m *Match) HasPlayer(id string) bool {
	for _, slot := range m.Roster {
		if slot == id {
			return true
		}
	}
	return false
}

// IsFull reports whether all roster slots are occupied.
func (m *Match) IsFull() bool {
	return len(m.Occupants()) == RosterSize
}

// Clone returns a deep copy of the match, safe to hand to other goroutines.
func (m *Match) Clone() *Match {
	cp := *m
	if m.Invited != nil {
		cp.Invited = make(map[string]bool, len(m.Invited))
		for id, v := range m.Invited {
			cp.Invited[id] = v
		}
	}
	if m.Result != nil {
		cp.Result = append([]SetScore(nil), m.Result...)
	}
	if m.PlayedAt != nil {
		t := *m.PlayedAt
		cp.PlayedAt = &t
	}
	return &cp
}
