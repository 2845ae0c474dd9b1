package booking

import "github.com/padelclub/padelclub/internal/store"

// Event is the interface for everything the coordinator emits. Matches
// carried by events are deep copies, safe to read from any goroutine.
type Event interface {
	event() // marker method
}

type MatchCreated struct {
	Match *store.Match
}

func (MatchCreated) event() {}

type RosterUpdated struct {
	Match *store.Match
}

func (RosterUpdated) event() {}

// MatchClosed fires when a roster fills up or the creator closes the match.
type MatchClosed struct {
	Match *store.Match
}

func (MatchClosed) event() {}

type MatchReopened struct {
	Match *store.Match
}

func (MatchReopened) event() {}

type InviteSent struct {
	Match    *store.Match
	PlayerID string
}

func (InviteSent) event() {}

type InviteAccepted struct {
	Match    *store.Match
	PlayerID string
}

func (InviteAccepted) event() {}

type InviteRejected struct {
	Match    *store.Match
	PlayerID string
}

func (InviteRejected) event() {}

// MatchCancelled fires when the creator, an admin or the stale sweep
// cancels a match; the match row is already gone.
type MatchCancelled struct {
	Match   *store.Match
	ActorID string
}

func (MatchCancelled) event() {}

// MatchDeleted fires when the last occupant leaves and the match vanishes.
type MatchDeleted struct {
	MatchID string
}

func (MatchDeleted) event() {}

// ResultRecorded fires once a match transitions to played.
type ResultRecorded struct {
	Match *store.Match
}

func (ResultRecorded) event() {}

// RatingsUpdated reports the point deltas the ledger applied for a match.
type RatingsUpdated struct {
	MatchID string
	Deltas  map[string]float64
}

func (RatingsUpdated) event() {}

type ReplayStarted struct{}

func (ReplayStarted) event() {}

type ReplayProgress struct {
	Done  int
	Total int
}

func (ReplayProgress) event() {}

type ReplayFinished struct {
	Total  int
	Failed bool
}

func (ReplayFinished) event() {}

// MatchReminder fires for matches starting within the reminder window.
type MatchReminder struct {
	Match *store.Match
}

func (MatchReminder) event() {}
