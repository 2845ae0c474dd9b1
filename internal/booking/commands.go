package booking

import (
	"time"

	"github.com/padelclub/padelclub/internal/store"
)

// Command is the interface for all commands sent to the coordinator.
type Command interface {
	command() // marker method
}

// CreateMatch books a slot on the grid. Roster lists additional entrants
// beyond the creator: guest pseudo-ids, or registered players who, on a
// challenge match, start as pending invitees.
type CreateMatch struct {
	CreatorID string
	Category  store.Category
	Date      string
	StartTime string
	LevelMin  float64
	LevelMax  float64
	Roster    []string
	Response  chan CreateMatchResult
}

func (CreateMatch) command() {}

// CreateMatchResult carries the created match back to the caller.
type CreateMatchResult struct {
	Match *store.Match
	Err   error
}

// JoinMatch requests a roster slot for a registered player.
type JoinMatch struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (JoinMatch) command() {}

// LeaveMatch removes a player's slot.
type LeaveMatch struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (LeaveMatch) command() {}

// CloseMatch closes an open match to joins. Creator only.
type CloseMatch struct {
	MatchID  string
	ActorID  string
	Response chan error
}

func (CloseMatch) command() {}

// ReopenMatch reverts a closed match to open. Creator only.
type ReopenMatch struct {
	MatchID  string
	ActorID  string
	Response chan error
}

func (ReopenMatch) command() {}

// RemoveSlot empties a roster slot. Creator or admin only.
type RemoveSlot struct {
	MatchID  string
	ActorID  string
	Index    int
	Response chan error
}

func (RemoveSlot) command() {}

// InvitePlayer adds a pending invitee to a challenge match.
type InvitePlayer struct {
	MatchID  string
	ActorID  string
	PlayerID string
	Response chan error
}

func (InvitePlayer) command() {}

// AcceptInvite confirms a pending invite.
type AcceptInvite struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (AcceptInvite) command() {}

// RejectInvite declines a pending invite, reopening the slot.
type RejectInvite struct {
	MatchID  string
	PlayerID string
	Response chan error
}

func (RejectInvite) command() {}

// CancelMatch deletes an unplayed match. Creator or admin only.
type CancelMatch struct {
	MatchID  string
	ActorID  string
	Response chan error
}

func (CancelMatch) command() {}

// SubmitResult records set scores and hands the match to the ledger.
type SubmitResult struct {
	MatchID  string
	ActorID  string
	Sets     []store.SetScore
	Response chan error
}

func (SubmitResult) command() {}

// ReplayRatings rebuilds every rating from the full match history. While it
// runs no other command is processed, which is exactly the exclusivity a
// replay needs.
type ReplayRatings struct {
	Response chan error
}

func (ReplayRatings) command() {}

// ExpireStale cancels active matches whose slot passed before the cutoff.
// Sent by the maintenance scheduler; Response may be nil.
type ExpireStale struct {
	Before   time.Time
	Response chan error
}

func (ExpireStale) command() {}

// RemindUpcoming emits reminder events for matches starting in the window.
// Sent by the maintenance scheduler.
type RemindUpcoming struct {
	From time.Time
	To   time.Time
}

func (RemindUpcoming) command() {}
