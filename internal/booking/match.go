// Package booking implements the match lifecycle: the state machine that
// takes a booked court slot from an open roster through to a recorded
// result, and the coordinator that serializes every mutation.
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/padelclub/padelclub/internal/store"
)

// Rules holds the club policy needed by the pure lifecycle transitions.
// Every method checks first and mutates only on success, so a rejected
// operation leaves the match exactly as it was.
type Rules struct {
	// GuestPrefix marks roster entries that are non-rated guest
	// placeholders rather than registered player ids.
	GuestPrefix string
}

// IsGuest reports whether a roster entry is a guest pseudo-id.
func (r Rules) IsGuest(id string) bool {
	return r.GuestPrefix != "" && strings.HasPrefix(id, r.GuestPrefix)
}

// Join puts p into the first empty slot. The match closes when the roster
// becomes full.
func (r Rules) Join(m *store.Match, p *store.Player) error {
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if p.Level < m.LevelMin || p.Level > m.LevelMax {
		return fmt.Errorf("%w: level %.2f not in [%.2f, %.2f]",
			ErrIneligibleLevel, p.Level, m.LevelMin, m.LevelMax)
	}
	if m.IsFull() {
		return ErrFull
	}
	if m.HasPlayer(p.ID) {
		return ErrAlreadyJoined
	}
	// A manually closed match offers no seats even with slots free.
	if m.Status == store.StatusClosed {
		return ErrFull
	}

	r.fillFirstEmpty(m, p.ID)
	if m.IsFull() {
		m.Status = store.StatusClosed
	}
	return nil
}

// Leave removes playerID's slot. It reports deleted=true when the roster
// emptied, in which case the match must be removed rather than saved.
// Otherwise the match reverts to open and, if the leaver was the creator,
// ownership passes to the first remaining non-guest occupant.
func (r Rules) Leave(m *store.Match, playerID string) (deleted bool, err error) {
	if m.Status == store.StatusPlayed {
		return false, ErrAlreadyPlayed
	}
	if !m.HasPlayer(playerID) {
		return false, fmt.Errorf("%w: player %s is not on the roster", ErrNotFound, playerID)
	}

	r.clearSlot(m, playerID)
	if len(m.Occupants()) == 0 {
		return true, nil
	}

	m.Status = store.StatusOpen
	if m.CreatorID == playerID {
		for _, id := range m.Occupants() {
			if !r.IsGuest(id) {
				m.CreatorID = id
				break
			}
		}
	}
	return false, nil
}

// Close closes an unplayed match to further joins. Creator only; closing an
// already closed match is a no-op.
func (r Rules) Close(m *store.Match, actorID string) error {
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if actorID != m.CreatorID {
		return fmt.Errorf("%w: only the creator may close a match", ErrUnauthorized)
	}
	m.Status = store.StatusClosed
	return nil
}

// Reopen reverts a closed match to open. Creator only.
func (r Rules) Reopen(m *store.Match, actorID string) error {
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if actorID != m.CreatorID {
		return fmt.Errorf("%w: only the creator may reopen a match", ErrUnauthorized)
	}
	m.Status = store.StatusOpen
	return nil
}

// RemoveSlot empties the given roster slot and reverts the match to open.
// Creator or admin only. Reports deleted=true when the roster emptied.
func (r Rules) RemoveSlot(m *store.Match, actorID string, admin bool, index int) (removedID string, deleted bool, err error) {
	if m.Status == store.StatusPlayed {
		return "", false, ErrAlreadyPlayed
	}
	if actorID != m.CreatorID && !admin {
		return "", false, fmt.Errorf("%w: only the creator or an admin may remove a slot", ErrUnauthorized)
	}
	if index < 0 || index >= store.RosterSize {
		return "", false, fmt.Errorf("slot index %d out of range", index)
	}
	removedID = m.Roster[index]
	if removedID == "" {
		return "", false, fmt.Errorf("%w: slot %d is empty", ErrNotFound, index)
	}

	r.clearSlot(m, removedID)
	if len(m.Occupants()) == 0 {
		return removedID, true, nil
	}

	m.Status = store.StatusOpen
	if m.CreatorID == removedID {
		for _, id := range m.Occupants() {
			if !r.IsGuest(id) {
				m.CreatorID = id
				break
			}
		}
	}
	return removedID, false, nil
}

// Invite places p on the roster with a pending flag. Challenge matches
// only; creator only. The invitee passes the same gates as a join.
func (r Rules) Invite(m *store.Match, actorID string, p *store.Player) error {
	if m.Category != store.CategoryChallenge {
		return fmt.Errorf("invites only apply to challenge matches")
	}
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if actorID != m.CreatorID {
		return fmt.Errorf("%w: only the creator may invite", ErrUnauthorized)
	}
	if p.Level < m.LevelMin || p.Level > m.LevelMax {
		return fmt.Errorf("%w: level %.2f not in [%.2f, %.2f]",
			ErrIneligibleLevel, p.Level, m.LevelMin, m.LevelMax)
	}
	if m.IsFull() {
		return ErrFull
	}
	if m.HasPlayer(p.ID) {
		return ErrAlreadyJoined
	}

	r.fillFirstEmpty(m, p.ID)
	if m.Invited == nil {
		m.Invited = make(map[string]bool)
	}
	m.Invited[p.ID] = true
	if m.IsFull() {
		m.Status = store.StatusClosed
	}
	return nil
}

// AcceptInvite clears playerID's pending flag; the player stays rostered.
func (r Rules) AcceptInvite(m *store.Match, playerID string) error {
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if !m.Invited[playerID] {
		return fmt.Errorf("%w: no pending invite for %s", ErrNotFound, playerID)
	}
	delete(m.Invited, playerID)
	return nil
}

// RejectInvite removes playerID from both the roster and the pending set,
// reopening the slot. Reports deleted=true when the roster emptied.
func (r Rules) RejectInvite(m *store.Match, playerID string) (deleted bool, err error) {
	if m.Status == store.StatusPlayed {
		return false, ErrAlreadyPlayed
	}
	if !m.Invited[playerID] {
		return false, fmt.Errorf("%w: no pending invite for %s", ErrNotFound, playerID)
	}

	r.clearSlot(m, playerID)
	if len(m.Occupants()) == 0 {
		return true, nil
	}
	m.Status = store.StatusOpen
	return false, nil
}

// Cancel checks that actorID may cancel the match. The caller performs the
// actual deletion.
func (r Rules) Cancel(m *store.Match, actorID string, admin bool) error {
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if actorID != m.CreatorID && !admin {
		return fmt.Errorf("%w: only the creator or an admin may cancel", ErrUnauthorized)
	}
	return nil
}

// SubmitResult records the set scores and transitions the match to played,
// after which it is immutable. The actor must be an occupant or an admin.
func (r Rules) SubmitResult(m *store.Match, actorID string, admin bool, sets []store.SetScore, now time.Time) error {
	if m.Status == store.StatusPlayed {
		return ErrAlreadyPlayed
	}
	if !m.HasPlayer(actorID) && !admin {
		return fmt.Errorf("%w: only an occupant or an admin may submit a result", ErrUnauthorized)
	}
	if !m.IsFull() {
		return ErrNotFull
	}
	if err := validateSets(sets); err != nil {
		return err
	}

	m.Result = append([]store.SetScore(nil), sets...)
	m.Status = store.StatusPlayed
	m.PlayedAt = &now
	return nil
}

func validateSets(sets []store.SetScore) error {
	if len(sets) == 0 {
		return fmt.Errorf("a result needs at least one set")
	}
	for i, set := range sets {
		if set.Home < 0 || set.Away < 0 {
			return fmt.Errorf("set %d: negative games", i+1)
		}
		if set.Home == set.Away {
			return fmt.Errorf("set %d: a set cannot be drawn", i+1)
		}
	}
	home, away := store.SideSets(sets)
	if home == away {
		return fmt.Errorf("result has no winner (%d-%d sets)", home, away)
	}
	return nil
}

func (r Rules) fillFirstEmpty(m *store.Match, id string) {
	for i, slot := range m.Roster {
		if slot == "" {
			m.Roster[i] = id
			return
		}
	}
}

func (r Rules) clearSlot(m *store.Match, id string) {
	for i, slot := range m.Roster {
		if slot == id {
			m.Roster[i] = ""
		}
	}
	delete(m.Invited, id)
}
