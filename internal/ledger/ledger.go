// Package ledger applies completed match results to player ratings and can
// rebuild every rating from scratch by replaying the full match history.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/padelclub/padelclub/internal/rating"
	"github.com/padelclub/padelclub/internal/store"
)

// progressEvery is how many replayed matches pass between progress reports.
const progressEvery = 50

// Ledger owns every write to a player's rating fields. It must only ever be
// driven from a single goroutine at a time (the booking coordinator), which
// is what keeps read-modify-write cycles on the same player from
// interleaving.
type Ledger struct {
	store       store.Store
	guestPrefix string
	log         *logrus.Entry
}

// New creates a Ledger. Roster entries starting with guestPrefix are guest
// placeholders: they never accrue rating.
func New(st store.Store, guestPrefix string, log *logrus.Logger) *Ledger {
	return &Ledger{
		store:       st,
		guestPrefix: guestPrefix,
		log:         log.WithField("component", "ledger"),
	}
}

func (l *Ledger) isGuest(id string) bool {
	return l.guestPrefix != "" && strings.HasPrefix(id, l.guestPrefix)
}

// ApplyResult computes and persists the rating change for every rated
// occupant of a played match. The match and all player updates are written
// in one transaction: a storage failure applies to nobody, never to two of
// four players. Returns the per-player point deltas.
func (l *Ledger) ApplyResult(ctx context.Context, m *store.Match) (map[string]float64, error) {
	if m.Status != store.StatusPlayed || len(m.Result) == 0 {
		return nil, fmt.Errorf("match %s has no recorded result", m.ID)
	}
	if !m.IsFull() {
		return nil, fmt.Errorf("match %s roster is not full", m.ID)
	}

	// Load everyone first so every calculation sees pre-match levels.
	players := make(map[string]*store.Player)
	for _, id := range m.Occupants() {
		if l.isGuest(id) {
			continue
		}
		p, err := l.store.GetPlayer(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading player %s: %w", id, err)
		}
		if p == nil {
			return nil, fmt.Errorf("match %s references unknown player %s", m.ID, id)
		}
		players[id] = p
	}

	levels := make(map[string]float64, store.RosterSize)
	for _, id := range m.Occupants() {
		if p, ok := players[id]; ok {
			levels[id] = p.Level
		} else {
			// Guests play at the level the match was arranged for.
			levels[id] = (m.LevelMin + m.LevelMax) / 2
		}
	}

	homeSets, awaySets := store.SideSets(m.Result)
	margin := homeSets - awaySets
	if margin < 0 {
		margin = -margin
	}

	now := time.Now()
	deltas := make(map[string]float64)
	var updated []*store.Player

	for slot, id := range m.Roster {
		p, ok := players[id]
		if !ok {
			continue // guest
		}

		home := slot < 2
		won := home == (homeSets > awaySets)
		partner := m.Roster[partnerSlot(slot)]
		opp1, opp2 := opponentSlots(slot)

		delta := rating.PointsDelta(rating.MatchInput{
			Level:        p.Level,
			RivalLevel1:  levels[m.Roster[opp1]],
			RivalLevel2:  levels[m.Roster[opp2]],
			PartnerLevel: levels[partner],
			Won:          won,
			Margin:       margin,
			Experience:   p.MatchesPlayed,
			Streak:       p.Streak,
		})

		p.Points = p.Points + delta
		if p.Points < 0 {
			p.Points = 0
		}
		p.Level = rating.LevelForPoints(p.Points, p.Level)
		p.Streak = nextStreak(p.Streak, won)
		if p.Streak > p.BestStreak {
			p.BestStreak = p.Streak
		}
		p.MatchesPlayed++
		if won {
			p.Wins++
		} else {
			p.Losses++
		}
		p.UpdatedAt = now

		deltas[id] = delta
		updated = append(updated, p)
	}

	if err := l.store.RecordResult(ctx, m, updated); err != nil {
		return nil, fmt.Errorf("recording result for match %s: %w", m.ID, err)
	}

	l.log.WithFields(logrus.Fields{
		"match":   m.ID,
		"players": len(updated),
	}).Debug("applied match result to ratings")

	return deltas, nil
}

// nextStreak extends a same-sign run or starts a new one.
func nextStreak(streak int, won bool) int {
	if won {
		if streak >= 0 {
			return streak + 1
		}
		return 1
	}
	if streak <= 0 {
		return streak - 1
	}
	return -1
}

func partnerSlot(slot int) int {
	// Slots pair up 0-1 and 2-3.
	return slot ^ 1
}

func opponentSlots(slot int) (int, int) {
	if slot < 2 {
		return 2, 3
	}
	return 0, 1
}

// ReplayAll rebuilds every rating by rewinding each player to their
// registration seed and reprocessing the full played-match history in
// scheduled order, strictly sequentially.
// The point calculation is order-dependent, so this ordering is a
// correctness requirement, not an optimization. Because each step is
// deterministic and per-match application is transactional, a replay that
// fails partway leaves a valid prefix of history applied and can simply be
// re-run from scratch.
//
// The caller must guarantee no live ApplyResult runs concurrently; driving
// the replay through the booking coordinator provides that.
func (l *Ledger) ReplayAll(ctx context.Context, progress func(done, total int)) error {
	matches, err := l.store.ListPlayedMatches(ctx, "")
	if err != nil {
		return fmt.Errorf("listing played matches: %w", err)
	}

	l.log.WithField("matches", len(matches)).Info("replaying full match history")

	if err := l.store.ResetPlayers(ctx); err != nil {
		return fmt.Errorf("resetting players: %w", err)
	}

	for i := range matches {
		if _, err := l.ApplyResult(ctx, &matches[i]); err != nil {
			return fmt.Errorf("replay stopped at match %d/%d: %w", i+1, len(matches), err)
		}
		if progress != nil && ((i+1)%progressEvery == 0 || i+1 == len(matches)) {
			progress(i+1, len(matches))
		}
	}

	l.log.WithField("matches", len(matches)).Info("replay finished")
	return nil
}
