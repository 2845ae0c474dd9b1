package ledger

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padelclub/padelclub/internal/rating"
	"github.com/padelclub/padelclub/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(st, "guest:", log), st
}

func seedPlayer(t *testing.T, st store.Store, p store.Player) {
	t.Helper()
	now := time.Now().UTC()
	p.Name = p.ID
	if p.InitialLevel == 0 {
		p.InitialLevel = p.Level
		p.InitialPoints = p.Points
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	require.NoError(t, st.CreatePlayer(context.Background(), &p))
}

func playedMatch(roster [store.RosterSize]string, sets []store.SetScore) *store.Match {
	now := time.Now().UTC()
	return &store.Match{
		ID:        "m-" + roster[0],
		Category:  store.CategoryFriendly,
		Date:      "2026-09-01",
		StartTime: "18:30",
		Roster:    roster,
		LevelMin:  2.0,
		LevelMax:  4.0,
		Status:    store.StatusPlayed,
		Result:    sets,
		CreatorID: roster[0],
		CreatedAt: now,
		PlayedAt:  &now,
	}
}

// seedPlayedMatch writes a played match to the store so a replay can find
// it.
func seedPlayedMatch(t *testing.T, st store.Store, id, date, start string, roster [store.RosterSize]string, sets []store.SetScore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	m := &store.Match{
		ID:        id,
		Category:  store.CategoryFriendly,
		Date:      date,
		StartTime: start,
		Roster:    roster,
		LevelMin:  2.0,
		LevelMax:  4.0,
		Status:    store.StatusPlayed,
		Result:    sets,
		CreatorID: roster[0],
		CreatedAt: now,
		PlayedAt:  &now,
	}
	require.NoError(t, st.CreateMatch(ctx, m))
	require.NoError(t, st.SaveMatch(ctx, m))
}

func TestApplyResultMatchesPointFormula(t *testing.T) {
	led, st := newTestLedger(t)
	ctx := context.Background()

	seedPlayer(t, st, store.Player{ID: "alice", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})
	seedPlayer(t, st, store.Player{ID: "bob", Level: 2.80, Points: rating.CumulativeThreshold(2.80)})
	seedPlayer(t, st, store.Player{ID: "carol", Level: 3.20, Points: rating.CumulativeThreshold(3.20)})
	seedPlayer(t, st, store.Player{ID: "dave", Level: 2.90, Points: rating.CumulativeThreshold(2.90)})

	m := playedMatch([store.RosterSize]string{"alice", "bob", "carol", "dave"},
		[]store.SetScore{{Home: 6, Away: 3}, {Home: 6, Away: 4}})
	require.NoError(t, st.CreateMatch(ctx, m))

	deltas, err := led.ApplyResult(ctx, m)
	require.NoError(t, err)
	require.Len(t, deltas, 4)

	// Every delta must equal the point formula evaluated at pre-match
	// levels, home winning 2-0.
	assert.InDelta(t, rating.PointsDelta(rating.MatchInput{
		Level: 3.00, RivalLevel1: 3.20, RivalLevel2: 2.90, PartnerLevel: 2.80,
		Won: true, Margin: 2,
	}), deltas["alice"], 1e-9)
	assert.InDelta(t, rating.PointsDelta(rating.MatchInput{
		Level: 2.80, RivalLevel1: 3.20, RivalLevel2: 2.90, PartnerLevel: 3.00,
		Won: true, Margin: 2,
	}), deltas["bob"], 1e-9)
	assert.InDelta(t, rating.PointsDelta(rating.MatchInput{
		Level: 3.20, RivalLevel1: 3.00, RivalLevel2: 2.80, PartnerLevel: 2.90,
		Won: false, Margin: 2,
	}), deltas["carol"], 1e-9)
	assert.InDelta(t, rating.PointsDelta(rating.MatchInput{
		Level: 2.90, RivalLevel1: 3.00, RivalLevel2: 2.80, PartnerLevel: 3.20,
		Won: false, Margin: 2,
	}), deltas["dave"], 1e-9)

	// Persisted state reflects the deltas and the derived level.
	alice, err := st.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	wantPoints := rating.CumulativeThreshold(3.00) + deltas["alice"]
	assert.InDelta(t, wantPoints, alice.Points, 1e-9)
	assert.Equal(t, rating.LevelForPoints(wantPoints, 3.00), alice.Level)
	assert.Equal(t, 1, alice.MatchesPlayed)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, 1, alice.Streak)
	assert.Equal(t, 1, alice.BestStreak)
}

func TestApplyResultGuestPlaysAtBoundsMidpoint(t *testing.T) {
	led, st := newTestLedger(t)
	ctx := context.Background()

	seedPlayer(t, st, store.Player{ID: "alice", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})
	seedPlayer(t, st, store.Player{ID: "carol", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})
	seedPlayer(t, st, store.Player{ID: "dave", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})

	m := playedMatch([store.RosterSize]string{"alice", "guest:pal", "carol", "dave"},
		[]store.SetScore{{Home: 6, Away: 2}})
	m.LevelMin, m.LevelMax = 2.5, 3.5
	require.NoError(t, st.CreateMatch(ctx, m))

	deltas, err := led.ApplyResult(ctx, m)
	require.NoError(t, err)

	// The guest accrues nothing; everyone else sees it at the midpoint of
	// the match bounds.
	assert.Len(t, deltas, 3)
	assert.NotContains(t, deltas, "guest:pal")
	assert.InDelta(t, rating.PointsDelta(rating.MatchInput{
		Level: 3.00, RivalLevel1: 3.00, RivalLevel2: 3.00, PartnerLevel: 3.00,
		Won: true, Margin: 1,
	}), deltas["alice"], 1e-9)
}

func TestApplyResultFloorsPointsAtZero(t *testing.T) {
	led, st := newTestLedger(t)
	ctx := context.Background()

	seedPlayer(t, st, store.Player{ID: "alice", Level: 2.00, Points: 1.0})
	seedPlayer(t, st, store.Player{ID: "bob", Level: 2.00, Points: rating.BasePoints})
	seedPlayer(t, st, store.Player{ID: "carol", Level: 2.00, Points: rating.BasePoints})
	seedPlayer(t, st, store.Player{ID: "dave", Level: 2.00, Points: rating.BasePoints})

	m := playedMatch([store.RosterSize]string{"alice", "bob", "carol", "dave"},
		[]store.SetScore{{Home: 0, Away: 6}, {Home: 1, Away: 6}})
	require.NoError(t, st.CreateMatch(ctx, m))

	_, err := led.ApplyResult(ctx, m)
	require.NoError(t, err)

	alice, err := st.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0.0, alice.Points)
	assert.Equal(t, rating.MinLevel, alice.Level)
}

func TestApplyResultExtendsStreaks(t *testing.T) {
	led, st := newTestLedger(t)
	ctx := context.Background()

	seedPlayer(t, st, store.Player{ID: "alice", Level: 3.00, Points: rating.CumulativeThreshold(3.00), Streak: 2, BestStreak: 5})
	seedPlayer(t, st, store.Player{ID: "bob", Level: 3.00, Points: rating.CumulativeThreshold(3.00), Streak: -3, BestStreak: 1})
	seedPlayer(t, st, store.Player{ID: "carol", Level: 3.00, Points: rating.CumulativeThreshold(3.00), Streak: 4, BestStreak: 4})
	seedPlayer(t, st, store.Player{ID: "dave", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})

	m := playedMatch([store.RosterSize]string{"alice", "bob", "carol", "dave"},
		[]store.SetScore{{Home: 6, Away: 3}})
	require.NoError(t, st.CreateMatch(ctx, m))

	_, err := led.ApplyResult(ctx, m)
	require.NoError(t, err)

	alice, _ := st.GetPlayer(ctx, "alice")
	assert.Equal(t, 3, alice.Streak)
	assert.Equal(t, 5, alice.BestStreak)

	// A win after losses starts a fresh run.
	bob, _ := st.GetPlayer(ctx, "bob")
	assert.Equal(t, 1, bob.Streak)

	// A loss after wins flips to -1.
	carol, _ := st.GetPlayer(ctx, "carol")
	assert.Equal(t, -1, carol.Streak)
	assert.Equal(t, 4, carol.BestStreak)

	dave, _ := st.GetPlayer(ctx, "dave")
	assert.Equal(t, -1, dave.Streak)
}

func TestApplyResultRejectsIncompleteMatches(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	m := playedMatch([store.RosterSize]string{"alice", "bob", "carol", "dave"}, nil)
	_, err := led.ApplyResult(ctx, m)
	assert.Error(t, err)

	m = playedMatch([store.RosterSize]string{"alice", "bob", "carol", ""},
		[]store.SetScore{{Home: 6, Away: 3}})
	_, err = led.ApplyResult(ctx, m)
	assert.Error(t, err)

	m = playedMatch([store.RosterSize]string{"alice", "bob", "carol", "dave"},
		[]store.SetScore{{Home: 6, Away: 3}})
	m.Status = store.StatusOpen
	_, err = led.ApplyResult(ctx, m)
	assert.Error(t, err)
}

func TestApplyResultUnknownPlayerAppliesNothing(t *testing.T) {
	led, st := newTestLedger(t)
	ctx := context.Background()

	seedPlayer(t, st, store.Player{ID: "alice", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})
	seedPlayer(t, st, store.Player{ID: "bob", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})
	seedPlayer(t, st, store.Player{ID: "carol", Level: 3.00, Points: rating.CumulativeThreshold(3.00)})

	m := playedMatch([store.RosterSize]string{"alice", "bob", "carol", "ghost"},
		[]store.SetScore{{Home: 6, Away: 3}})
	require.NoError(t, st.CreateMatch(ctx, m))

	_, err := led.ApplyResult(ctx, m)
	require.Error(t, err)

	alice, err := st.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, rating.CumulativeThreshold(3.00), alice.Points, 1e-9)
	assert.Equal(t, 0, alice.MatchesPlayed)
}

func TestReplayAllRewindsToRegistrationSeeds(t *testing.T) {
	led, st := newTestLedger(t)
	ctx := context.Background()

	// Current ratings have drifted away from what the history justifies;
	// the replay must discard them and restart from each player's own seed.
	seedPlayer(t, st, store.Player{ID: "alice", Level: 3.70, Points: rating.CumulativeThreshold(3.70),
		InitialLevel: 3.00, InitialPoints: rating.CumulativeThreshold(3.00)})
	seedPlayer(t, st, store.Player{ID: "bob", Level: 2.40, Points: rating.CumulativeThreshold(2.40),
		InitialLevel: rating.MinLevel, InitialPoints: rating.BasePoints})
	seedPlayer(t, st, store.Player{ID: "carol", Level: 3.10, Points: rating.CumulativeThreshold(3.10),
		InitialLevel: 2.80, InitialPoints: rating.CumulativeThreshold(2.80)})
	seedPlayer(t, st, store.Player{ID: "dave", Level: 2.90, Points: rating.CumulativeThreshold(2.90),
		InitialLevel: rating.MinLevel, InitialPoints: rating.BasePoints})

	roster := [store.RosterSize]string{"alice", "bob", "carol", "dave"}
	seedPlayedMatch(t, st, "m1", "2026-09-01", "18:30", roster,
		[]store.SetScore{{Home: 6, Away: 3}, {Home: 6, Away: 4}})
	seedPlayedMatch(t, st, "m2", "2026-09-02", "20:00", roster,
		[]store.SetScore{{Home: 2, Away: 6}, {Home: 4, Away: 6}})

	var reports [][2]int
	require.NoError(t, led.ReplayAll(ctx, func(done, total int) {
		reports = append(reports, [2]int{done, total})
	}))
	require.NotEmpty(t, reports)
	assert.Equal(t, [2]int{2, 2}, reports[len(reports)-1])

	// Now compute the expected state by hand: start each player at their
	// seed, then the two matches in scheduled order against a fresh store.
	want, wantErr := replayByHand(t)
	require.NoError(t, wantErr)
	for id, wantP := range want {
		got, err := st.GetPlayer(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, wantP.Points, got.Points, 1e-9, id)
		assert.Equal(t, wantP.Level, got.Level, id)
		assert.Equal(t, wantP.MatchesPlayed, got.MatchesPlayed, id)
		assert.Equal(t, wantP.Streak, got.Streak, id)
	}

	// Replays are deterministic: running again lands on the same state.
	first, err := st.ListPlayers(ctx)
	require.NoError(t, err)
	require.NoError(t, led.ReplayAll(ctx, nil))
	second, err := st.ListPlayers(ctx)
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.InDelta(t, first[i].Points, second[i].Points, 1e-9, first[i].ID)
		assert.Equal(t, first[i].Level, second[i].Level, first[i].ID)
	}
}

// replayByHand applies the same two-match history on a separate store,
// starting every player at their registration seed.
func replayByHand(t *testing.T) (map[string]*store.Player, error) {
	t.Helper()
	led, st := newTestLedger(t)
	ctx := context.Background()

	seeds := map[string]float64{
		"alice": 3.00,
		"bob":   rating.MinLevel,
		"carol": 2.80,
		"dave":  rating.MinLevel,
	}
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		seedPlayer(t, st, store.Player{ID: id, Level: seeds[id], Points: rating.CumulativeThreshold(seeds[id])})
	}

	roster := [store.RosterSize]string{"alice", "bob", "carol", "dave"}
	seedPlayedMatch(t, st, "m1", "2026-09-01", "18:30", roster,
		[]store.SetScore{{Home: 6, Away: 3}, {Home: 6, Away: 4}})
	seedPlayedMatch(t, st, "m2", "2026-09-02", "20:00", roster,
		[]store.SetScore{{Home: 2, Away: 6}, {Home: 4, Away: 6}})

	matches, err := st.ListPlayedMatches(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if _, err := led.ApplyResult(ctx, &matches[i]); err != nil {
			return nil, err
		}
	}

	out := make(map[string]*store.Player)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		p, err := st.GetPlayer(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func TestNextStreak(t *testing.T) {
	assert.Equal(t, 1, nextStreak(0, true))
	assert.Equal(t, 3, nextStreak(2, true))
	assert.Equal(t, 1, nextStreak(-4, true))
	assert.Equal(t, -1, nextStreak(0, false))
	assert.Equal(t, -3, nextStreak(-2, false))
	assert.Equal(t, -1, nextStreak(5, false))
}
