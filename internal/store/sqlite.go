package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath and runs migrations. When
// strictSlots is true a partial unique index turns the (date, start time)
// pre-check into a hard constraint over active matches.
func NewSQLiteStore(dbPath string, strictSlots bool) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(strictSlots); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate(strictSlots bool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			level REAL NOT NULL,
			points REAL NOT NULL,
			initial_level REAL NOT NULL DEFAULT 2.0,
			initial_points REAL NOT NULL DEFAULT 4.0,
			matches_played INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			streak INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			level_min REAL NOT NULL,
			level_max REAL NOT NULL,
			status TEXT NOT NULL,
			creator_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			played_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_slot ON matches(date, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
		`CREATE TABLE IF NOT EXISTS match_slots (
			match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			pending INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (match_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS match_sets (
			match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			set_no INTEGER NOT NULL,
			home_games INTEGER NOT NULL,
			away_games INTEGER NOT NULL,
			PRIMARY KEY (match_id, set_no)
		)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id TEXT NOT NULL,
			endpoint TEXT NOT NULL UNIQUE,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	if strictSlots {
		migrations = append(migrations,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_slot_unique
			 ON matches(date, start_time) WHERE status IN ('open', 'closed')`)
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint
// failure, e.g. a strict-mode double booking.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreatePlayer inserts a new player record.
func (s *SQLiteStore) CreatePlayer(ctx context.Context, p *Player) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (id, name, level, points, initial_level, initial_points, matches_played, wins, losses, streak, best_streak, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Level, p.Points, p.InitialLevel, p.InitialPoints,
		p.MatchesPlayed, p.Wins, p.Losses,
		p.Streak, p.BestStreak, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetPlayer retrieves a player by id.
func (s *SQLiteStore) GetPlayer(ctx context.Context, id string) (*Player, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, level, points, initial_level, initial_points, matches_played, wins, losses, streak, best_streak, created_at, updated_at
		 FROM players WHERE id = ?`, id)
	return scanPlayer(row)
}

func scanPlayer(row *sql.Row) (*Player, error) {
	var p Player
	err := row.Scan(&p.ID, &p.Name, &p.Level, &p.Points,
		&p.InitialLevel, &p.InitialPoints, &p.MatchesPlayed,
		&p.Wins, &p.Losses, &p.Streak, &p.BestStreak, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := validatePlayer(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func validatePlayer(p *Player) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("player: empty id: %w", ErrMalformed)
	case p.Level < 2.00 || p.Level > 4.00:
		return fmt.Errorf("player %s: level %.2f out of range: %w", p.ID, p.Level, ErrMalformed)
	case p.InitialLevel < 2.00 || p.InitialLevel > 4.00:
		return fmt.Errorf("player %s: initial level %.2f out of range: %w", p.ID, p.InitialLevel, ErrMalformed)
	case p.Points < 0:
		return fmt.Errorf("player %s: negative points: %w", p.ID, ErrMalformed)
	case p.InitialPoints < 0:
		return fmt.Errorf("player %s: negative initial points: %w", p.ID, ErrMalformed)
	case p.BestStreak < 0:
		return fmt.Errorf("player %s: negative best streak: %w", p.ID, ErrMalformed)
	}
	return nil
}

// SavePlayer writes an existing player record.
func (s *SQLiteStore) SavePlayer(ctx context.Context, p *Player) error {
	return savePlayerTx(ctx, s.db, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func savePlayerTx(ctx context.Context, ex execer, p *Player) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE players SET name = ?, level = ?, points = ?, matches_played = ?,
		 wins = ?, losses = ?, streak = ?, best_streak = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Level, p.Points, p.MatchesPlayed, p.Wins, p.Losses,
		p.Streak, p.BestStreak, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("player %s not found", p.ID)
	}
	return nil
}

// ListPlayers returns all players ordered by points descending.
func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, level, points, initial_level, initial_points, matches_played, wins, losses, streak, best_streak, created_at, updated_at
		 FROM players ORDER BY points DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Name, &p.Level, &p.Points,
			&p.InitialLevel, &p.InitialPoints, &p.MatchesPlayed,
			&p.Wins, &p.Losses, &p.Streak, &p.BestStreak, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := validatePlayer(&p); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ResetPlayers rewinds every player to their registration seed in one
// statement.
func (s *SQLiteStore) ResetPlayers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE players SET level = initial_level, points = initial_points,
		 matches_played = 0, wins = 0, losses = 0, streak = 0, best_streak = 0,
		 updated_at = ?`,
		time.Now())
	return err
}

// CreateMatch inserts a match with its roster.
func (s *SQLiteStore) CreateMatch(ctx context.Context, m *Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO matches (id, category, date, start_time, level_min, level_max, status, creator_id, created_at, played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Category, m.Date, m.StartTime, m.LevelMin, m.LevelMax,
		m.Status, m.CreatorID, m.CreatedAt, m.PlayedAt,
	)
	if err != nil {
		return err
	}
	if err := writeSlots(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMatch rewrites a match, its roster and its result.
func (s *SQLiteStore) SaveMatch(ctx context.Context, m *Match) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveMatchTx(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

func saveMatchTx(ctx context.Context, tx *sql.Tx, m *Match) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET category = ?, date = ?, start_time = ?, level_min = ?,
		 level_max = ?, status = ?, creator_id = ?, played_at = ?
		 WHERE id = ?`,
		m.Category, m.Date, m.StartTime, m.LevelMin, m.LevelMax,
		m.Status, m.CreatorID, m.PlayedAt, m.ID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("match %s not found", m.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_slots WHERE match_id = ?`, m.ID); err != nil {
		return err
	}
	if err := writeSlots(ctx, tx, m); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_sets WHERE match_id = ?`, m.ID); err != nil {
		return err
	}
	for i, set := range m.Result {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO match_sets (match_id, set_no, home_games, away_games) VALUES (?, ?, ?, ?)`,
			m.ID, i, set.Home, set.Away)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeSlots(ctx context.Context, tx *sql.Tx, m *Match) error {
	for pos, id := range m.Roster {
		if id == "" {
			continue
		}
		pending := 0
		if m.Invited[id] {
			pending = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO match_slots (match_id, position, player_id, pending) VALUES (?, ?, ?, ?)`,
			m.ID, pos, id, pending)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteMatch removes a match; slots and sets cascade.
func (s *SQLiteStore) DeleteMatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id)
	return err
}

const matchColumns = `id, category, date, start_time, level_min, level_max, status, creator_id, created_at, played_at`

// GetMatch retrieves a match with its roster and result.
func (s *SQLiteStore) GetMatch(ctx context.Context, id string) (*Match, error) {
	var m Match
	err := s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id).Scan(
		&m.ID, &m.Category, &m.Date, &m.StartTime, &m.LevelMin, &m.LevelMax,
		&m.Status, &m.CreatorID, &m.CreatedAt, &m.PlayedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadMatchChildren(ctx, &m); err != nil {
		return nil, err
	}
	if err := validateMatch(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) loadMatchChildren(ctx context.Context, m *Match) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, player_id, pending FROM match_slots WHERE match_id = ? ORDER BY position`, m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var pos, pending int
		var playerID string
		if err := rows.Scan(&pos, &playerID, &pending); err != nil {
			return err
		}
		if pos < 0 || pos >= RosterSize {
			return fmt.Errorf("match %s: slot position %d out of range: %w", m.ID, pos, ErrMalformed)
		}
		m.Roster[pos] = playerID
		if pending != 0 {
			if m.Invited == nil {
				m.Invited = make(map[string]bool)
			}
			m.Invited[playerID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	setRows, err := s.db.QueryContext(ctx,
		`SELECT home_games, away_games FROM match_sets WHERE match_id = ? ORDER BY set_no`, m.ID)
	if err != nil {
		return err
	}
	defer setRows.Close()

	for setRows.Next() {
		var set SetScore
		if err := setRows.Scan(&set.Home, &set.Away); err != nil {
			return err
		}
		m.Result = append(m.Result, set)
	}
	return setRows.Err()
}

func validateMatch(m *Match) error {
	switch m.Status {
	case StatusOpen, StatusClosed, StatusPlayed, StatusCancelled:
	default:
		return fmt.Errorf("match %s: unknown status %q: %w", m.ID, m.Status, ErrMalformed)
	}
	switch m.Category {
	case CategoryFriendly, CategoryChallenge:
	default:
		return fmt.Errorf("match %s: unknown category %q: %w", m.ID, m.Category, ErrMalformed)
	}
	seen := make(map[string]bool)
	for _, id := range m.Roster {
		if id == "" {
			continue
		}
		if seen[id] {
			return fmt.Errorf("match %s: %s occupies two slots: %w", m.ID, id, ErrMalformed)
		}
		seen[id] = true
	}
	if m.Status == StatusPlayed {
		if len(m.Result) == 0 {
			return fmt.Errorf("match %s: played without a result: %w", m.ID, ErrMalformed)
		}
		if len(seen) != RosterSize {
			return fmt.Errorf("match %s: played with %d occupants: %w", m.ID, len(seen), ErrMalformed)
		}
	}
	return nil
}

func (s *SQLiteStore) queryMatches(ctx context.Context, where string, order string, limit int, args ...any) ([]Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY ` + order
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Category, &m.Date, &m.StartTime, &m.LevelMin,
			&m.LevelMax, &m.Status, &m.CreatorID, &m.CreatedAt, &m.PlayedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range matches {
		if err := s.loadMatchChildren(ctx, &matches[i]); err != nil {
			return nil, err
		}
		if err := validateMatch(&matches[i]); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// ListMatches returns the newest matches first.
func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]Match, error) {
	return s.queryMatches(ctx, "", `date DESC, start_time DESC, id`, limit)
}

// ListPlayedMatches returns played matches in scheduled order, the order
// the replay engine consumes them in.
func (s *SQLiteStore) ListPlayedMatches(ctx context.Context, afterDate string) ([]Match, error) {
	if afterDate != "" {
		return s.queryMatches(ctx, `status = 'played' AND date >= ?`, `date, start_time, id`, 0, afterDate)
	}
	return s.queryMatches(ctx, `status = 'played'`, `date, start_time, id`, 0)
}

// ListActiveMatches returns every open or closed match in scheduled order.
func (s *SQLiteStore) ListActiveMatches(ctx context.Context) ([]Match, error) {
	return s.queryMatches(ctx, `status IN ('open', 'closed')`, `date, start_time, id`, 0)
}

// FindActiveMatch returns the active match occupying (date, start), if any.
func (s *SQLiteStore) FindActiveMatch(ctx context.Context, date, start string) (*Match, error) {
	matches, err := s.queryMatches(ctx,
		`date = ? AND start_time = ? AND status IN ('open', 'closed')`, `id`, 1, date, start)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// RecordResult writes the played match and the updated player records in a
// single transaction so a failure applies to nobody.
func (s *SQLiteStore) RecordResult(ctx context.Context, m *Match, players []*Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveMatchTx(ctx, tx, m); err != nil {
		return err
	}
	for _, p := range players {
		if err := savePlayerTx(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SavePushSubscription stores or refreshes a push subscription.
func (s *SQLiteStore) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (player_id, endpoint, p256dh, auth, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		 	player_id = excluded.player_id,
		 	p256dh = excluded.p256dh,
		 	auth = excluded.auth`,
		sub.PlayerID, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt,
	)
	return err
}

// GetPushSubscriptions returns all subscriptions for a player.
func (s *SQLiteStore) GetPushSubscriptions(ctx context.Context, playerID string) ([]PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, endpoint, p256dh, auth, created_at
		 FROM push_subscriptions WHERE player_id = ?`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.ID, &sub.PlayerID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeletePushSubscription removes a subscription by endpoint.
func (s *SQLiteStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return err
}
