package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS match_closures (
	match_id    TEXT PRIMARY KEY,
	player_one  TEXT NOT NULL,
	player_two  TEXT NOT NULL,
	reason      TEXT NOT NULL,
	winner_id   TEXT NOT NULL,
	loser_id    TEXT NOT NULL,
	total_turns INTEGER NOT NULL,
	action_log  TEXT NOT NULL,
	stats       TEXT NOT NULL,
	ended_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS match_closures_player_one ON match_closures (player_one, ended_at);
CREATE INDEX IF NOT EXISTS match_closures_player_two ON match_closures (player_two, ended_at);
`

// SQLiteStore persists closures in a SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps sqlite from reporting busy under concurrent closures
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Info("sqlite closure store ready", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveClosure inserts or replaces the closure of c.MatchID.
func (s *SQLiteStore) SaveClosure(ctx context.Context, c Closure) error {
	if err := c.Validate(); err != nil {
		return err
	}
	log, stats, err := encodeClosure(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_closures
			(match_id, player_one, player_two, reason, winner_id, loser_id, total_turns, action_log, stats, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO UPDATE SET
			reason = excluded.reason,
			winner_id = excluded.winner_id,
			loser_id = excluded.loser_id,
			total_turns = excluded.total_turns,
			action_log = excluded.action_log,
			stats = excluded.stats,
			ended_at = excluded.ended_at`,
		c.MatchID, c.PlayerOne, c.PlayerTwo, c.Reason, c.WinnerID, c.LoserID, c.TotalTurns,
		string(log), string(stats), toMillis(c.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("save closure %s: %w", c.MatchID, err)
	}
	return nil
}

const sqliteColumns = `match_id, player_one, player_two, reason, winner_id, loser_id, total_turns, action_log, stats, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (Closure, error) {
	var (
		c         Closure
		log, stat string
		endedAt   int64
	)
	if err := row.Scan(&c.MatchID, &c.PlayerOne, &c.PlayerTwo, &c.Reason, &c.WinnerID, &c.LoserID,
		&c.TotalTurns, &log, &stat, &endedAt); err != nil {
		return Closure{}, err
	}
	if err := decodeClosure(&c, []byte(log), []byte(stat)); err != nil {
		return Closure{}, err
	}
	c.EndedAt = fromMillis(endedAt)
	return c, nil
}

// GetClosure loads the closure of matchID.
func (s *SQLiteStore) GetClosure(ctx context.Context, matchID string) (Closure, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM match_closures WHERE match_id = ?`, matchID)
	c, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Closure{}, ErrNotFound
	}
	if err != nil {
		return Closure{}, fmt.Errorf("get closure %s: %w", matchID, err)
	}
	return c, nil
}

// ListClosuresForUser returns the user's closures, newest first.
func (s *SQLiteStore) ListClosuresForUser(ctx context.Context, userID string, limit int) ([]Closure, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM match_closures
		WHERE player_one = ? OR player_two = ?
		ORDER BY ended_at DESC, match_id
		LIMIT ?`, userID, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list closures: %w", err)
	}
	defer rows.Close()

	var out []Closure
	for rows.Next() {
		c, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan closure: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
