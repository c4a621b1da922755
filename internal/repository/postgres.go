package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS match_closures (
	match_id    TEXT PRIMARY KEY,
	player_one  TEXT NOT NULL,
	player_two  TEXT NOT NULL,
	reason      TEXT NOT NULL,
	winner_id   TEXT NOT NULL,
	loser_id    TEXT NOT NULL,
	total_turns INTEGER NOT NULL,
	action_log  JSONB NOT NULL,
	stats       JSONB NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS match_closures_player_one ON match_closures (player_one, ended_at DESC);
CREATE INDEX IF NOT EXISTS match_closures_player_two ON match_closures (player_two, ended_at DESC);
`

// PostgresStore persists closures in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres connects to dsn and makes sure the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	stats := pool.Stat()
	logger.Info("database connection pool initialized",
		zap.Int32("total_conns", stats.TotalConns()),
		zap.Int32("idle_conns", stats.IdleConns()),
	)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// SaveClosure inserts or replaces the closure of c.MatchID.
func (s *PostgresStore) SaveClosure(ctx context.Context, c Closure) error {
	if err := c.Validate(); err != nil {
		return err
	}
	log, stats, err := encodeClosure(c)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO match_closures
			(match_id, player_one, player_two, reason, winner_id, loser_id, total_turns, action_log, stats, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (match_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			winner_id = EXCLUDED.winner_id,
			loser_id = EXCLUDED.loser_id,
			total_turns = EXCLUDED.total_turns,
			action_log = EXCLUDED.action_log,
			stats = EXCLUDED.stats,
			ended_at = EXCLUDED.ended_at`,
		c.MatchID, c.PlayerOne, c.PlayerTwo, c.Reason, c.WinnerID, c.LoserID, c.TotalTurns,
		log, stats, c.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save closure %s: %w", c.MatchID, err)
	}
	return nil
}

const postgresColumns = `match_id, player_one, player_two, reason, winner_id, loser_id, total_turns, action_log, stats, ended_at`

func scanPostgres(row pgx.Row) (Closure, error) {
	var (
		c         Closure
		log, stat []byte
	)
	if err := row.Scan(&c.MatchID, &c.PlayerOne, &c.PlayerTwo, &c.Reason, &c.WinnerID, &c.LoserID,
		&c.TotalTurns, &log, &stat, &c.EndedAt); err != nil {
		return Closure{}, err
	}
	if err := decodeClosure(&c, log, stat); err != nil {
		return Closure{}, err
	}
	c.EndedAt = c.EndedAt.UTC()
	return c, nil
}

// GetClosure loads the closure of matchID.
func (s *PostgresStore) GetClosure(ctx context.Context, matchID string) (Closure, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM match_closures WHERE match_id = $1`, matchID)
	c, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Closure{}, ErrNotFound
	}
	if err != nil {
		return Closure{}, fmt.Errorf("get closure %s: %w", matchID, err)
	}
	return c, nil
}

// ListClosuresForUser returns the user's closures, newest first.
func (s *PostgresStore) ListClosuresForUser(ctx context.Context, userID string, limit int) ([]Closure, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresColumns+` FROM match_closures
		WHERE player_one = $1 OR player_two = $1
		ORDER BY ended_at DESC, match_id
		LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list closures: %w", err)
	}
	defer rows.Close()

	var out []Closure
	for rows.Next() {
		c, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("scan closure: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
