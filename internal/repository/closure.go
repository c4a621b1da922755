package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cellwars/cellwars-server/internal/config"
)

// Closure reasons.
const (
	ReasonVictory     = "victory"
	ReasonDraw        = "draw"
	ReasonConcede     = "concede"
	ReasonLeft        = "left"
	ReasonInactive    = "inactive"
	ReasonFatigue     = "fatigue"
	ReasonNeverJoined = "never-joined"
)

// ErrNotFound is returned when no closure exists for a match.
var ErrNotFound = errors.New("closure not found")

// TurnEntry is one turn of the action log.
type TurnEntry struct {
	Turn    int      `json:"turn"`
	Player  string   `json:"player"`
	Actions []string `json:"actions"`
}

// Closure is the record kept for every match that ended or was aborted.
// WinnerID and LoserID are empty for a draw or an unpenalized abort.
type Closure struct {
	MatchID    string
	PlayerOne  string
	PlayerTwo  string
	Reason     string
	WinnerID   string
	LoserID    string
	TotalTurns int
	ActionLog  []TurnEntry
	Stats      map[string]int
	EndedAt    time.Time
}

// Validate checks the fields every store requires.
func (c Closure) Validate() error {
	if c.MatchID == "" {
		return fmt.Errorf("match id is required")
	}
	switch c.Reason {
	case ReasonVictory, ReasonDraw, ReasonConcede, ReasonLeft, ReasonInactive, ReasonFatigue, ReasonNeverJoined:
	default:
		return fmt.Errorf("unknown closure reason %q", c.Reason)
	}
	return nil
}

// ClosureStore persists closure records.
type ClosureStore interface {
	SaveClosure(ctx context.Context, c Closure) error
	GetClosure(ctx context.Context, matchID string) (Closure, error)
	// ListClosuresForUser returns the user's most recent closures, newest first.
	ListClosuresForUser(ctx context.Context, userID string, limit int) ([]Closure, error)
	Close() error
}

// Open returns the store cfg selects.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ClosureStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN, logger)
	case config.DriverNone, "":
		logger.Info("closure records kept in memory only")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func encodeClosure(c Closure) (log []byte, stats []byte, err error) {
	if c.ActionLog == nil {
		c.ActionLog = []TurnEntry{}
	}
	if log, err = json.Marshal(c.ActionLog); err != nil {
		return nil, nil, fmt.Errorf("encode action log: %w", err)
	}
	if c.Stats == nil {
		c.Stats = map[string]int{}
	}
	if stats, err = json.Marshal(c.Stats); err != nil {
		return nil, nil, fmt.Errorf("encode stats: %w", err)
	}
	return log, stats, nil
}

func decodeClosure(c *Closure, log, stats []byte) error {
	if err := json.Unmarshal(log, &c.ActionLog); err != nil {
		return fmt.Errorf("decode action log: %w", err)
	}
	if err := json.Unmarshal(stats, &c.Stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}

// MemoryStore keeps closures in process. Used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	closures map[string]Closure
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{closures: make(map[string]Closure)}
}

// SaveClosure stores c, replacing any earlier record for the match.
func (s *MemoryStore) SaveClosure(ctx context.Context, c Closure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closures[c.MatchID] = c
	return nil
}

// GetClosure returns the closure of matchID.
func (s *MemoryStore) GetClosure(ctx context.Context, matchID string) (Closure, error) {
	if err := ctx.Err(); err != nil {
		return Closure{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.closures[matchID]
	if !ok {
		return Closure{}, ErrNotFound
	}
	return c, nil
}

// ListClosuresForUser returns the user's closures, newest first.
func (s *MemoryStore) ListClosuresForUser(ctx context.Context, userID string, limit int) ([]Closure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []Closure
	for _, c := range s.closures {
		if c.PlayerOne == userID || c.PlayerTwo == userID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
