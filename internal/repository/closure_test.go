package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cellwars/cellwars-server/internal/config"
)

func sampleClosure(matchID string, endedAt time.Time) Closure {
	return Closure{
		MatchID:    matchID,
		PlayerOne:  "alice",
		PlayerTwo:  "bob",
		Reason:     ReasonVictory,
		WinnerID:   "alice",
		LoserID:    "bob",
		TotalTurns: 7,
		ActionLog: []TurnEntry{
			{Turn: 1, Player: "alice", Actions: []string{"spawn:(1,3)"}},
			{Turn: 2, Player: "bob", Actions: []string{}},
		},
		Stats:   map[string]int{"cells_lost:bob": 2},
		EndedAt: endedAt.UTC().Truncate(time.Millisecond),
	}
}

// exerciseStore runs the behaviour every ClosureStore shares.
func exerciseStore(t *testing.T, store ClosureStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.GetClosure(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	first := sampleClosure(uuid.NewString(), base)
	require.NoError(t, store.SaveClosure(ctx, first))

	got, err := store.GetClosure(ctx, first.MatchID)
	require.NoError(t, err)
	assert.Equal(t, first.Reason, got.Reason)
	assert.Equal(t, first.WinnerID, got.WinnerID)
	assert.Equal(t, first.TotalTurns, got.TotalTurns)
	assert.Equal(t, first.ActionLog, got.ActionLog)
	assert.Equal(t, first.Stats, got.Stats)
	assert.True(t, first.EndedAt.Equal(got.EndedAt))

	// draws carry no winner but still list for both players
	draw := sampleClosure(uuid.NewString(), base.Add(time.Hour))
	draw.Reason = ReasonDraw
	draw.WinnerID, draw.LoserID = "", ""
	require.NoError(t, store.SaveClosure(ctx, draw))

	list, err := store.ListClosuresForUser(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, draw.MatchID, list[0].MatchID, "newest first")

	list, err = store.ListClosuresForUser(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = store.ListClosuresForUser(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	// saving again replaces the record
	first.Reason = ReasonConcede
	require.NoError(t, store.SaveClosure(ctx, first))
	got, err = store.GetClosure(ctx, first.MatchID)
	require.NoError(t, err)
	assert.Equal(t, ReasonConcede, got.Reason)

	assert.Error(t, store.SaveClosure(ctx, Closure{MatchID: "x", Reason: "bored"}))
	assert.Error(t, store.SaveClosure(ctx, Closure{Reason: ReasonDraw}))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	exerciseStore(t, store)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closures.db")
	store, err := OpenSQLite(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "closures.db")
	logger := zaptest.NewLogger(t)

	store, err := OpenSQLite(ctx, path, logger)
	require.NoError(t, err)
	c := sampleClosure("match-1", time.Now())
	require.NoError(t, store.SaveClosure(ctx, c))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path, logger)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.GetClosure(ctx, "match-1")
	require.NoError(t, err)
	assert.Equal(t, c.ActionLog, got.ActionLog)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CELLWARS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CELLWARS_TEST_POSTGRES_DSN not set")
	}
	store, err := OpenPostgres(context.Background(), dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := Open(ctx, config.StorageConfig{Driver: config.DriverNone}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, config.StorageConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "c.db"),
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, config.StorageConfig{Driver: "mysql"}, logger)
	assert.Error(t, err)
}
