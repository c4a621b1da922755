package match

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/cellwars/cellwars-server/internal/errors"
	"github.com/cellwars/cellwars-server/internal/game"
	"github.com/cellwars/cellwars-server/internal/repository"
)

var (
	// ErrCapacity is returned when the server already runs its maximum number of matches.
	ErrCapacity = errors.New("match capacity reached")
	// ErrUserBusy is returned when a user already has a live match.
	ErrUserBusy = errors.New("user already in a match")
)

// ManagerOptions tune a Manager.
type ManagerOptions struct {
	MaxMatches int
	// ReplayDir enables replay recording when set.
	ReplayDir string
}

// Manager owns every match of the process and the user to match index. It is
// the application context handed to the transport.
type Manager struct {
	mu       sync.RWMutex
	matches  map[string]*Match
	byUser   map[string]string
	logger   *zap.Logger
	settings Settings
	store    repository.ClosureStore
	notifier Notifier
	replays  *game.ReplayRecorder
	max      int
}

// NewManager creates a new match manager
func NewManager(logger *zap.Logger, settings Settings, store repository.ClosureStore, notifier Notifier, opts ManagerOptions) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mg := &Manager{
		matches:  make(map[string]*Match),
		byUser:   make(map[string]string),
		logger:   logger,
		settings: settings,
		store:    store,
		notifier: notifier,
		max:      opts.MaxMatches,
	}
	if opts.ReplayDir != "" {
		mg.replays = game.NewReplayRecorder(logger, opts.ReplayDir)
	}
	return mg
}

// CreateMatch creates and opens a match between two users.
func (mg *Manager) CreateMatch(userOne, userTwo string) (*Match, error) {
	if userOne == "" || userTwo == "" || userOne == userTwo {
		return nil, apperrors.New(apperrors.CodeMalformedInput, "two distinct user ids are required")
	}

	mg.mu.Lock()
	if mg.max > 0 && len(mg.matches) >= mg.max {
		mg.mu.Unlock()
		return nil, ErrCapacity
	}
	for _, u := range []string{userOne, userTwo} {
		if id, busy := mg.byUser[u]; busy {
			mg.mu.Unlock()
			return nil, fmt.Errorf("%w: %s is in %s", ErrUserBusy, u, id)
		}
	}

	m := New(uuid.NewString(), userOne, userTwo, mg.settings, Deps{
		Logger:    mg.logger,
		Store:     mg.store,
		Notifier:  mg.notifier,
		Replays:   mg.replays,
		OnCleanup: mg.RemoveMatch,
		OnLeft:    mg.unlink,
	})
	mg.matches[m.ID] = m
	mg.byUser[userOne] = m.ID
	mg.byUser[userTwo] = m.ID
	mg.mu.Unlock()

	m.Open()
	mg.logger.Info("match created",
		zap.String("match_id", m.ID),
		zap.String("player_one", userOne),
		zap.String("player_two", userTwo),
	)
	return m, nil
}

// GetMatch retrieves a match by ID
func (mg *Manager) GetMatch(matchID string) (*Match, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	m, ok := mg.matches[matchID]
	return m, ok
}

// MatchForUser returns the match userID is seated in.
func (mg *Manager) MatchForUser(userID string) (*Match, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	id, ok := mg.byUser[userID]
	if !ok {
		return nil, false
	}
	m, ok := mg.matches[id]
	return m, ok
}

// RemoveMatch drops a match and its user links.
func (mg *Manager) RemoveMatch(matchID string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if _, ok := mg.matches[matchID]; !ok {
		return
	}
	delete(mg.matches, matchID)
	for user, id := range mg.byUser {
		if id == matchID {
			delete(mg.byUser, user)
		}
	}

	mg.logger.Info("match removed", zap.String("match_id", matchID))
}

func (mg *Manager) unlink(matchID, userID string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	if mg.byUser[userID] == matchID {
		delete(mg.byUser, userID)
	}
}

// GetAllMatches returns all matches
func (mg *Manager) GetAllMatches() []*Match {
	mg.mu.RLock()
	defer mg.mu.RUnlock()

	matches := make([]*Match, 0, len(mg.matches))
	for _, m := range mg.matches {
		matches = append(matches, m)
	}
	return matches
}

// GetActiveMatchCount returns the count of matches still being played or waited on
func (mg *Manager) GetActiveMatchCount() int {
	count := 0
	for _, m := range mg.GetAllMatches() {
		if !m.Status().Terminal() {
			count++
		}
	}
	return count
}

// Replays returns the replay recorder, or nil when replays are off.
func (mg *Manager) Replays() *game.ReplayRecorder {
	return mg.replays
}
