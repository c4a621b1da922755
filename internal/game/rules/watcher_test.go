package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellwars/cellwars-server/internal/game/board"
)

type countingWatcher struct {
	*BaseWatcher
	seen int
}

func newCountingWatcher(scope WatcherScope, key string) *countingWatcher {
	return &countingWatcher{BaseWatcher: NewBaseWatcher(scope, key)}
}

func (w *countingWatcher) Watch(e Event) {
	if w.GetScope() == WatcherScopePlayer && e.Player != w.Player() {
		return
	}
	w.seen++
	w.SetCondition(true)
}

func (w *countingWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.seen = 0
}

func TestWatcherRegistryNotifyAndReset(t *testing.T) {
	registry := NewWatcherRegistry()
	bus := NewEventBus()
	registry.Attach(bus)

	match := newCountingWatcher(WatcherScopeMatch, "all")
	turn := newCountingWatcher(WatcherScopeTurn, "turn")
	p1 := newCountingWatcher(WatcherScopePlayer, "mine")
	p1.SetPlayer(board.PlayerOne)
	registry.AddWatcher(match)
	registry.AddWatcher(turn)
	registry.AddWatcher(p1)

	assert.Equal(t, "P1_mine", p1.GetKey())
	assert.Same(t, p1, registry.GetWatcher("P1_mine"))

	bus.Publish(NewEvent(EventCellDied, "", board.PlayerOne, at(0, 0)))
	bus.Publish(NewEvent(EventCellDied, "", board.PlayerTwo, at(0, 1)))

	assert.Equal(t, 2, match.seen)
	assert.Equal(t, 2, turn.seen)
	assert.Equal(t, 1, p1.seen)
	assert.True(t, turn.ConditionMet())

	registry.ResetWatchersByScope(WatcherScopeTurn)
	assert.Zero(t, turn.seen)
	assert.False(t, turn.ConditionMet())
	assert.Equal(t, 2, match.seen)

	registry.RemoveWatcher("all")
	assert.Nil(t, registry.GetWatcher("all"))
}
