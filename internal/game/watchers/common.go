package watchers

import (
	"github.com/cellwars/cellwars-server/internal/game/board"
	"github.com/cellwars/cellwars-server/internal/game/rules"
)

// TurnLog is what one side did during one turn.
type TurnLog struct {
	Turn    int
	Player  board.Player
	Actions []string
}

// ActionLogWatcher keeps the per-turn action log that goes into the closure
// record. A turn appears as soon as it starts, even if nothing is played.
type ActionLogWatcher struct {
	*rules.BaseWatcher
	turns []TurnLog
}

// NewActionLogWatcher creates a new action log watcher.
func NewActionLogWatcher() *ActionLogWatcher {
	return &ActionLogWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeMatch, "ActionLogWatcher"),
	}
}

// Watch implements the Watcher interface.
func (w *ActionLogWatcher) Watch(event rules.Event) {
	switch event.Type {
	case rules.EventTurnStarted:
		w.entry(event.Turn, event.Player)
	case rules.EventActionApplied:
		if event.ActionKey == "" {
			return
		}
		e := w.entry(event.Turn, event.Player)
		e.Actions = append(e.Actions, event.ActionKey)
		w.SetCondition(true)
	}
}

func (w *ActionLogWatcher) entry(turn int, p board.Player) *TurnLog {
	if n := len(w.turns); n > 0 && w.turns[n-1].Turn == turn {
		return &w.turns[n-1]
	}
	w.turns = append(w.turns, TurnLog{Turn: turn, Player: p})
	return &w.turns[len(w.turns)-1]
}

// Reset clears the watcher's state.
func (w *ActionLogWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.turns = nil
}

// Log returns a copy of the log in turn order.
func (w *ActionLogWatcher) Log() []TurnLog {
	out := make([]TurnLog, len(w.turns))
	for i, t := range w.turns {
		out[i] = TurnLog{Turn: t.Turn, Player: t.Player, Actions: append([]string(nil), t.Actions...)}
	}
	return out
}

// TotalActions returns the number of logged actions.
func (w *ActionLogWatcher) TotalActions() int {
	total := 0
	for _, t := range w.turns {
		total += len(t.Actions)
	}
	return total
}

// CasualtyWatcher counts cells lost per side.
type CasualtyWatcher struct {
	*rules.BaseWatcher
	lost          map[board.Player]int
	masterDamage  map[board.Player]int
	minesExploded int
}

// NewCasualtyWatcher creates a new casualty watcher.
func NewCasualtyWatcher() *CasualtyWatcher {
	return &CasualtyWatcher{
		BaseWatcher:  rules.NewBaseWatcher(rules.WatcherScopeMatch, "CasualtyWatcher"),
		lost:         make(map[board.Player]int),
		masterDamage: make(map[board.Player]int),
	}
}

// Watch implements the Watcher interface.
func (w *CasualtyWatcher) Watch(event rules.Event) {
	switch event.Type {
	case rules.EventCellDied:
		w.lost[event.Player]++
		w.SetCondition(true)
	case rules.EventMasterDamaged:
		w.masterDamage[event.Player]++
	case rules.EventMineExploded:
		w.minesExploded++
	}
}

// Reset clears the watcher's state.
func (w *CasualtyWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.lost = make(map[board.Player]int)
	w.masterDamage = make(map[board.Player]int)
	w.minesExploded = 0
}

// Lost returns how many cells p has lost.
func (w *CasualtyWatcher) Lost(p board.Player) int {
	return w.lost[p]
}

// MasterDamage returns how many hits p's master has taken.
func (w *CasualtyWatcher) MasterDamage(p board.Player) int {
	return w.masterDamage[p]
}

// MinesExploded returns the number of mines that went off.
func (w *CasualtyWatcher) MinesExploded() int {
	return w.minesExploded
}

// SpellsCastWatcher tracks the spells each side cast during the current turn.
type SpellsCastWatcher struct {
	*rules.BaseWatcher
	spellsCast map[board.Player][]rules.SpellID
}

// NewSpellsCastWatcher creates a new spells cast watcher.
func NewSpellsCastWatcher() *SpellsCastWatcher {
	return &SpellsCastWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeTurn, "SpellsCastWatcher"),
		spellsCast:  make(map[board.Player][]rules.SpellID),
	}
}

// Watch implements the Watcher interface.
func (w *SpellsCastWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventSpellCast {
		return
	}
	spell := event.Metadata["spell"]
	if spell == "" || !event.Player.Valid() {
		return
	}
	w.spellsCast[event.Player] = append(w.spellsCast[event.Player], rules.SpellID(spell))
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *SpellsCastWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.spellsCast = make(map[board.Player][]rules.SpellID)
}

// GetSpellsCast returns the spells p cast this turn.
func (w *SpellsCastWatcher) GetSpellsCast(p board.Player) []rules.SpellID {
	return w.spellsCast[p]
}

// GetCount returns the number of spells p cast this turn.
func (w *SpellsCastWatcher) GetCount(p board.Player) int {
	return len(w.spellsCast[p])
}

// Standard returns a registry holding the watchers every match runs.
func Standard() (*rules.WatcherRegistry, *ActionLogWatcher, *CasualtyWatcher) {
	registry := rules.NewWatcherRegistry()
	log := NewActionLogWatcher()
	casualties := NewCasualtyWatcher()
	registry.AddWatcher(log)
	registry.AddWatcher(casualties)
	registry.AddWatcher(NewSpellsCastWatcher())
	return registry, log, casualties
}
