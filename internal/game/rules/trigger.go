package rules

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cellwars/cellwars-server/internal/game/board"
)

// CallbackTrigger reacts to a specific event and produces a callback when its
// condition holds.
type CallbackTrigger struct {
	ID        string
	EventType EventType
	Condition func(Event) bool
	Build     func(Event) Callback
	Once      bool
}

// TriggerManager stores and evaluates callback triggers against events.
// Triggers are evaluated in registration order.
type TriggerManager struct {
	mu       sync.Mutex
	triggers []CallbackTrigger
}

// NewTriggerManager creates an empty trigger manager.
func NewTriggerManager() *TriggerManager {
	return &TriggerManager{}
}

// Register adds a new trigger to the manager.
func (tm *TriggerManager) Register(trigger CallbackTrigger) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}
	tm.triggers = append(tm.triggers, trigger)
	return trigger.ID
}

// Unregister removes a trigger by ID.
func (tm *TriggerManager) Unregister(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for i, t := range tm.triggers {
		if t.ID == id {
			tm.triggers = append(tm.triggers[:i:i], tm.triggers[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered triggers.
func (tm *TriggerManager) Len() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.triggers)
}

// Handle evaluates the event against all registered triggers and returns the
// callbacks they produce, in discovery order.
func (tm *TriggerManager) Handle(event Event) []Callback {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if len(tm.triggers) == 0 {
		return nil
	}

	var (
		callbacks []Callback
		kept      = tm.triggers[:0:0]
	)
	for _, trigger := range tm.triggers {
		fired := false
		if trigger.EventType == event.Type &&
			trigger.Build != nil &&
			(trigger.Condition == nil || trigger.Condition(event)) {
			if cb := trigger.Build(event); cb != nil {
				callbacks = append(callbacks, cb)
				fired = true
			}
		}
		if !(fired && trigger.Once) {
			kept = append(kept, trigger)
		}
	}
	tm.triggers = kept

	return callbacks
}

// MineTriggers returns the triggers that arm mine explosions: a cell landing on
// a mine, and a blast reaching a neighbouring mine. cell looks the position up
// on the current authoritative board.
func MineTriggers(cell func(board.Coord) *board.Cell) []CallbackTrigger {
	hasMine := func(e Event) bool {
		c := cell(e.Position)
		return c != nil && c.HasMine()
	}
	build := func(e Event) Callback {
		return MineExplosion{
			CallbackID: uuid.NewString(),
			ParentID:   e.SourceID,
			Center:     e.Position,
			Placer:     cell(e.Position).Hidden.Owner,
		}
	}
	return []CallbackTrigger{
		{EventType: EventCellLanded, Condition: hasMine, Build: build},
		{EventType: EventBlast, Condition: hasMine, Build: build},
	}
}
