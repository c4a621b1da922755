package rules

import (
	"sync"
	"time"

	"github.com/cellwars/cellwars-server/internal/game/board"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	// EventCellLanded fires when a cell comes to occupy a position, by moving or spawning.
	EventCellLanded EventType = "CELL_LANDED"
	// EventBlast fires for every position hit by an explosion.
	EventBlast EventType = "BLAST"

	EventCellDied       EventType = "CELL_DIED"
	EventShieldPopped   EventType = "SHIELD_POPPED"
	EventMasterDamaged  EventType = "MASTER_DAMAGED"
	EventMineExploded   EventType = "MINE_EXPLODED"
	EventSpellCast      EventType = "SPELL_CAST"
	EventActionApplied  EventType = "ACTION_APPLIED"
	EventActionRejected EventType = "ACTION_REJECTED"
	EventTurnStarted    EventType = "TURN_STARTED"
	EventMatchEnded     EventType = "MATCH_ENDED"
)

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type EventType
	// SourceID is the id of the action application or callback that caused the event.
	SourceID  string
	CellID    string
	Player    board.Player
	Position  board.Coord
	Turn      int
	Amount    int
	ActionKey string
	Timestamp time.Time
	Metadata  map[string]string
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type typedListener struct {
	handle    int
	eventType EventType
	callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
// Listeners run in subscription order.
type EventBus struct {
	mu             sync.RWMutex
	listeners      []typedListener
	typedListeners map[EventType][]typedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		typedListeners: make(map[EventType][]typedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners = append(bus.listeners, typedListener{handle: handle, callback: listener})
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], typedListener{
		handle:    handle,
		eventType: eventType,
		callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.listeners = removeHandle(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		bus.typedListeners[eventType] = removeHandle(listeners, handle)
	}
}

func removeHandle(listeners []typedListener, handle int) []typedListener {
	for i, l := range listeners {
		if l.handle == handle {
			return append(listeners[:i:i], listeners[i+1:]...)
		}
	}
	return listeners
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	all := append([]typedListener(nil), bus.listeners...)
	typed := append([]typedListener(nil), bus.typedListeners[event.Type]...)
	bus.mu.RUnlock()

	for _, l := range all {
		l.callback(event)
	}
	for _, l := range typed {
		l.callback(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, sourceID string, player board.Player, pos board.Coord) Event {
	return Event{
		Type:      eventType,
		SourceID:  sourceID,
		Player:    player,
		Position:  pos,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}
