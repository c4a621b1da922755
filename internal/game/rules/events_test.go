package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellwars/cellwars-server/internal/game/board"
)

func TestEventBusPublishOrder(t *testing.T) {
	bus := NewEventBus()
	var got []string

	bus.Subscribe(func(e Event) { got = append(got, "all-1:"+string(e.Type)) })
	bus.SubscribeTyped(EventCellDied, func(e Event) { got = append(got, "died") })
	bus.Subscribe(func(e Event) { got = append(got, "all-2:"+string(e.Type)) })

	bus.Publish(NewEvent(EventCellDied, "src", board.PlayerOne, at(1, 1)))
	bus.Publish(NewEvent(EventCellLanded, "src", board.PlayerOne, at(1, 1)))

	assert.Equal(t, []string{
		"all-1:CELL_DIED", "all-2:CELL_DIED", "died",
		"all-1:CELL_LANDED", "all-2:CELL_LANDED",
	}, got)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	count := 0
	h1 := bus.Subscribe(func(Event) { count++ })
	h2 := bus.SubscribeTyped(EventBlast, func(Event) { count++ })

	bus.Unsubscribe(h1)
	bus.Unsubscribe(h2)
	bus.Publish(NewEvent(EventBlast, "", board.PlayerNone, at(0, 0)))

	assert.Zero(t, count)
	assert.Equal(t, -1, bus.Subscribe(nil))
}

func TestEventBusListenerMaySubscribe(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	bus.Subscribe(func(Event) {
		calls++
		if calls == 1 {
			bus.Subscribe(func(Event) { calls++ })
		}
	})

	bus.Publish(NewEvent(EventBlast, "", board.PlayerNone, at(0, 0)))
	assert.Equal(t, 1, calls)
	bus.Publish(NewEvent(EventBlast, "", board.PlayerNone, at(0, 0)))
	assert.Equal(t, 3, calls)
}
