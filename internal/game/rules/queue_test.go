package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func explosion(id, parent string, r, c int) MineExplosion {
	return MineExplosion{CallbackID: id, ParentID: parent, Center: at(r, c)}
}

func TestCallbackQueueFIFO(t *testing.T) {
	q := NewCallbackQueue()
	require.True(t, q.Push(explosion("a", "root", 1, 1)))
	require.True(t, q.Push(explosion("b", "root", 2, 2)))

	cb, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", cb.ID())
	cb, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", cb.ID())

	_, ok = q.Pop()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

func TestCallbackQueueDedupsByKindParentAndPosition(t *testing.T) {
	q := NewCallbackQueue()

	assert.True(t, q.Push(explosion("a", "root", 1, 1)))
	assert.False(t, q.Push(explosion("other-id", "root", 1, 1)), "same trigger queued twice")
	assert.True(t, q.Push(explosion("c", "a", 1, 1)), "different parent is a different trigger")

	q.Pop()
	q.Pop()
	assert.False(t, q.Push(explosion("d", "root", 1, 1)), "dedup outlives the pop")
	assert.True(t, q.Seen(explosion("", "root", 1, 1)))
}

func TestCallbackQueueDrainRunsChains(t *testing.T) {
	q := NewCallbackQueue()
	q.Push(explosion("a", "root", 0, 0))

	var order []string
	err := q.Drain(func(cb Callback) error {
		order = append(order, cb.ID())
		if cb.ID() == "a" {
			q.PushAll([]Callback{explosion("b", "a", 0, 1), explosion("c", "a", 1, 0)})
		}
		if cb.ID() == "b" {
			q.Push(explosion("d", "b", 0, 2))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestCallbackQueueDrainStopsOnError(t *testing.T) {
	q := NewCallbackQueue()
	q.Push(explosion("a", "root", 0, 0))
	q.Push(explosion("b", "root", 0, 1))
	boom := errors.New("boom")

	err := q.Drain(func(Callback) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, q.Len())
}
