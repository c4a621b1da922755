package rules

import (
	"sync"
)

// CallbackQueue is the FIFO of pending callbacks for one action application.
// A callback whose key was ever pushed is refused, so the same trigger is
// never queued twice.
type CallbackQueue struct {
	mu    sync.Mutex
	items []Callback
	seen  map[string]struct{}
}

// NewCallbackQueue creates an empty queue.
func NewCallbackQueue() *CallbackQueue {
	return &CallbackQueue{
		items: make([]Callback, 0, 8),
		seen:  make(map[string]struct{}),
	}
}

// Push appends cb unless its key was seen before. It reports whether cb was queued.
func (q *CallbackQueue) Push(cb Callback) bool {
	if cb == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	key := CallbackKey(cb)
	if _, ok := q.seen[key]; ok {
		return false
	}
	q.seen[key] = struct{}{}
	q.items = append(q.items, cb)
	return true
}

// PushAll queues every callback in order and returns how many were accepted.
func (q *CallbackQueue) PushAll(cbs []Callback) int {
	n := 0
	for _, cb := range cbs {
		if q.Push(cb) {
			n++
		}
	}
	return n
}

// Pop removes the oldest callback.
func (q *CallbackQueue) Pop() (Callback, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cb := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return cb, true
}

// Len returns the number of pending callbacks.
func (q *CallbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns whether nothing is pending.
func (q *CallbackQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Seen reports whether a callback with the same key was ever pushed.
func (q *CallbackQueue) Seen(cb Callback) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.seen[CallbackKey(cb)]
	return ok
}

// Drain pops callbacks until the queue is empty, calling fn for each. fn may
// push further callbacks; they run in the same loop. The first error stops
// the drain and is returned.
func (q *CallbackQueue) Drain(fn func(Callback) error) error {
	for {
		cb, ok := q.Pop()
		if !ok {
			return nil
		}
		if err := fn(cb); err != nil {
			return err
		}
	}
}
