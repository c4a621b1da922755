package match

import (
	"sync"
	"time"
)

// Countdown is a resettable one-shot timer whose callback runs under the
// owner's lock. Every Start, Stop or Pause bumps a generation number, so a
// firing that was already scheduled when the countdown changed is dropped.
//
// All methods except the expiry path must be called with lock held.
type Countdown struct {
	lock     sync.Locker
	duration time.Duration
	fire     func()

	timer     *time.Timer
	gen       uint64
	running   bool
	deadline  time.Time
	remaining time.Duration
}

// NewCountdown creates a stopped countdown of d that calls fire with lock held.
func NewCountdown(lock sync.Locker, d time.Duration, fire func()) *Countdown {
	return &Countdown{
		lock:      lock,
		duration:  d,
		fire:      fire,
		remaining: d,
	}
}

// Start arms the countdown with its full duration, replacing any pending run.
func (c *Countdown) Start() {
	c.arm(c.duration)
}

// Stop cancels the countdown. A later Resume starts from the full duration.
func (c *Countdown) Stop() {
	c.disarm()
	c.remaining = c.duration
}

// Pause cancels the countdown and keeps the time that was left. A deadline
// that passed while the lock was held is still owed, so the next Resume fires
// right away.
func (c *Countdown) Pause() {
	if !c.running {
		return
	}
	left := time.Until(c.deadline)
	if left <= 0 {
		left = time.Nanosecond
	}
	c.disarm()
	c.remaining = left
}

// Resume re-arms a paused countdown with the time it had left. A countdown
// that already fired stays quiet until the next Start.
func (c *Countdown) Resume() {
	if c.running || c.remaining <= 0 {
		return
	}
	c.arm(c.remaining)
}

// Running reports whether a firing is scheduled.
func (c *Countdown) Running() bool {
	return c.running
}

// Remaining returns the time left, as of now when running.
func (c *Countdown) Remaining() time.Duration {
	if c.running {
		if left := time.Until(c.deadline); left > 0 {
			return left
		}
		return 0
	}
	return c.remaining
}

func (c *Countdown) arm(d time.Duration) {
	c.disarm()
	gen := c.gen
	c.running = true
	c.remaining = d
	c.deadline = time.Now().Add(d)
	c.timer = time.AfterFunc(d, func() { c.expire(gen) })
}

func (c *Countdown) disarm() {
	c.gen++
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Countdown) expire(gen uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if gen != c.gen || !c.running {
		return
	}
	c.running = false
	c.remaining = 0
	c.timer = nil
	c.fire()
}
