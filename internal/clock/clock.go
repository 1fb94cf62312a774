// Package clock keeps the authoritative two-sided game clock of a match.
//
// Remaining time is derived lazily from the injected clockwork.Clock: nothing
// ticks inside the Clock itself, callers Read or Switch and the elapsed wall
// time since the last anchor is charged to the active side.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/park285/mill-arena/internal/board"
)

// State is the running state of the clock.
type State string

const (
	StatePaused  State = "paused"
	StateRunning State = "running"
	StateExpired State = "expired"
)

// Times is a point-in-time reading of both sides.
type Times struct {
	White time.Duration
	Black time.Duration
}

// Of returns the remaining time of side c.
func (t Times) Of(c board.Color) time.Duration {
	if c == board.Black {
		return t.Black
	}
	return t.White
}

// Snapshot is the serializable clock view sent to clients.
type Snapshot struct {
	WhiteMs   int64  `json:"white_ms"`
	BlackMs   int64  `json:"black_ms"`
	Active    string `json:"active"`
	State     State  `json:"state"`
	Increment int64  `json:"increment_ms"`
	Switches  int    `json:"switches"`
}

type Clock struct {
	mu        sync.Mutex
	clk       clockwork.Clock
	remaining [3]time.Duration
	increment time.Duration
	active    board.Color
	state     State
	anchor    time.Time
	switches  int
}

// New returns a paused clock with white active.
func New(clk clockwork.Clock, initial, increment time.Duration) *Clock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	c := &Clock{
		clk:       clk,
		increment: increment,
		active:    board.White,
		state:     StatePaused,
		anchor:    clk.Now(),
	}
	c.remaining[board.White] = initial
	c.remaining[board.Black] = initial
	return c
}

// Read returns both sides' remaining time without mutating the clock.
func (c *Clock) Read() Times {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(c.clk.Now())
}

func (c *Clock) readLocked(now time.Time) Times {
	t := Times{White: c.remaining[board.White], Black: c.remaining[board.Black]}
	if c.state != StateRunning {
		return t
	}
	elapsed := now.Sub(c.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	left := c.remaining[c.active] - elapsed
	if left < 0 {
		left = 0
	}
	if c.active == board.Black {
		t.Black = left
	} else {
		t.White = left
	}
	return t
}

// settle charges elapsed time to the active side and moves the anchor to now.
func (c *Clock) settleLocked(now time.Time) {
	if c.state == StateRunning {
		t := c.readLocked(now)
		c.remaining[board.White] = t.White
		c.remaining[board.Black] = t.Black
		if c.remaining[c.active] <= 0 {
			c.remaining[c.active] = 0
			c.state = StateExpired
		}
	}
	c.anchor = now
}

// Switch hands the move to next. The side that just moved is credited the
// increment when the clock was running and at least one switch already happened.
// It returns false when the clock has expired, in which case nothing is credited.
func (c *Clock) Switch(next board.Color) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateExpired {
		return false
	}
	running := c.state == StateRunning
	c.settleLocked(c.clk.Now())
	if c.state == StateExpired {
		return false
	}
	prev := c.active
	if running && c.increment > 0 && c.switches > 0 && prev != next {
		c.remaining[prev] += c.increment
	}
	c.active = next
	c.switches++
	return true
}

// Pause stops the clock, keeping the time already consumed.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return
	}
	c.settleLocked(c.clk.Now())
	if c.state == StateRunning {
		c.state = StatePaused
	}
}

// Resume starts the clock from now. Expired clocks stay expired.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return
	}
	c.state = StateRunning
	c.anchor = c.clk.Now()
}

// Expired reports whether the active side ran out of time, latching the state.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.settleLocked(c.clk.Now())
	}
	return c.state == StateExpired
}

// Active returns the side whose time is running.
func (c *Clock) Active() board.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Berserk halves side's remaining time.
func (c *Clock) Berserk(side board.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side != board.White && side != board.Black {
		return
	}
	c.settleLocked(c.clk.Now())
	c.remaining[side] /= 2
}

// Snapshot returns the current reading in client form.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.readLocked(c.clk.Now())
	return Snapshot{
		WhiteMs:   t.White.Milliseconds(),
		BlackMs:   t.Black.Milliseconds(),
		Active:    c.active.String(),
		State:     c.state,
		Increment: c.increment.Milliseconds(),
		Switches:  c.switches,
	}
}
