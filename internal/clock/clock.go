// Package clock implements the server's monotonic millisecond clock and the
// fixed-tempo scheduler that drives serverUpdate/buildWorldstate, the way
// the teacher's gameLoop wraps a time.Ticker around the simulation step but
// at the spec's finer 5ms/33ms cadence instead of Netrek's 100ms tick.
package clock

import "time"

// Tick durations from spec.md §5 and §4.7.
const (
	UpdateInterval     = 5 * time.Millisecond
	WorldstateInterval = 33 * time.Millisecond
)

// Clock tracks two running totals: GameMillis, which pauses when the match
// is paused, and TotalMillis, which never pauses.
type Clock struct {
	start       time.Time
	last        time.Time
	gameMillis  int64
	totalMillis int64
	paused      bool
}

// New creates a clock seeded to 0, anchored to the current wall-clock instant.
func New() *Clock {
	now := time.Now()
	return &Clock{start: now, last: now}
}

// Advance moves both totals forward by the elapsed wall-clock delta since the
// last call (or since New, on the first call), honoring Pause.
func (c *Clock) Advance() (deltaMillis int64) {
	now := time.Now()
	delta := now.Sub(c.last).Milliseconds()
	c.last = now
	if delta < 0 {
		delta = 0
	}
	c.totalMillis += delta
	if !c.paused {
		c.gameMillis += delta
		return delta
	}
	return 0
}

// GameMillis returns the current paused-aware game clock.
func (c *Clock) GameMillis() int64 { return c.gameMillis }

// TotalMillis returns the current never-paused clock.
func (c *Clock) TotalMillis() int64 { return c.totalMillis }

// SetPaused toggles whether GameMillis advances on subsequent Advance calls.
func (c *Clock) SetPaused(p bool) { c.paused = p }

// Paused reports the current pause state.
func (c *Clock) Paused() bool { return c.paused }

// Scheduler gates the 33ms worldstate build inside the faster 5ms tick, so
// ticks coalesce under load instead of queuing up redundant builds.
type Scheduler struct {
	nextWorldstate int64
}

// ShouldBuildWorldstate reports whether a worldstate build is due at the
// given game-millis instant, and advances the internal gate if so.
func (s *Scheduler) ShouldBuildWorldstate(gameMillis int64) bool {
	if gameMillis < s.nextWorldstate {
		return false
	}
	s.nextWorldstate = gameMillis + WorldstateInterval.Milliseconds()
	return true
}
