package clock

import (
	"time"
)

// Timestamp is a point-in-time estimate in seconds on the experiment
// timebase, with an explicit uncertainty bound. A hardware-confirmed flip
// carries Error 0; an event-time window carries half the window width.
type Timestamp struct {
	Time  float64
	Error float64
}

// Window builds the timestamp for the interval [last, new]: its midpoint,
// with the error set to half the interval width. Every input callback fired
// within one loop iteration receives the same window.
func Window(last, new float64) Timestamp {
	half := (new - last) / 2
	return Timestamp{Time: last + half, Error: half}
}

// IdlePolicy controls the event loop's idle branch: when a tick's elapsed
// time stays under MinWork (effectively no callbacks ran), the loop sleeps
// for Quantum to avoid pegging a core. Latency stays bounded by Quantum.
type IdlePolicy struct {
	MinWork time.Duration
	Quantum time.Duration
}

// DefaultIdlePolicy returns the stock idle policy: treat anything under
// 100µs as an idle iteration and yield for 250µs.
func DefaultIdlePolicy() IdlePolicy {
	return IdlePolicy{
		MinWork: 100 * time.Microsecond,
		Quantum: 250 * time.Microsecond,
	}
}

// Callback is a scheduled function. dt is the time in seconds since the
// previous Tick, mirroring what Tick itself returns.
type Callback func(dt float64)

// Entry is a handle to a scheduled callback.
type Entry struct {
	fn       Callback
	due      float64
	repeat   bool
	canceled bool
}

// Cancel removes the callback from the schedule. Safe to call from within
// the callback itself.
func (e *Entry) Cancel() {
	e.canceled = true
}

// Clock is the process-wide monotonic timebase and the scheduled-callback
// queue drained once per event-loop iteration. All timestamps derive from
// it. It is owned by a single control thread and is not safe for
// concurrent use.
type Clock struct {
	nowFunc func() time.Time
	sleep   func(time.Duration)
	epoch   time.Time

	entries   []*Entry
	lastTick  float64
	hasTicked bool
}

// New returns a clock backed by the system monotonic clock.
func New() *Clock {
	return NewWithSource(time.Now, time.Sleep)
}

// NewWithSource returns a clock with an injected time source and sleep
// function. Tests use this to substitute a zero-latency stub.
func NewWithSource(now func() time.Time, sleep func(time.Duration)) *Clock {
	c := &Clock{nowFunc: now, sleep: sleep}
	c.epoch = c.nowFunc()
	return c
}

// Now returns seconds elapsed since the clock was created.
func (c *Clock) Now() float64 {
	return c.nowFunc().Sub(c.epoch).Seconds()
}

// Sleep suspends the control thread for d using the injected sleep
// function.
func (c *Clock) Sleep(d time.Duration) {
	c.sleep(d)
}

// Schedule registers fn to run on every Tick until canceled.
func (c *Clock) Schedule(fn Callback) *Entry {
	e := &Entry{fn: fn, repeat: true}
	c.entries = append(c.entries, e)
	return e
}

// ScheduleOnce registers fn to run on the first Tick at or after delay
// seconds from now.
func (c *Clock) ScheduleOnce(fn Callback, delay float64) *Entry {
	e := &Entry{fn: fn, due: c.Now() + delay}
	c.entries = append(c.entries, e)
	return e
}

// Tick drains the schedule: every repeating callback runs, and every
// one-shot callback whose due time has elapsed runs and is removed. It
// returns the time in seconds since the previous Tick (0 on the first
// call), which the event loop compares against IdlePolicy.MinWork.
//
// Callbacks may schedule further callbacks; those run from the next Tick
// onward.
func (c *Clock) Tick() float64 {
	now := c.Now()
	dt := 0.0
	if c.hasTicked {
		dt = now - c.lastTick
	}
	c.lastTick = now
	c.hasTicked = true

	n := len(c.entries)
	for i := 0; i < n; i++ {
		e := c.entries[i]
		if e.canceled {
			continue
		}
		if e.repeat {
			e.fn(dt)
			continue
		}
		if e.due <= now {
			e.canceled = true
			e.fn(dt)
		}
	}

	// compact out canceled and fired entries
	kept := c.entries[:0]
	for _, e := range c.entries {
		if !e.canceled {
			kept = append(kept, e)
		}
	}
	c.entries = kept

	return dt
}

// Pending reports the number of live scheduled callbacks.
func (c *Clock) Pending() int {
	n := 0
	for _, e := range c.entries {
		if !e.canceled {
			n++
		}
	}
	return n
}
