package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newManualClock returns a clock whose time advances only through Sleep.
func newManualClock() *Clock {
	cur := time.Unix(0, 0)
	return NewWithSource(
		func() time.Time { return cur },
		func(d time.Duration) { cur = cur.Add(d) },
	)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name string
		last float64
		new  float64
	}{
		{"zero width", 1.0, 1.0},
		{"one frame", 2.0, 2.016666},
		{"wide window", 0.5, 1.5},
		{"sub-millisecond", 10.0, 10.0004},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window(tt.last, tt.new)
			assert.GreaterOrEqual(t, w.Time, tt.last)
			assert.LessOrEqual(t, w.Time, tt.new)
			assert.InDelta(t, (tt.new-tt.last)/2, w.Error, 1e-12)
			assert.InDelta(t, (tt.last+tt.new)/2, w.Time, 1e-12)
		})
	}
}

func TestWindowsAreContiguous(t *testing.T) {
	samples := []float64{0, 0.001, 0.0025, 0.0025, 0.004}
	for i := 1; i < len(samples); i++ {
		prev := Window(samples[i-1], samples[i])
		if i+1 < len(samples) {
			next := Window(samples[i], samples[i+1])
			// adjacent windows meet exactly at the shared sample
			assert.InDelta(t, samples[i], prev.Time+prev.Error, 1e-12)
			assert.InDelta(t, samples[i], next.Time-next.Error, 1e-12)
		}
	}
}

func TestNowAdvancesWithSleep(t *testing.T) {
	c := newManualClock()
	assert.Equal(t, 0.0, c.Now())
	c.Sleep(250 * time.Millisecond)
	assert.InDelta(t, 0.25, c.Now(), 1e-9)
}

func TestScheduleOnce(t *testing.T) {
	c := newManualClock()
	fired := 0
	c.ScheduleOnce(func(dt float64) { fired++ }, 0.5)

	c.Tick()
	assert.Equal(t, 0, fired, "should not fire before due time")

	c.Sleep(600 * time.Millisecond)
	c.Tick()
	assert.Equal(t, 1, fired)

	c.Sleep(time.Second)
	c.Tick()
	assert.Equal(t, 1, fired, "one-shot must not refire")
	assert.Equal(t, 0, c.Pending())
}

func TestScheduleEveryTick(t *testing.T) {
	c := newManualClock()
	fired := 0
	entry := c.Schedule(func(dt float64) { fired++ })

	c.Tick()
	c.Tick()
	c.Tick()
	assert.Equal(t, 3, fired)

	entry.Cancel()
	c.Tick()
	assert.Equal(t, 3, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestCancelFromWithinCallback(t *testing.T) {
	c := newManualClock()
	fired := 0
	var entry *Entry
	entry = c.Schedule(func(dt float64) {
		fired++
		entry.Cancel()
	})

	c.Tick()
	c.Tick()
	assert.Equal(t, 1, fired)
}

func TestTickReturnsElapsed(t *testing.T) {
	c := newManualClock()

	dt := c.Tick()
	assert.Equal(t, 0.0, dt, "first tick has no previous sample")

	c.Sleep(10 * time.Millisecond)
	dt = c.Tick()
	assert.InDelta(t, 0.01, dt, 1e-9)

	dt = c.Tick()
	assert.InDelta(t, 0.0, dt, 1e-9)
}

func TestCallbackScheduledDuringTickRunsNextTick(t *testing.T) {
	c := newManualClock()
	inner := 0
	c.ScheduleOnce(func(dt float64) {
		c.ScheduleOnce(func(dt float64) { inner++ }, 0)
	}, 0)

	c.Tick()
	assert.Equal(t, 0, inner)
	c.Tick()
	assert.Equal(t, 1, inner)
}

func TestDefaultIdlePolicy(t *testing.T) {
	p := DefaultIdlePolicy()
	require.Greater(t, p.Quantum, time.Duration(0))
	require.Greater(t, p.MinWork, time.Duration(0))
	assert.Less(t, p.Quantum, time.Millisecond, "idle sleep must stay far below a frame")
}
