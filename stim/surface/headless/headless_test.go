package headless

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoss/go-stim/stim/clock"
	"github.com/avoss/go-stim/stim/surface"
)

func newManualClock() *clock.Clock {
	cur := time.Unix(0, 0)
	return clock.NewWithSource(
		func() time.Time { return cur },
		func(d time.Duration) { cur = cur.Add(d) },
	)
}

func TestFlipConfirmsAtRefreshBoundary(t *testing.T) {
	clk := newManualClock()
	s := New(clk, 60)
	require.NoError(t, s.Open(surface.Config{}))

	const period = 1.0 / 60.0

	s.Draw(true)
	require.NoError(t, s.Swap())
	require.NoError(t, s.FinishPipeline())
	assert.InDelta(t, period, clk.Now(), 1e-9)

	// part-way into the next frame, confirmation lands on the boundary
	clk.Sleep(5 * time.Millisecond)
	s.Draw(true)
	require.NoError(t, s.Swap())
	require.NoError(t, s.FinishPipeline())
	assert.InDelta(t, 2*period, clk.Now(), 1e-9)
	assert.Equal(t, 2, s.Flips())
}

func TestNeedsFlipLatch(t *testing.T) {
	clk := newManualClock()
	s := New(clk, 60)

	assert.False(t, s.NeedsFlip())

	s.Draw(false)
	assert.False(t, s.NeedsFlip(), "clean surface has nothing to flip")

	s.MarkDirty()
	s.Draw(false)
	assert.True(t, s.NeedsFlip())

	require.NoError(t, s.Swap())
	assert.False(t, s.NeedsFlip(), "swap clears the latch")
}

func TestSetClearColorMarksDirty(t *testing.T) {
	clk := newManualClock()
	s := New(clk, 60)

	s.SetClearColor(surface.Color{R: 1, A: 1})
	s.Draw(false)
	assert.True(t, s.NeedsFlip())
}

func TestMaxFlipsRequestsClose(t *testing.T) {
	clk := newManualClock()
	s := New(clk, 60)
	s.SetMaxFlips(2)

	for i := 0; i < 2; i++ {
		assert.False(t, s.ShouldClose())
		s.Draw(true)
		require.NoError(t, s.Swap())
		require.NoError(t, s.FinishPipeline())
	}
	assert.True(t, s.ShouldClose())
}

func TestInjectedEventsDrainOnce(t *testing.T) {
	clk := newManualClock()
	s := New(clk, 60)

	s.Inject(surface.Event{Kind: surface.KeyDown, Key: surface.KeyEvent{Sym: surface.KeySpace, Down: true}})
	s.Inject(surface.Event{Kind: surface.MouseMove, Mouse: surface.MouseEvent{Kind: surface.MouseMove, X: 1}})

	events := s.DispatchEvents()
	require.Len(t, events, 2)
	assert.Equal(t, surface.KeyDown, events[0].Kind)
	assert.Equal(t, surface.MouseMove, events[1].Kind)

	assert.Empty(t, s.DispatchEvents())
}

func TestQuitEventRaisesCloseFlag(t *testing.T) {
	clk := newManualClock()
	s := New(clk, 60)

	s.Inject(surface.Event{Kind: surface.Quit})
	assert.False(t, s.ShouldClose())

	s.DispatchEvents()
	assert.True(t, s.ShouldClose())
}
