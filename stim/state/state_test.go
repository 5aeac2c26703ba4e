package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoss/go-stim/stim/clock"
)

func newManualClock() *clock.Clock {
	cur := time.Unix(0, 0)
	return clock.NewWithSource(
		func() time.Time { return cur },
		func(d time.Duration) { cur = cur.Add(d) },
	)
}

type recordingObserver struct {
	entered []string
	done    []string
}

func (o *recordingObserver) NodeEntered(n Node, at float64) {
	o.entered = append(o.entered, n.Name())
}

func (o *recordingObserver) NodeDone(n Node, at float64) {
	o.done = append(o.done, n.Name())
}

func TestLeafRunsExactlyOnceOnEnter(t *testing.T) {
	sc := &Scope{Clock: newManualClock()}
	runs := 0
	leaf := NewLeaf("probe", true, func(sc *Scope) error {
		runs++
		return nil
	})

	require.NoError(t, leaf.Enter(sc))
	assert.Equal(t, 1, runs, "run-on-enter executes inside Enter")
	assert.True(t, leaf.Done())
}

func TestSerialRunsLeavesInOrder(t *testing.T) {
	clk := newManualClock()
	obs := &recordingObserver{}
	sc := &Scope{Clock: clk, Observer: obs}

	var order []string
	s := NewSerial("root")
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Add(NewLeaf(name, true, func(sc *Scope) error {
			order = append(order, name)
			return nil
		}))
	}

	require.NoError(t, s.Enter(sc))
	assert.True(t, s.Done(), "zero-duration leaves complete synchronously")
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []string{"a", "b", "c"}, obs.entered)
	assert.Equal(t, []string{"a", "b", "c"}, obs.done)
	assert.Equal(t, 0, clk.Pending(), "completed serial leaves no schedule behind")
}

func TestSerialWaitsForTimedChild(t *testing.T) {
	clk := newManualClock()
	sc := &Scope{Clock: clk}

	ran := false
	s := NewSerial("root")
	s.Add(NewWait(0.5))
	s.Add(NewLeaf("after", true, func(sc *Scope) error {
		ran = true
		return nil
	}))

	require.NoError(t, s.Enter(sc))
	assert.False(t, s.Done())

	clk.Tick()
	assert.False(t, ran, "leaf must not run before the wait completes")

	clk.Sleep(600 * time.Millisecond)
	for i := 0; i < 3 && !s.Done(); i++ {
		clk.Tick()
	}
	assert.True(t, ran)
	assert.True(t, s.Done())
}

func TestWaitZeroDurationCompletesImmediately(t *testing.T) {
	sc := &Scope{Clock: newManualClock()}
	w := NewWait(0)
	require.NoError(t, w.Enter(sc))
	assert.True(t, w.Done())
}

func TestSerialPropagatesLeafErrorOnEnter(t *testing.T) {
	sc := &Scope{Clock: newManualClock()}
	boom := errors.New("boom")

	s := NewSerial("root")
	s.Add(NewLeaf("bad", true, func(sc *Scope) error { return boom }))

	err := s.Enter(sc)
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Done())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestSerialPropagatesDeferredLeafError(t *testing.T) {
	clk := newManualClock()
	sc := &Scope{Clock: clk}
	boom := errors.New("boom")

	s := NewSerial("root")
	s.Add(NewWait(0.1))
	s.Add(NewLeaf("bad", true, func(sc *Scope) error { return boom }))

	require.NoError(t, s.Enter(sc))
	clk.Sleep(200 * time.Millisecond)
	for i := 0; i < 3 && !s.Done(); i++ {
		clk.Tick()
	}
	assert.True(t, s.Done())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestNestedSerial(t *testing.T) {
	clk := newManualClock()
	sc := &Scope{Clock: clk}

	var order []string
	leaf := func(name string) Node {
		return NewLeaf(name, true, func(sc *Scope) error {
			order = append(order, name)
			return nil
		})
	}

	inner := NewSerial("inner")
	inner.Add(leaf("i1"))
	inner.Add(leaf("i2"))

	outer := NewSerial("outer")
	outer.Add(leaf("o1"))
	outer.Add(inner)
	outer.Add(leaf("o2"))

	require.NoError(t, outer.Enter(sc))
	assert.True(t, outer.Done())
	assert.Equal(t, []string{"o1", "i1", "i2", "o2"}, order)
}
