// Package vsync pins software events to the display's hardware refresh:
// it calibrates the true flip interval and performs blocking flips whose
// timestamps correspond to the confirmed buffer swap rather than the
// asynchronous submission.
package vsync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avoss/go-stim/stim/clock"
	"github.com/avoss/go-stim/stim/surface"
)

// ErrCalibration is returned when flip-interval sampling collects no
// valid delta, e.g. a display that never confirms distinct flips.
var ErrCalibration = errors.New("vsync: calibration collected no valid flip samples")

const (
	// DefaultSamples and DefaultWarmup are the stock calibration run:
	// 55 flips with the first 5 discarded as warm-up.
	DefaultSamples = 55
	DefaultWarmup  = 5

	// interSampleSleep separates calibration flips. It must stay well
	// under the refresh period of any plausible display (5ms clears
	// 200Hz) so consecutive flips never coalesce.
	interSampleSleep = 5 * time.Millisecond
)

// Synchronizer owns the flip protocol for one surface.
type Synchronizer struct {
	surf surface.Surface
	clk  *clock.Clock

	// FlipBudget bounds the confirmation wait in seconds. A blocking
	// flip that overruns it is logged at warn level mid-run and
	// invalidates the sample during calibration. Zero disables the
	// check. glFinish cannot be interrupted, so this detects overruns
	// rather than preempting them.
	FlipBudget float64

	lastFlip clock.Timestamp
}

// New creates a synchronizer for surf timed against clk.
func New(surf surface.Surface, clk *clock.Clock) *Synchronizer {
	return &Synchronizer{surf: surf, clk: clk}
}

// LastFlip returns the timestamp of the most recently confirmed swap,
// the FlipRecord. Its Error is 0: the time is hardware-confirmed.
func (s *Synchronizer) LastFlip() clock.Timestamp {
	return s.lastFlip
}

// BlockingFlip requests a buffer swap and blocks until the graphics
// pipeline confirms its completion, then records and returns the new
// flip timestamp. When nothing was drawn since the previous flip it is a
// no-op and returns the existing record, so uncommanded flips never
// inflate jitter statistics.
func (s *Synchronizer) BlockingFlip() (clock.Timestamp, error) {
	if !s.surf.NeedsFlip() {
		return s.lastFlip, nil
	}

	start := s.clk.Now()
	if err := s.surf.Swap(); err != nil {
		return s.lastFlip, fmt.Errorf("buffer swap: %w", err)
	}
	if err := s.surf.FinishPipeline(); err != nil {
		return s.lastFlip, fmt.Errorf("pipeline flush: %w", err)
	}
	confirmed := s.clk.Now()

	if s.FlipBudget > 0 && confirmed-start > s.FlipBudget {
		slog.Warn("flip confirmation overran budget",
			"waited", confirmed-start, "budget", s.FlipBudget)
	}

	s.lastFlip = clock.Timestamp{Time: confirmed}
	return s.lastFlip, nil
}

// Calibrate measures the true flip interval: samples forced flips,
// discards the first warmup deltas, and returns the mean of the rest.
// The surface is left redrawn in restore and flipped once. Samples whose
// delta exceeds FlipBudget are discarded as invalid; collecting zero
// valid deltas returns ErrCalibration.
func (s *Synchronizer) Calibrate(samples, warmup int, restore surface.Color) (float64, error) {
	black := surface.Color{A: 1}

	var diffs float64
	count := 0
	var last clock.Timestamp
	haveLast := false

	for i := 0; i < samples; i++ {
		// must draw something or the flip does not happen
		s.surf.SetClearColor(black)
		s.surf.Draw(true)

		cur, err := s.BlockingFlip()
		if err != nil {
			return 0, fmt.Errorf("calibration flip %d: %w", i, err)
		}
		if haveLast && i >= warmup {
			d := cur.Time - last.Time
			if d > 0 && (s.FlipBudget == 0 || d <= s.FlipBudget) {
				diffs += d
				count++
			}
		}
		last = cur
		haveLast = true

		// definitely less than any refresh period
		s.clk.Sleep(interSampleSleep)
	}

	// put the background back
	s.surf.SetClearColor(restore)
	s.surf.Draw(true)
	if _, err := s.BlockingFlip(); err != nil {
		return 0, fmt.Errorf("restoring background: %w", err)
	}

	if count == 0 {
		return 0, ErrCalibration
	}
	return diffs / float64(count), nil
}
