// Package headless provides a simulated display surface for automated
// runs and tests. Flips confirm at fixed refresh-rate boundaries on the
// experiment clock, so calibration against it measures the configured
// refresh period.
package headless

import (
	"log/slog"
	"math"
	"time"

	"github.com/avoss/go-stim/stim/clock"
	"github.com/avoss/go-stim/stim/surface"
)

// Surface implements surface.Surface against a simulated fixed-rate
// display.
type Surface struct {
	clk     *clock.Clock
	period  float64 // seconds per refresh
	opened  bool
	clear   surface.Color
	dirty   bool
	needsFl bool

	flips    int
	maxFlips int
	closeReq bool

	pending []surface.Event
}

// New creates a headless surface confirming flips at refreshHz on clk.
func New(clk *clock.Clock, refreshHz float64) *Surface {
	if refreshHz <= 0 {
		refreshHz = 60
	}
	return &Surface{clk: clk, period: 1 / refreshHz}
}

// SetMaxFlips makes the surface request termination after n confirmed
// flips (0 disables). Mirrors a frame-bounded headless run.
func (s *Surface) SetMaxFlips(n int) {
	s.maxFlips = n
}

// Inject queues an input event for the next DispatchEvents call.
func (s *Surface) Inject(ev surface.Event) {
	s.pending = append(s.pending, ev)
}

// RequestClose raises the external-termination flag, as a window close
// would.
func (s *Surface) RequestClose() {
	s.closeReq = true
}

// Flips reports the number of confirmed flips so far.
func (s *Surface) Flips() int {
	return s.flips
}

func (s *Surface) Open(cfg surface.Config) error {
	s.opened = true
	slog.Info("headless surface initialized", "refresh_hz", 1/s.period)
	return nil
}

func (s *Surface) Close() error {
	s.opened = false
	return nil
}

func (s *Surface) SetClearColor(c surface.Color) {
	s.clear = c
	s.dirty = true
}

func (s *Surface) MarkDirty() {
	s.dirty = true
}

func (s *Surface) Draw(force bool) {
	if !force && !s.dirty {
		return
	}
	s.dirty = false
	s.needsFl = true
}

func (s *Surface) NeedsFlip() bool {
	return s.needsFl
}

func (s *Surface) Swap() error {
	s.needsFl = false
	return nil
}

// FinishPipeline sleeps until the next refresh boundary, simulating the
// wait for hardware swap confirmation.
func (s *Surface) FinishPipeline() error {
	now := s.clk.Now()
	next := math.Ceil(now/s.period) * s.period
	if next <= now {
		next += s.period
	}
	s.clk.Sleep(time.Duration((next - now) * float64(time.Second)))

	s.flips++
	if s.maxFlips > 0 && s.flips >= s.maxFlips {
		s.closeReq = true
	}
	return nil
}

func (s *Surface) DispatchEvents() []surface.Event {
	out := s.pending
	s.pending = nil
	for _, ev := range out {
		if ev.Kind == surface.Quit {
			s.closeReq = true
		}
	}
	return out
}

func (s *Surface) ShouldClose() bool {
	return s.closeReq
}

func (s *Surface) SetMouseVisible(visible bool) {}

var _ surface.Surface = (*Surface)(nil)
