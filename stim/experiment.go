// Package stim is a real-time, hardware-synchronized experiment runtime:
// it presents timed stimuli on a display surface, captures input events,
// and records timestamps for stimulus onsets, inputs, and state
// transitions with sub-millisecond uncertainty bounds.
package stim

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/avoss/go-stim/stim/clock"
	"github.com/avoss/go-stim/stim/explog"
	"github.com/avoss/go-stim/stim/state"
	"github.com/avoss/go-stim/stim/surface"
	"github.com/avoss/go-stim/stim/vsync"
)

const (
	stateLogName = "state.yaml"
	expLogName   = "exp.yaml"
)

// Config holds run configuration. Constructor defaults come from
// DefaultConfig; cmd/stim merges command-line flags over them, so a flag
// always overrides a constructor value.
type Config struct {
	Subject     string
	DataDir     string
	Name        string
	Fullscreen  bool
	Width       int32
	Height      int32
	VSync       bool
	Background  surface.Color
	ScreenIndex int
	Info        string
	NoCSV       bool

	Idle clock.IdlePolicy

	// FlipBudget bounds the blocking-flip confirmation wait in seconds.
	FlipBudget float64

	CalibrationSamples int
	CalibrationWarmup  int
}

// DefaultConfig returns the stock configuration: subject test000, an
// 800x600 vsynced window, black background, data under data/<subject>.
func DefaultConfig() Config {
	return Config{
		Subject:            "test000",
		DataDir:            "data",
		Name:               "stim",
		Width:              800,
		Height:             600,
		VSync:              true,
		Background:         surface.Color{A: 1},
		Idle:               clock.DefaultIdlePolicy(),
		FlipBudget:         4.0 / 60.0,
		CalibrationSamples: vsync.DefaultSamples,
		CalibrationWarmup:  vsync.DefaultWarmup,
	}
}

// KeyCallback receives a key event together with the event-time window
// of the loop iteration that observed it.
type KeyCallback func(ev surface.KeyEvent, et clock.Timestamp)

// MouseCallback receives a mouse event together with the event-time
// window of the loop iteration that observed it.
type MouseCallback func(ev surface.MouseEvent, et clock.Timestamp)

// Experiment is the root scheduling node and the controller of a run: it
// owns the surface, the clock, the display synchronizer, the variable
// store, and the two append-only log streams. One control thread drives
// everything; nothing here is safe for concurrent use.
type Experiment struct {
	state.Serial

	cfg  Config
	surf surface.Surface
	clk  *clock.Clock
	sync *vsync.Synchronizer

	vars map[string]any

	keyCallbacks   []KeyCallback
	mouseCallbacks []MouseCallback

	eventTime    clock.Timestamp
	flipInterval float64

	subjDir   string
	stateLog  *explog.Writer
	expLog    *explog.Writer
	extraLogs map[string]*explog.Writer

	nodeEnterTimes map[state.Node]float64
	logWriteErrors int
}

// New creates a controller for cfg on surf, backed by the system clock.
// It creates the subject directory and opens both log streams; any
// failure here is fatal, no subject-facing content has been shown yet.
func New(cfg Config, surf surface.Surface) (*Experiment, error) {
	return NewWithClock(cfg, surf, clock.New())
}

// NewWithClock is New with an injected clock, for tests and simulated
// surfaces that must share the timebase.
func NewWithClock(cfg Config, surf surface.Surface, clk *clock.Clock) (*Experiment, error) {
	if cfg.Subject == "" {
		return nil, errors.New("stim: subject id must not be empty")
	}

	subjDir := filepath.Join(cfg.DataDir, cfg.Subject)
	if err := os.MkdirAll(subjDir, 0755); err != nil {
		return nil, fmt.Errorf("creating subject directory: %w", err)
	}

	stateLog, err := explog.Open(filepath.Join(subjDir, stateLogName))
	if err != nil {
		return nil, err
	}
	expLog, err := explog.Open(filepath.Join(subjDir, expLogName))
	if err != nil {
		stateLog.Close()
		return nil, err
	}

	e := &Experiment{
		Serial:         *state.NewSerial(cfg.Name),
		cfg:            cfg,
		surf:           surf,
		clk:            clk,
		sync:           vsync.New(surf, clk),
		vars:           map[string]any{},
		subjDir:        subjDir,
		stateLog:       stateLog,
		expLog:         expLog,
		extraLogs:      map[string]*explog.Writer{},
		nodeEnterTimes: map[state.Node]float64{},
	}
	e.sync.FlipBudget = cfg.FlipBudget
	return e, nil
}

// Clock returns the run's timebase.
func (e *Experiment) Clock() *clock.Clock { return e.clk }

// SubjectDir returns the per-subject data directory.
func (e *Experiment) SubjectDir() string { return e.subjDir }

// EventTime returns the event-time window of the current loop iteration.
func (e *Experiment) EventTime() clock.Timestamp { return e.eventTime }

// LastFlip returns the FlipRecord of the most recent confirmed swap.
func (e *Experiment) LastFlip() clock.Timestamp { return e.sync.LastFlip() }

// FlipInterval returns the calibrated refresh period in seconds. Zero
// before Run has calibrated.
func (e *Experiment) FlipInterval() float64 { return e.flipInterval }

// LogWriteErrors reports how many log appends failed mid-run.
func (e *Experiment) LogWriteErrors() int { return e.logWriteErrors }

// Var reads a variable from the store.
func (e *Experiment) Var(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// OnKey appends a key callback. Callbacks fire in registration order,
// all with the same event-time window within one iteration.
func (e *Experiment) OnKey(cb KeyCallback) {
	e.keyCallbacks = append(e.keyCallbacks, cb)
}

// OnMouse appends a mouse callback.
func (e *Experiment) OnMouse(cb MouseCallback) {
	e.mouseCallbacks = append(e.mouseCallbacks, cb)
}

// Run executes the experiment: opens the surface, calibrates the flip
// interval, performs the baseline draw+flip, enters the root node, and
// drives the event loop until the root reports done or the surface
// requests termination. Log streams are finalized on both paths.
func (e *Experiment) Run() error {
	scfg := surface.Config{
		Title:       e.cfg.Name,
		Width:       e.cfg.Width,
		Height:      e.cfg.Height,
		Fullscreen:  e.cfg.Fullscreen,
		VSync:       e.cfg.VSync,
		ScreenIndex: e.cfg.ScreenIndex,
	}
	if err := e.surf.Open(scfg); err != nil {
		return fmt.Errorf("creating display surface: %w", err)
	}
	defer e.surf.Close()

	e.surf.SetClearColor(e.cfg.Background)
	e.surf.SetMouseVisible(false)

	interval, err := e.sync.Calibrate(e.cfg.CalibrationSamples, e.cfg.CalibrationWarmup, e.cfg.Background)
	if err != nil {
		return fmt.Errorf("flip interval calibration: %w", err)
	}
	e.flipInterval = interval
	slog.Info("monitor flip interval calibrated",
		"interval_s", interval, "hz", 1/interval)

	// baseline: one forced draw and flip before any state runs
	e.surf.Draw(true)
	if _, err := e.sync.BlockingFlip(); err != nil {
		return fmt.Errorf("baseline flip: %w", err)
	}

	sc := &state.Scope{Clock: e.clk, Observer: e}
	rootEnter := e.clk.Now()
	if err := e.Enter(sc); err != nil {
		return errors.Join(fmt.Errorf("entering root state: %w", err), e.finalize())
	}

	e.loop()

	// the tree notifies children; the root's own record is ours to write
	e.appendRecord(e.stateLog, map[string]any{
		"name":       e.Name(),
		"enter_time": rootEnter,
		"done_time":  e.clk.Now(),
	})

	runErr := e.Err()
	if finErr := e.finalize(); finErr != nil {
		runErr = errors.Join(runErr, finErr)
	}
	return runErr
}

// loop is the poll-driven event/callback loop. Each iteration computes
// the event-time window from consecutive clock samples, drains surface
// input into the callback registries, drains due scheduled callbacks,
// and sleeps one quantum only when the tick did no measurable work.
func (e *Experiment) loop() {
	lastTime := e.clk.Now()
	minWork := e.cfg.Idle.MinWork.Seconds()

	for !e.Done() && !e.surf.ShouldClose() {
		newTime := e.clk.Now()
		e.eventTime = clock.Window(lastTime, newTime)

		for _, ev := range e.surf.DispatchEvents() {
			e.dispatch(ev)
		}

		dt := e.clk.Tick()

		if dt < minWork {
			e.clk.Sleep(e.cfg.Idle.Quantum)
		}

		lastTime = newTime
	}
}

func (e *Experiment) dispatch(ev surface.Event) {
	switch ev.Kind {
	case surface.KeyDown, surface.KeyUp:
		for _, cb := range e.keyCallbacks {
			cb(ev.Key, e.eventTime)
		}
	case surface.MouseMove, surface.MousePress, surface.MouseRelease,
		surface.MouseDrag, surface.MouseScroll:
		for _, cb := range e.mouseCallbacks {
			cb(ev.Mouse, e.eventTime)
		}
	}
}

// finalize flushes both streams, converts them to CSV unless disabled,
// and closes everything including per-node extra log streams.
func (e *Experiment) finalize() error {
	var errs []error

	flush := func(w *explog.Writer) {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	flush(e.stateLog)
	flush(e.expLog)
	for _, w := range e.extraLogs {
		flush(w)
	}

	if !e.cfg.NoCSV {
		for _, w := range []*explog.Writer{e.stateLog, e.expLog} {
			src := w.Name()
			dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".csv"
			if _, err := explog.YAMLToCSV(src, dst); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := e.stateLog.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.expLog.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, w := range e.extraLogs {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NodeEntered implements state.Observer.
func (e *Experiment) NodeEntered(n state.Node, at float64) {
	e.nodeEnterTimes[n] = at
}

// NodeDone implements state.Observer: one state-log record per node
// activation, unless the node opted out.
func (e *Experiment) NodeDone(n state.Node, at float64) {
	enter := e.nodeEnterTimes[n]
	delete(e.nodeEnterTimes, n)
	if !n.SaveLog() {
		return
	}
	e.appendRecord(e.stateLog, map[string]any{
		"name":       n.Name(),
		"enter_time": enter,
		"done_time":  at,
	})
}

// appendRecord writes one record, reporting rather than propagating
// failures: once a run is underway, losing a log record is preferable to
// interrupting stimulus presentation.
func (e *Experiment) appendRecord(w *explog.Writer, rec map[string]any) {
	if err := w.Append(rec); err != nil {
		e.logWriteErrors++
		slog.Error("log write failed", "stream", w.Name(), "error", err)
	}
}

// extraLog returns the named per-subject log stream, opening it
// append-only on first use and keeping it open for the run.
func (e *Experiment) extraLog(name string) (*explog.Writer, error) {
	if w, ok := e.extraLogs[name]; ok {
		return w, nil
	}
	w, err := explog.Open(filepath.Join(e.subjDir, name))
	if err != nil {
		return nil, err
	}
	e.extraLogs[name] = w
	return w, nil
}
