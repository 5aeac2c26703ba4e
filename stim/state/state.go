// Package state provides the schedulable-node tree the experiment
// controller sits on top of: nodes with enter/done semantics, sequential
// composition, timed waits, and run-on-enter leaves that execute exactly
// once, synchronously, when entered.
package state

import (
	"fmt"

	"github.com/avoss/go-stim/stim/clock"
)

// Observer is notified of node activations. The experiment controller
// uses it to feed the automatic state log. A parent notifies for its
// children; whoever enters the root is responsible for notifying the
// root's own activation.
type Observer interface {
	NodeEntered(n Node, at float64)
	NodeDone(n Node, at float64)
}

// Scope carries the shared run context down the tree. There is no hidden
// global: every entered node receives its scope explicitly.
type Scope struct {
	Clock    *clock.Clock
	Observer Observer
}

func (sc *Scope) notifyEntered(n Node) {
	if sc.Observer != nil {
		sc.Observer.NodeEntered(n, sc.Clock.Now())
	}
}

func (sc *Scope) notifyDone(n Node) {
	if sc.Observer != nil {
		sc.Observer.NodeDone(n, sc.Clock.Now())
	}
}

// Node is one schedulable unit in the tree.
type Node interface {
	// Enter begins the node's execution. Run-on-enter leaves complete
	// inside the call; timed nodes schedule their completion on the
	// scope's clock.
	Enter(sc *Scope) error

	// Done reports whether the node has finished.
	Done() bool

	// Name identifies the node in the state log.
	Name() string

	// SaveLog reports whether activations of this node belong in the
	// automatic state log.
	SaveLog() bool
}

// Leaf is a run-on-enter node: its callback executes exactly once,
// synchronously, on entry, and the node has zero duration.
type Leaf struct {
	name    string
	saveLog bool
	fn      func(sc *Scope) error
	done    bool
}

// NewLeaf creates a run-on-enter leaf.
func NewLeaf(name string, saveLog bool, fn func(sc *Scope) error) *Leaf {
	return &Leaf{name: name, saveLog: saveLog, fn: fn}
}

func (l *Leaf) Enter(sc *Scope) error {
	err := l.fn(sc)
	l.done = true
	return err
}

func (l *Leaf) Done() bool    { return l.done }
func (l *Leaf) Name() string  { return l.name }
func (l *Leaf) SaveLog() bool { return l.saveLog }

// Wait is a timed node completing after a fixed duration of clock time.
type Wait struct {
	name     string
	duration float64
	done     bool
}

// NewWait creates a node that completes duration seconds after entry.
func NewWait(duration float64) *Wait {
	return &Wait{name: fmt.Sprintf("wait(%g)", duration), duration: duration}
}

func (w *Wait) Enter(sc *Scope) error {
	if w.duration <= 0 {
		w.done = true
		return nil
	}
	sc.Clock.ScheduleOnce(func(dt float64) {
		w.done = true
	}, w.duration)
	return nil
}

func (w *Wait) Done() bool    { return w.done }
func (w *Wait) Name() string  { return w.name }
func (w *Wait) SaveLog() bool { return true }

// Serial runs its children in order: each child is entered when its
// predecessor finishes, and the serial is done when the last child is.
// Advancement happens on every clock tick while a timed child runs.
type Serial struct {
	name     string
	children []Node

	sc           *Scope
	idx          int
	childEntered bool
	done         bool
	err          error
	poll         *clock.Entry
}

// NewSerial creates an empty sequence.
func NewSerial(name string) *Serial {
	return &Serial{name: name}
}

// Add appends a child. Children added after entry are not picked up.
func (s *Serial) Add(n Node) {
	s.children = append(s.children, n)
}

// Len reports the number of children.
func (s *Serial) Len() int {
	return len(s.children)
}

func (s *Serial) Enter(sc *Scope) error {
	s.sc = sc
	if err := s.advance(); err != nil {
		s.fail(err)
		return err
	}
	if !s.done {
		s.poll = sc.Clock.Schedule(func(dt float64) {
			if err := s.advance(); err != nil {
				s.fail(err)
			}
		})
	}
	return nil
}

// advance enters children until one is pending or the sequence is
// exhausted.
func (s *Serial) advance() error {
	for s.idx < len(s.children) {
		child := s.children[s.idx]
		if !s.childEntered {
			s.sc.notifyEntered(child)
			s.childEntered = true
			if err := child.Enter(s.sc); err != nil {
				return fmt.Errorf("entering %s: %w", child.Name(), err)
			}
		}
		if !child.Done() {
			return nil
		}
		s.sc.notifyDone(child)
		s.idx++
		s.childEntered = false
	}
	s.finish()
	return nil
}

func (s *Serial) finish() {
	if s.done {
		return
	}
	s.done = true
	if s.poll != nil {
		s.poll.Cancel()
	}
}

func (s *Serial) fail(err error) {
	s.err = err
	s.done = true
	if s.poll != nil {
		s.poll.Cancel()
	}
}

func (s *Serial) Done() bool    { return s.done }
func (s *Serial) Name() string  { return s.name }
func (s *Serial) SaveLog() bool { return true }

// Err returns the first child error, if any.
func (s *Serial) Err() error { return s.err }
