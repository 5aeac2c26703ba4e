package stim

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/avoss/go-stim/stim/ref"
	"github.com/avoss/go-stim/stim/state"
)

// ErrConfig marks an experiment-script configuration error, e.g. a Set
// target of an unusable type. These surface at node activation, before
// any value is written, and abort the run: silently coercing would
// corrupt recorded data.
var ErrConfig = errors.New("stim: invalid node configuration")

// setTarget is fixed at construction: a Set node writes either to a
// named variable in the store, through a reference handle, or to a
// target resolved lazily at activation.
type setTarget int

const (
	targetNamed setTarget = iota
	targetRef
	targetLazy
	targetInvalid
)

// SetNode writes an experiment variable on activation. Zero duration,
// run-on-enter: the write happens exactly once, synchronously, when the
// node is entered.
type SetNode struct {
	*state.Leaf

	exp    *Experiment
	target setTarget
	name   string
	handle *ref.Ref
	lazy   *ref.Ref
	rawVar any
	value  any
}

// SetVar creates a node that writes value under name in the variable
// store, and attaches it to the experiment root.
func (e *Experiment) SetVar(name string, value any) *SetNode {
	n := &SetNode{exp: e, target: targetNamed, name: name, value: value}
	n.attach()
	return n
}

// SetRef creates a node that writes value through the given reference
// handle.
func (e *Experiment) SetRef(r *ref.Ref, value any) *SetNode {
	n := &SetNode{exp: e, target: targetRef, handle: r, value: value}
	n.attach()
	return n
}

// Set creates a node from a variable of script-determined shape: a
// string names a store variable, a settable *ref.Ref is a write-through
// handle, and a read-only *ref.Ref is a lazy name resolved at
// activation. Anything else is a configuration error, surfaced at
// activation before any value is written.
func (e *Experiment) Set(variable, value any) *SetNode {
	n := &SetNode{exp: e, rawVar: variable, value: value}
	switch v := variable.(type) {
	case string:
		n.target = targetNamed
		n.name = v
	case *ref.Ref:
		if v.Settable() {
			n.target = targetRef
			n.handle = v
		} else {
			n.target = targetLazy
			n.lazy = v
		}
	default:
		n.target = targetInvalid
	}
	n.attach()
	return n
}

func (n *SetNode) attach() {
	n.Leaf = state.NewLeaf("set", true, n.run)
	n.exp.Add(n)
}

func (n *SetNode) run(sc *state.Scope) error {
	target := n.target
	name := n.name
	handle := n.handle

	switch target {
	case targetInvalid:
		return fmt.Errorf("%w: set variable must be a string or reference, got %T", ErrConfig, n.rawVar)
	case targetLazy:
		// one step at a time: a settable handle along the chain receives
		// the write, a read-only reference keeps resolving
		resolved, err := n.lazy.Value()
		if err != nil {
			return fmt.Errorf("resolving set variable: %w", err)
		}
	resolve:
		for {
			switch rv := resolved.(type) {
			case string:
				target = targetNamed
				name = rv
				break resolve
			case *ref.Ref:
				if rv.Settable() {
					target = targetRef
					handle = rv
					break resolve
				}
				resolved, err = rv.Value()
				if err != nil {
					return fmt.Errorf("resolving set variable: %w", err)
				}
			default:
				return fmt.Errorf("%w: set variable resolved to %T, want string or reference", ErrConfig, resolved)
			}
		}
	}

	value, err := ref.Val(n.value)
	if err != nil {
		return fmt.Errorf("resolving set value: %w", err)
	}

	if target == targetRef {
		return handle.Set(value)
	}
	n.exp.vars[name] = value
	return nil
}

// Get returns a lazy reference bound to this experiment that reads
// variable from the store when resolved. The variable itself may be a
// reference resolved at read time. There is no hidden process-wide
// experiment: the returned reference carries its controller explicitly.
func (e *Experiment) Get(variable any) *ref.Ref {
	return ref.NewGetter(func() (any, error) {
		resolved, err := ref.Val(variable)
		if err != nil {
			return nil, fmt.Errorf("resolving variable name: %w", err)
		}
		name, ok := resolved.(string)
		if !ok {
			return nil, fmt.Errorf("%w: get variable must resolve to a string, got %T", ErrConfig, resolved)
		}
		v, ok := e.vars[name]
		if !ok {
			return nil, fmt.Errorf("undefined experiment variable %q", name)
		}
		return v, nil
	})
}

// VarRef returns a settable reference handle onto a named store
// variable.
func (e *Experiment) VarRef(name string) *ref.Ref {
	return ref.New(
		func() (any, error) {
			v, ok := e.vars[name]
			if !ok {
				return nil, fmt.Errorf("undefined experiment variable %q", name)
			}
			return v, nil
		},
		func(v any) error {
			e.vars[name] = v
			return nil
		},
	)
}

// LogNode appends one structured record to a log stream on activation.
// It never contributes to the automatic state log; its whole purpose is
// user-directed logging.
type LogNode struct {
	*state.Leaf

	exp   *Experiment
	file  string
	items map[string]any
	dict  any
}

// Log creates a node that logs items to the default experiment stream.
// Values are resolved eagerly at activation.
func (e *Experiment) Log(items map[string]any) *LogNode {
	return e.LogTo("", items)
}

// LogTo is Log targeting a named file under the subject directory. The
// stream is opened append-only on first activation and kept open for the
// run.
func (e *Experiment) LogTo(file string, items map[string]any) *LogNode {
	n := &LogNode{exp: e, file: file, items: items}
	n.Leaf = state.NewLeaf("log", false, n.run)
	e.Add(n)
	return n
}

// WithDict adds a value, possibly lazy, that must resolve to a
// map[string]any at activation; its entries merge over the node's items.
func (n *LogNode) WithDict(dict any) *LogNode {
	n.dict = dict
	return n
}

func (n *LogNode) run(sc *state.Scope) error {
	record, err := ref.ValMap(n.items)
	if err != nil {
		return fmt.Errorf("resolving log items: %w", err)
	}
	if record == nil {
		record = map[string]any{}
	}

	if n.dict != nil {
		resolved, err := ref.Val(n.dict)
		if err != nil {
			return fmt.Errorf("resolving log dict: %w", err)
		}
		m, ok := resolved.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: log dict resolved to %T, want map[string]any", ErrConfig, resolved)
		}
		m, err = ref.ValMap(m)
		if err != nil {
			return fmt.Errorf("resolving log dict: %w", err)
		}
		for k, v := range m {
			record[k] = v
		}
	}

	w := n.exp.expLog
	if n.file != "" {
		var err error
		w, err = n.exp.extraLog(n.file)
		if err != nil {
			// mid-run stream failures are reported, not fatal
			n.exp.logWriteErrors++
			slog.Error("log stream open failed", "file", n.file, "error", err)
			return nil
		}
	}
	n.exp.appendRecord(w, record)
	return nil
}
