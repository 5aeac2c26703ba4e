// Package ref provides the lazy-value abstraction used by experiment
// scripts: a Ref defers a read (and optionally a write) until the moment
// it is resolved, so node parameters can name values that do not exist
// until runtime.
package ref

import (
	"errors"
	"fmt"
)

// ErrNotSettable is returned by Set on a read-only reference.
var ErrNotSettable = errors.New("ref: reference is not settable")

// Ref is a deferred value. The getter runs each time the reference is
// resolved; the setter, when present, makes the reference a writable
// handle.
type Ref struct {
	get func() (any, error)
	set func(any) error
}

// New returns a reference with both a getter and a setter.
func New(get func() (any, error), set func(any) error) *Ref {
	return &Ref{get: get, set: set}
}

// NewGetter returns a read-only reference.
func NewGetter(get func() (any, error)) *Ref {
	return &Ref{get: get}
}

// Value resolves the reference.
func (r *Ref) Value() (any, error) {
	if r.get == nil {
		return nil, errors.New("ref: reference has no getter")
	}
	return r.get()
}

// Settable reports whether the reference can be written through.
func (r *Ref) Settable() bool {
	return r.set != nil
}

// Set writes through the reference.
func (r *Ref) Set(v any) error {
	if r.set == nil {
		return ErrNotSettable
	}
	return r.set(v)
}

// Val resolves v: identity for concrete values, recursive resolution for
// *Ref (a getter may itself return a reference).
func Val(v any) (any, error) {
	for {
		r, ok := v.(*Ref)
		if !ok {
			return v, nil
		}
		inner, err := r.Value()
		if err != nil {
			return nil, fmt.Errorf("resolving reference: %w", err)
		}
		v = inner
	}
}

// ValMap resolves every value of m into a fresh map.
func ValMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		rv, err := Val(v)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}
