package ref

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValIdentity(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"int", 5},
		{"string", "hello"},
		{"float", 0.42},
		{"nil", nil},
		{"map", map[string]any{"k": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Val(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.in, v)
		})
	}
}

func TestValResolvesReference(t *testing.T) {
	r := NewGetter(func() (any, error) { return 42, nil })
	v, err := Val(r)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestValResolvesNestedReferences(t *testing.T) {
	inner := NewGetter(func() (any, error) { return "deep", nil })
	outer := NewGetter(func() (any, error) { return inner, nil })
	v, err := Val(outer)
	require.NoError(t, err)
	assert.Equal(t, "deep", v)
}

func TestValPropagatesGetterError(t *testing.T) {
	boom := errors.New("boom")
	r := NewGetter(func() (any, error) { return nil, boom })
	_, err := Val(r)
	assert.ErrorIs(t, err, boom)
}

func TestSetWritesThrough(t *testing.T) {
	var stored any
	r := New(
		func() (any, error) { return stored, nil },
		func(v any) error { stored = v; return nil },
	)
	require.True(t, r.Settable())
	require.NoError(t, r.Set(7))
	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestSetOnReadOnlyReference(t *testing.T) {
	r := NewGetter(func() (any, error) { return 1, nil })
	assert.False(t, r.Settable())
	assert.ErrorIs(t, r.Set(2), ErrNotSettable)
}

func TestValMap(t *testing.T) {
	m := map[string]any{
		"concrete": 1,
		"lazy":     NewGetter(func() (any, error) { return "resolved", nil }),
	}
	out, err := ValMap(m)
	require.NoError(t, err)
	assert.Equal(t, 1, out["concrete"])
	assert.Equal(t, "resolved", out["lazy"])

	// source map is untouched
	_, isRef := m["lazy"].(*Ref)
	assert.True(t, isRef)
}

func TestValMapNil(t *testing.T) {
	out, err := ValMap(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
