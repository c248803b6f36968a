package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/value"
)

func TestDefineSetGet(t *testing.T) {
	s := New()
	s.Define("counter", value.Number(0))

	changed, err := s.Set("counter", value.Number(1))
	require.NoError(t, err)
	assert.True(t, changed)

	v, ok := s.Get("counter")
	require.True(t, ok)
	assert.Equal(t, "1", v.String())
}

func TestSetUnchangedValue(t *testing.T) {
	s := New()
	s.Define("x", value.String("1"))

	// Numeric coercion applies, so the string "1" and the number 1 are the
	// same value.
	changed, err := s.Set("x", value.Number(1))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSetUndefined(t *testing.T) {
	s := New()
	_, err := s.Set("ghost", value.Number(1))
	assert.Error(t, err)
}

func TestUndefine(t *testing.T) {
	s := New()
	s.Define("x", value.Number(1))
	s.Undefine("x")
	assert.False(t, s.Has("x"))
	assert.Empty(t, s.Names())
}

func TestLookupFeedsEvaluator(t *testing.T) {
	s := New()
	s.Define("a", value.Number(2))
	s.Define("b", value.Number(3))

	v, err := expr.Eval(expr.MustParse("a * b"), s.Lookup)
	require.NoError(t, err)
	assert.Equal(t, "6", v.String())
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	s.Define("x", value.Number(1))
	snap := s.Snapshot()
	snap["x"] = value.Number(99)

	v, _ := s.Get("x")
	assert.Equal(t, "1", v.String())
}
