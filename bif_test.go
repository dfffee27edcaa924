package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bif_test.go exercises CallContext's fetch helpers directly, the way
// original_source/bif/callcontext.h's own argument-fetching contract is
// described in spec §4.5: every fetcher either returns a typed value or
// panics with a VM error naming the offending argument.

func TestCallContext_FetchArrayAndTypedReference(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	arr := s.MakeArray(2)
	s.ArraySet(arr, 0, s.MakeNumber(7))
	widgetRef := s.MakeReference("widget", "gizmo")

	args := s.MakeCons(arr, s.MakeCons(widgetRef, NIL))
	ctx := newCallContext(nil, s, args)

	got := ctx.FetchArray("inspect")
	assert.True(t, IsArray(got))
	assert.Equal(t, int64(7), s.GetNumber(s.ArrayGet(got, 0)))

	ref := ctx.FetchTypedReference("inspect", "widget")
	assert.Equal(t, "gizmo", ref.Value())
}

func TestCallContext_FetchTypedReferencePanicsOnMismatch(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	widgetRef := s.MakeReference("widget", "gizmo")
	args := s.MakeCons(widgetRef, NIL)
	ctx := newCallContext(nil, s, args)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		ve, ok := r.(*VMError)
		require.True(t, ok)
		assert.Contains(t, ve.Message, "'sprocket'")
	}()
	ctx.FetchTypedReference("inspect", "sprocket")
}

func TestCallContext_FetchListWithoutDereferencing(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	inner := s.MakeCons(s.MakeNumber(1), s.MakeCons(s.MakeNumber(2), NIL))
	args := s.MakeCons(inner, NIL)
	ctx := newCallContext(nil, s, args)

	list := ctx.FetchList("identity")
	assert.True(t, IsCons(list))
	car, _ := s.GetCons(list)
	assert.Equal(t, int64(1), s.GetNumber(car))
}

func TestCallContext_FetchArgumentPanicsWhenMissing(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ctx := newCallContext(nil, s, NIL)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		ve, ok := r.(*VMError)
		require.True(t, ok)
		assert.Contains(t, ve.Message, "strlen")
	}()
	ctx.FetchString("strlen")
}
