package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// listbuilder_test.go exercises ListBuilder directly, the way
// original_source/bif/callcontext.h's own ListBuilder is exercised by
// whichever BIF needs to assemble a multi-element result list — no
// core BIF happens to build one (see DESIGN.md), so this is its sole
// test coverage in this tree.

func TestListBuilder_AppendBuildsOrderedList(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	b := NewListBuilder(s)
	b.Append(s.MakeNumber(1))
	b.Append(s.MakeNumber(2))
	b.Append(s.MakeNumber(3))
	list := b.Result()

	var got []int64
	for IsCons(list) {
		car, cdr := s.GetCons(list)
		got = append(got, s.GetNumber(car))
		list = cdr
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestListBuilder_EmptyResultIsNil(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	b := NewListBuilder(s)
	assert.True(t, IsNil(b.Result()))
}
