package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtom_SmallNumberRoundTrip(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	for _, k := range []int64{0, 1, -1, 127, -127, 1 << 20, -(1 << 20), 1<<27 - 1, -(1 << 27)} {
		a := s.MakeNumber(k)
		assert.True(t, IsNumber(a))
		assert.Equal(t, k, s.GetNumber(a))
	}
}

func TestAtom_LargeNumberPromotion(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	small := s.MakeNumber(100)
	assert.Equal(t, TagSmallNumber, tagOf(small))

	large := s.MakeNumber(1 << 30)
	assert.Equal(t, TagLargeNumber, tagOf(large))
	assert.Equal(t, int64(1<<30), s.GetNumber(large))

	negLarge := s.MakeNumber(-(1 << 30))
	assert.Equal(t, TagLargeNumber, tagOf(negLarge))
	assert.Equal(t, int64(-(1<<30)), s.GetNumber(negLarge))
}

func TestAtom_StringRoundTrip(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	for _, str := range []string{"", "hello", "hello world", "日本語"} {
		a := s.MakeString(str)
		assert.True(t, IsString(a))
		assert.Equal(t, str, s.GetString(a))
	}
}

func TestAtom_DecimalRoundTrip(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	for _, d := range []float64{0, 1.5, -3.25, 1e10} {
		a := s.MakeDecimal(d)
		assert.True(t, IsDecimal(a))
		assert.Equal(t, d, s.GetDecimal(a))
	}
}

func TestAtom_SymbolUniqueness(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	a1 := s.MakeSymbol("foo")
	a2 := s.MakeSymbol("foo")
	a3 := s.MakeSymbol("bar")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, a3)
	assert.Equal(t, "foo", s.GetSymbolName(a1))
}

func TestAtom_NilIsZeroWord(t *testing.T) {
	assert.Equal(t, Atom(0), NIL)
	assert.True(t, IsNil(NIL))
	assert.Equal(t, TagNil, tagOf(NIL))
}

func TestAtom_BoolRoundTrip(t *testing.T) {
	assert.True(t, AtomIsTrue(AtomBool(true)))
	assert.False(t, AtomIsTrue(AtomBool(false)))
	assert.False(t, AtomIsTrue(NIL))
}
