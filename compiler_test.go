package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flattenCode walks a compiled bytecode cons-list into a flat slice,
// the same traversal the VM itself does one cell at a time.
func flattenCode(s *Storage, code Atom) []Atom {
	var out []Atom
	for IsCons(code) {
		car, cdr := s.GetCons(code)
		out = append(out, car)
		code = cdr
	}
	return out
}

// stripPositions drops every FILE/LINE opcode and its operand, leaving
// only the opcodes and operands a test cares about comparing.
func stripPositions(ops []Atom) []Atom {
	var out []Atom
	for i := 0; i < len(ops); i++ {
		if ops[i] == opFILE || ops[i] == opLINE {
			i++
			continue
		}
		out = append(out, ops[i])
	}
	return out
}

func compileOps(t *testing.T, s *Storage, source string) []Atom {
	t.Helper()
	c := NewCompiler(s, "test.pi", source, nil)
	code, ok := c.Compile(true)
	require.True(t, ok, c.Errors())
	return stripPositions(flattenCode(s, code))
}

func TestCompiler_ArithmeticPrecedence(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "1 + 2 * 3;")
	require.Equal(t, []Atom{
		opLDC, s.MakeNumber(1),
		opLDC, s.MakeNumber(2),
		opLDC, s.MakeNumber(3),
		opMUL,
		opADD,
		opSTOP,
	}, ops)
}

func TestCompiler_StringConcatSharesADD(t *testing.T) {
	// String atoms aren't interned (unlike symbols), so each literal's
	// atom is compared by dereferencing rather than by raw equality.
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "'a' & 'b';")
	require.Len(t, ops, 6)
	assert.Equal(t, opLDC, ops[0])
	assert.Equal(t, "a", s.GetString(ops[1]))
	assert.Equal(t, opLDC, ops[2])
	assert.Equal(t, "b", s.GetString(ops[3]))
	assert.Equal(t, opADD, ops[4])
	assert.Equal(t, opSTOP, ops[5])
}

func TestCompiler_StandardCallNoArgsUsesAP0(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "foo();")
	require.Equal(t, []Atom{
		opLDG, s.FindGlobal(s.MakeSymbol("foo")),
		opAP0, s.MakeSymbol("foo"),
		opSTOP,
	}, ops)
}

func TestCompiler_StandardCallArgsBuiltRightNested(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "foo(1, 2);")
	require.Equal(t, []Atom{
		opNIL,
		opLDC, s.MakeNumber(2),
		opCONS,
		opLDC, s.MakeNumber(1),
		opCONS,
		opLDG, s.FindGlobal(s.MakeSymbol("foo")),
		opAP, s.MakeSymbol("foo"),
		opSTOP,
	}, ops)
}

func TestCompiler_ColonCallBuildsArgListFromSegments(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "at: 1 put: 2;")
	require.Equal(t, []Atom{
		opNIL,
		opLDC, s.MakeNumber(2),
		opCONS,
		opLDC, s.MakeNumber(1),
		opCONS,
		opLDG, s.FindGlobal(s.MakeSymbol("at:put:")),
		opAP, s.MakeSymbol("at:put:"),
		opSTOP,
	}, ops)
}

func TestCompiler_InlineListRightNestedOrder(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "#(1, 2);")
	require.Equal(t, []Atom{
		opNIL,
		opLDC, s.MakeNumber(2),
		opCONS,
		opLDC, s.MakeNumber(1),
		opCONS,
		opSTOP,
	}, ops)
}

func TestCompiler_EmptyInlineListEmitsBareNIL(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "#();")
	require.Equal(t, []Atom{opNIL, opSTOP}, ops)
}

// assertFrameSlot checks a compiled (major . minor) operand pair by
// dereferencing it: each ST/LD operand is a freshly allocated cons
// cell, so comparing it against a separately-built one by raw atom
// equality would compare unrelated heap slots instead of content.
func assertFrameSlot(t *testing.T, s *Storage, a Atom, major, minor int64) {
	t.Helper()
	require.True(t, IsCons(a))
	car, cdr := s.GetCons(a)
	assert.Equal(t, major, s.GetNumber(car))
	assert.Equal(t, minor, s.GetNumber(cdr))
}

func TestCompiler_LocalAssignmentUsesFrameSlot(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "x -> { x := 1; x };")
	// LDF, then the nested body: LDC 1, ST (1.1), LD (1.1), RTN.
	require.Equal(t, opLDF, ops[0])
	body := ops[1]
	require.True(t, IsCons(body))
	inner := stripPositions(flattenCode(s, body))
	require.Len(t, inner, 7)
	assert.Equal(t, opLDC, inner[0])
	assert.Equal(t, int64(1), s.GetNumber(inner[1]))
	assert.Equal(t, opST, inner[2])
	assertFrameSlot(t, s, inner[3], 1, 1)
	assert.Equal(t, opLD, inner[4])
	assertFrameSlot(t, s, inner[5], 1, 1)
	assert.Equal(t, opRTN, inner[6])
}

func TestCompiler_ConditionalEmitsBTJoinPair(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "[1 = 1 : 2];")
	require.Equal(t, []Atom{
		opLDC, s.MakeNumber(1),
		opLDC, s.MakeNumber(1),
		opEQ,
		opBT,
	}, ops[:6])
	consequent := ops[6]
	require.True(t, IsCons(consequent))
	require.Equal(t, opSTOP, ops[7])

	inner := stripPositions(flattenCode(s, consequent))
	require.Equal(t, []Atom{
		opLDC, s.MakeNumber(2),
		opJOIN,
	}, inner)
}

func TestCompiler_ChainedComparisonDuplicatesMiddleOperand(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	ops := compileOps(t, s, "1 < x < 10;")
	// 1 < x  =>  LDC 1, LDG x, LT
	// then x is replayed (LDG x) before the second comparison, joined by AND.
	require.Equal(t, []Atom{
		opLDC, s.MakeNumber(1),
		opLDG, s.FindGlobal(s.MakeSymbol("x")),
		opLT,
		opLDG, s.FindGlobal(s.MakeSymbol("x")),
		opLDC, s.MakeNumber(10),
		opLT,
		opAND,
		opSTOP,
	}, ops)
}

func TestCompiler_SplitAssignmentRejectedAtTopLevel(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	c := NewCompiler(s, "test.pi", "head | tail := xs;", nil)
	_, ok := c.Compile(true)
	require.False(t, ok)
	require.NotEmpty(t, c.Errors())
}

func TestCompiler_FindBIFResolvesBeforeGlobal(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	marker := s.MakeSymbol("__bif_marker__")
	findBIF := func(sym Atom) (Atom, bool) {
		if s.GetSymbolName(sym) == "println" {
			return marker, true
		}
		return NIL, false
	}
	c := NewCompiler(s, "test.pi", "println;", findBIF)
	code, ok := c.Compile(true)
	require.True(t, ok, c.Errors())
	ops := stripPositions(flattenCode(s, code))
	require.Equal(t, []Atom{opLDC, marker, opSTOP}, ops)
}
