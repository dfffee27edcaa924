package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectKinds(t *testing.T, source string) []TokenKind {
	t.Helper()
	tok := NewTokenizer(source, "test.pi")
	var kinds []TokenKind
	for tok.Current().Kind != TokEOF {
		kinds = append(kinds, tok.Current().Kind)
		tok.Advance()
	}
	return kinds
}

func TestTokenizer_AndOrSplitConcatDisambiguation(t *testing.T) {
	cases := []struct {
		source string
		want   TokenKind
	}{
		{"&", TokConcat},
		{"&&", TokAnd},
		{"|", TokSplit},
		{"||", TokOr},
	}
	for _, c := range cases {
		tok := NewTokenizer(c.source, "test.pi")
		assert.Equal(t, c.want, tok.Current().Kind, "source %q", c.source)
	}
}

func TestTokenizer_NumberVsDecimal(t *testing.T) {
	tok := NewTokenizer("42", "test.pi")
	require.Equal(t, TokNumber, tok.Current().Kind)
	assert.Equal(t, int64(42), tok.Current().NumberValue)

	tok = NewTokenizer("3.14", "test.pi")
	require.Equal(t, TokDecimal, tok.Current().Kind)
	assert.Equal(t, 3.14, tok.Current().DecimalValue)

	// A trailing dot with no following digit is not part of the number.
	tok = NewTokenizer("42.", "test.pi")
	require.Equal(t, TokNumber, tok.Current().Kind)
	assert.Equal(t, int64(42), tok.Current().NumberValue)
	assert.Equal(t, TokDot, tok.Peek().Kind)
}

func TestTokenizer_StringEscapes(t *testing.T) {
	tok := NewTokenizer(`'a\nb\tc\\d\'e'`, "test.pi")
	require.Equal(t, TokString, tok.Current().Kind)
	assert.Equal(t, "a\nb\tc\\d'e", tok.Current().Text)
}

func TestTokenizer_SymbolVsListStart(t *testing.T) {
	tok := NewTokenizer("#foo", "test.pi")
	require.Equal(t, TokSymbol, tok.Current().Kind)
	assert.Equal(t, "foo", tok.Current().Text)

	tok = NewTokenizer("#(1, 2)", "test.pi")
	require.Equal(t, TokListStart, tok.Current().Kind)
}

func TestTokenizer_TrailingColonMarksKeywordSegment(t *testing.T) {
	tok := NewTokenizer("at:put:", "test.pi")
	require.Equal(t, TokName, tok.Current().Kind)
	assert.Equal(t, "at:", tok.Current().Text)
	tok.Advance()
	require.Equal(t, TokName, tok.Current().Kind)
	assert.Equal(t, "put:", tok.Current().Text)
}

func TestTokenizer_GlobalAssignVsAssignVsColon(t *testing.T) {
	assert.Equal(t, []TokenKind{TokName, TokColon}, collectKinds(t, "x :"))
	assert.Equal(t, []TokenKind{TokName, TokAssign}, collectKinds(t, "x :="))
	assert.Equal(t, []TokenKind{TokName, TokGlobalAssign}, collectKinds(t, "x ::="))
}

func TestTokenizer_ArrowVsMinus(t *testing.T) {
	assert.Equal(t, []TokenKind{TokName, TokArrow}, collectKinds(t, "x ->"))
	assert.Equal(t, []TokenKind{TokName, TokMinus}, collectKinds(t, "x -"))
}

func TestTokenizer_CommentsSkippedByDefault(t *testing.T) {
	kinds := collectKinds(t, "1 // a comment\n+ 2")
	assert.Equal(t, []TokenKind{TokNumber, TokPlus, TokNumber}, kinds)
}

func TestTokenizer_LookaheadWindow(t *testing.T) {
	tok := NewTokenizer("a, b, c", "test.pi")
	assert.Equal(t, "a", tok.Current().Text)
	assert.Equal(t, TokComma, tok.Peek().Kind)
	assert.Equal(t, "b", tok.Peek2().Text)
}
