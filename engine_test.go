package pimii

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInterceptor captures Println output for assertions, the
// same role a test double plays against the teacher's own Interceptor
// call sites.
type recordingInterceptor struct {
	lines  []string
	status []EngineStatus
	panics []*VMError
}

func (r *recordingInterceptor) Println(message string)     { r.lines = append(r.lines, message) }
func (r *recordingInterceptor) ReportStatus(s EngineStatus) { r.status = append(r.status, s) }
func (r *recordingInterceptor) Panic(err *VMError)          { r.panics = append(r.panics, err) }

func newTestEngine() (*Engine, *recordingInterceptor) {
	rec := &recordingInterceptor{}
	e := NewEngine(DefaultEngineSettings(), rec)
	return e, rec
}

func TestEngine_Hello(t *testing.T) {
	e, rec := newTestEngine()
	result, err := e.Eval(`println('Hello');`, "hello.pi")
	require.NoError(t, err)
	assert.True(t, IsNil(result))
	require.Len(t, rec.lines, 1)
	assert.Equal(t, "Hello", rec.lines[0])
}

func TestEngine_ArithmeticPrecedence(t *testing.T) {
	e, _ := newTestEngine()
	result, err := e.Eval(`1 + 2 * 3;`, "arith.pi")
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.Storage().GetNumber(result))
}

func TestEngine_FactorialViaConditionalAndRecursion(t *testing.T) {
	e, rec := newTestEngine()
	src := `fact := n -> { [n = 0 : 1] ; n * fact(n - 1) } ; println(fact(5));`
	_, err := e.Eval(src, "fact.pi")
	require.NoError(t, err)
	require.Len(t, rec.lines, 1)
	assert.Equal(t, "120", rec.lines[0])
}

func TestEngine_InlineListAndPrinter(t *testing.T) {
	e, rec := newTestEngine()
	_, err := e.Eval(`xs := #(1, 2, 3); println(xs);`, "list.pi")
	require.NoError(t, err)
	require.Len(t, rec.lines, 1)
	assert.Equal(t, "(1 2 3)", rec.lines[0])
}

func TestEngine_TailRecursionDoesNotExhaustStack(t *testing.T) {
	e, _ := newTestEngine()
	src := `loop := n -> { [n = 0 : 0] ; loop(n - 1) }; loop(100000);`
	result, err := e.Eval(src, "loop.pi")
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.Storage().GetNumber(result))
}

func TestEngine_GlobalMutation(t *testing.T) {
	e, rec := newTestEngine()
	src := `counter ::= 0; inc := { counter ::= counter + 1 }; inc(); inc(); println(counter);`
	_, err := e.Eval(src, "counter.pi")
	require.NoError(t, err)
	require.Len(t, rec.lines, 1)
	assert.Equal(t, "2", rec.lines[0])
}

func TestEngine_ChainedComparison(t *testing.T) {
	for _, x := range []int64{-5, 0, 1, 5, 9, 10, 15} {
		e, _ := newTestEngine()
		src := fmt.Sprintf("1 < %d < 10;", x)
		result, err := e.Eval(src, "chain.pi")
		require.NoError(t, err)
		want := x > 1 && x < 10
		assert.Equal(t, want, AtomIsTrue(result), "x=%d", x)
	}
}

func TestEngine_EvalBIFRunsCompiledSource(t *testing.T) {
	e, _ := newTestEngine()

	result, err := e.Eval(`eval('2 + 2;');`, "eval.pi")
	require.NoError(t, err)
	assert.Equal(t, int64(4), e.Storage().GetNumber(result))
}

func TestEngine_TypeOfAndAsString(t *testing.T) {
	e, _ := newTestEngine()

	result, err := e.Eval(`typeOf(42);`, "typeof.pi")
	require.NoError(t, err)
	assert.True(t, IsSymbol(result))

	result, err = e.Eval(`asString(42);`, "asstring.pi")
	require.NoError(t, err)
	assert.Equal(t, "42", e.Storage().GetString(result))
}

func TestEngine_StrlenAndSubstr(t *testing.T) {
	e, _ := newTestEngine()

	result, err := e.Eval(`strlen('hello');`, "strlen.pi")
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.Storage().GetNumber(result))

	result, err = e.Eval(`substr('hello world', 1, 5);`, "substr.pi")
	require.NoError(t, err)
	assert.Equal(t, "hello", e.Storage().GetString(result))
}

func TestEngine_GetValueHomePath(t *testing.T) {
	e, _ := newTestEngine()
	v, err := e.GetValue("HOME_PATH")
	require.NoError(t, err)
	assert.Equal(t, ".", e.Storage().GetString(v))
}

func TestEngine_SetValueRejectsReadOnlyKey(t *testing.T) {
	e, _ := newTestEngine()
	err := e.SetValue("OP_COUNT", e.Storage().MakeNumber(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read only")
}

func TestEngine_SetValueHomePath(t *testing.T) {
	e, _ := newTestEngine()
	require.NoError(t, e.SetValue("HOME_PATH", e.Storage().MakeString("/tmp/pi")))
	v, err := e.GetValue("HOME_PATH")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pi", e.Storage().GetString(v))
}

func TestEngine_ConfigFeatureToggles(t *testing.T) {
	e, _ := newTestEngine()
	e.Config().SetBool("experimental.tco-trace", true)
	e.Config().SetString("host.name", "repl")
	e.Config().SetInt("host.maxDepth", 64)

	assert.True(t, e.Config().GetBool("experimental.tco-trace"))
	assert.Equal(t, "repl", e.Config().GetString("host.name"))
	assert.Equal(t, 64, e.Config().GetInt("host.maxDepth"))
}

func TestEngine_TraceArchiveThreshold(t *testing.T) {
	e, _ := newTestEngine()
	var buf bytes.Buffer
	e.SetTraceAppender(&buf)

	small := e.archiveTraceEntry([]byte("short"))
	assert.Equal(t, []byte("short"), small)
	assert.Equal(t, "short", buf.String())

	buf.Reset()
	big := bytes.Repeat([]byte("x"), traceArchiveThreshold)
	archived := e.archiveTraceEntry(big)
	assert.Less(t, len(archived), len(big))
	assert.Equal(t, archived, buf.Bytes())
}

func TestEngine_ReportStatusArchivesToTraceAppender(t *testing.T) {
	e, _ := newTestEngine()
	var buf bytes.Buffer
	e.SetTraceAppender(&buf)

	_, err := e.Eval(`1 + 1;`, "status.pi")
	require.NoError(t, err)
	assert.NotEmpty(t, buf.Bytes())
}

func TestEngine_CompileErrorReportedToInterceptor(t *testing.T) {
	e, rec := newTestEngine()
	_, err := e.Eval(`1 +;`, "broken.pi")
	require.Error(t, err)
	require.NotEmpty(t, rec.lines)
	assert.Contains(t, rec.lines[0], "broken.pi")
}
