package pimii

import (
	"strconv"
	"unicode/utf8"
)

// bif_builtins.go registers the standard-library BIFs spec §4.5
// requires every core registry to carry: type introspection, printing,
// the compile/eval/include/call family, and basic string ops. Each
// follows the CallContext fetch-or-panic discipline of bif.go so a
// precondition failure surfaces as the single VM panic kind (spec §7)
// rather than a Go panic escaping the interpreter boundary.

// typeSymbolFor maps an atom's tag to the TYPE_* symbol typeOf reports.
func typeSymbolFor(a Atom) int {
	if IsNil(a) {
		return symIdxTypeNil
	}
	switch tagOf(a) {
	case TagSymbol:
		return symIdxTypeSymbol
	case TagSmallNumber, TagLargeNumber:
		return symIdxTypeNumber
	case TagCons:
		return symIdxTypeCons
	case TagBIF:
		return symIdxTypeBIF
	case TagGlobal:
		return symIdxTypeGlobal
	case TagString:
		return symIdxTypeString
	case TagDecimal:
		return symIdxTypeDecimal
	case TagReference:
		return symIdxTypeReference
	case TagArray:
		return symIdxTypeArray
	default:
		return symIdxTypeNil
	}
}

// registerBuiltins installs the core BIF set into bifs. Called once by
// NewEngine; tests that want a bare registry call it directly too.
func registerBuiltins(bifs *BIFRegistry) {
	bifs.Register("typeOf", biTypeOf)
	bifs.Register("asString", biAsString)
	bifs.Register("parse", biParse)
	bifs.Register("println", biPrintln)
	bifs.Register("compile", biCompile)
	bifs.Register("eval", biEval)
	bifs.Register("include", biInclude)
	bifs.Register("call", biCall)
	bifs.Register("strlen", biStrlen)
	bifs.Register("substr", biSubstr)
}

func biTypeOf(ctx *CallContext) Atom {
	a := ctx.FetchArgument("typeOf")
	return symbolAtom(typeSymbolFor(a))
}

func biAsString(ctx *CallContext) Atom {
	a := ctx.FetchArgument("asString")
	return ctx.Storage().MakeString(ctx.printer().String(a))
}

// biParse tries integer first, then double, per spec §4.5's `parse`
// BIF contract; a string matching neither yields NIL rather than a
// panic (this is library-style coercion, not a precondition failure).
func biParse(ctx *CallContext) Atom {
	text := ctx.FetchString("parse")
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return ctx.Storage().MakeNumber(n)
	}
	if d, err := strconv.ParseFloat(text, 64); err == nil {
		return ctx.Storage().MakeDecimal(d)
	}
	return NIL
}

func biPrintln(ctx *CallContext) Atom {
	a := ctx.FetchArgument("println")
	if ctx.Engine() != nil {
		ctx.Engine().interceptor.Println(ctx.printer().SimpleString(a))
	}
	return NIL
}

// biCompile compiles a source string, returning its bytecode list (NIL
// on a compile error). A truthy second argument suppresses the
// Interceptor diagnostic a compile error would otherwise produce (spec
// §4.5's `silent?` parameter).
func biCompile(ctx *CallContext) Atom {
	source := ctx.FetchString("compile")
	silent := fetchOptionalBool(ctx)
	engine := requireEngine(ctx, "compile")
	return engine.compileSource("<compiled>", source, true, silent)
}

// biEval compiles source exactly as `compile` does, then runs the
// result to completion on a nested VM and returns its value (spec
// §4.5's `eval`).
func biEval(ctx *CallContext) Atom {
	source := ctx.FetchString("eval")
	silent := fetchOptionalBool(ctx)
	engine := requireEngine(ctx, "eval")
	code := engine.compileSource("<eval>", source, true, silent)
	if IsNil(code) {
		return NIL
	}
	return engine.runNested(code, NIL, "<eval>", 1)
}

// biInclude locates path via the engine's source-path search order,
// compiles it (content-hash cached, SPEC_FULL.md §C), and runs it to
// completion exactly as `eval` does.
func biInclude(ctx *CallContext) Atom {
	path := ctx.FetchString("include")
	engine := requireEngine(ctx, "include")
	code, err := engine.includeSource(path)
	if err != nil {
		panic(&VMError{Message: err.Error()})
	}
	if IsNil(code) {
		return NIL
	}
	return engine.runNested(code, NIL, path, 1)
}

// biCall invokes a closure value (a `cons(body, env)` pair, as produced
// by LDF) with no arguments, returning its result (spec §4.5's `call`).
func biCall(ctx *CallContext) Atom {
	body, env := ctx.FetchCons("call")
	engine := requireEngine(ctx, "call")
	return engine.runNested(body, ctx.Storage().MakeCons(NIL, env), "<call>", 1)
}

func biStrlen(ctx *CallContext) Atom {
	s := ctx.FetchString("strlen")
	return ctx.Storage().MakeNumber(int64(utf8.RuneCountInString(s)))
}

// biSubstr implements spec §4.5's 1-based, bounds-clamping `substr`.
func biSubstr(ctx *CallContext) Atom {
	s := ctx.FetchString("substr")
	start := ctx.FetchNumber("substr")
	length := ctx.FetchNumber("substr")

	runes := []rune(s)
	n := int64(len(runes))

	start--
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + length
	if end < start {
		end = start
	}
	if end > n {
		end = n
	}
	return ctx.Storage().MakeString(string(runes[start:end]))
}

// requireEngine fetches the CallContext's engine or panics with a VM
// error naming which BIF needed one: compile/eval/include/call are
// meaningless on a bare VM with no Engine wired in (e.g. an internal
// test harness), per spec §4.5's BIF-precondition-failure error kind.
func requireEngine(ctx *CallContext, bifName string) *Engine {
	if ctx.Engine() == nil {
		panic(&VMError{Message: bifName + ": requires an engine-bound execution"})
	}
	return ctx.Engine()
}

// fetchOptionalBool reads a trailing boolean argument if one was
// supplied, defaulting to false (the `silent?` parameter shared by
// `compile`/`eval`).
func fetchOptionalBool(ctx *CallContext) bool {
	if !ctx.HasMoreArguments() {
		return false
	}
	return AtomIsTrue(ctx.FetchArgument("silent"))
}

// printer returns the engine's shared Printer, or a fresh storage-only
// one (BIFs print as `$bif`, never by name) when this CallContext was
// built without an engine.
func (ctx *CallContext) printer() *Printer {
	if ctx.engine != nil {
		return ctx.engine.printer
	}
	return NewPrinter(ctx.storage, nil)
}
