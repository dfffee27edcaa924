package pimii

import "fmt"

// CompilationError is one entry of the list accumulated while
// compiling a source file (spec §4.3, §7): compilation never aborts
// on the first problem, it keeps parsing and reports everything found.
type CompilationError struct {
	Line    int
	Column  int
	Message string
}

// symbolFrame is one entry of the compiler's frame stack: an ordered,
// growable list of local names, indexed 1-based by (major, minor) per
// spec §3.6.
type symbolFrame struct {
	names []string
}

func (f *symbolFrame) indexOf(name string) int {
	for i, n := range f.names {
		if n == name {
			return i + 1
		}
	}
	return -1
}

func (f *symbolFrame) indexOfOrAppend(name string) int {
	if i := f.indexOf(name); i > 0 {
		return i
	}
	f.names = append(f.names, name)
	return len(f.names)
}

// Compiler is a single-pass recursive-descent translator from source
// text to a bytecode cons-list, built directly against a Storage
// (spec §4.3). One Compiler instance handles one source file.
type Compiler struct {
	storage *Storage
	tok     *Tokenizer
	findBIF func(Atom) (Atom, bool)

	file *AtomRef
	code *AtomRef
	tail *AtomRef

	frames []*symbolFrame

	lastLine int

	errors []CompilationError
}

// NewCompiler prepares a compiler for fileName/source. findBIF resolves
// a name to a BIF atom when the name isn't bound to a local or global
// (spec §4.3's "Variable (matches a BIF)" emission rule); it is
// typically engine.FindBIF.
func NewCompiler(storage *Storage, fileName, source string, findBIF func(Atom) (Atom, bool)) *Compiler {
	return &Compiler{
		storage: storage,
		tok:     NewTokenizer(source, fileName),
		findBIF: findBIF,
		file:    storage.Ref(storage.MakeSymbol(fileName)),
		code:    storage.Ref(NIL),
		tail:    storage.Ref(NIL),
	}
}

// Release frees the compiler's AtomRefs. Call once compilation is
// finished and the resulting code atom has been anchored elsewhere
// (e.g. handed to a VM register AtomRef of its own).
func (c *Compiler) Release() {
	c.file.Release()
	c.code.Release()
	c.tail.Release()
}

// Errors returns every compilation error accumulated so far.
func (c *Compiler) Errors() []CompilationError { return c.errors }

func (c *Compiler) addError(tok InputToken, format string, args ...interface{}) {
	c.errors = append(c.errors, CompilationError{
		Line:    tok.Line,
		Column:  tok.Column,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *Compiler) addCode(atom Atom) {
	if IsNil(c.code.Get()) {
		cell := c.storage.MakeCons(atom, NIL)
		c.code.Set(cell)
		c.tail.Set(cell)
		return
	}
	c.tail.Set(c.storage.Append(c.tail.Get(), atom))
}

func (c *Compiler) addOp(idx int) { c.addCode(opcodeSymbol(idx)) }

func (c *Compiler) expect(kind TokenKind, rep string) {
	if c.tok.Current().Kind != kind {
		c.addError(c.tok.Current(), "unexpected token %q, expected %s", c.tok.Current().Text, rep)
		return
	}
	c.tok.Advance()
}

// Compile runs the whole Program rule, appending STOP (top-level
// evaluation) or RTN (nested body) at the end, and returns the
// compiled bytecode atom plus whether compilation was error-free.
func (c *Compiler) Compile(appendStop bool) (Atom, bool) {
	c.code.Set(NIL)
	c.tail.Set(NIL)
	c.errors = nil

	c.updatePosition(true)
	for c.tok.Current().Kind != TokEOF {
		c.block()
		if c.tok.Current().Kind != TokEOF {
			c.addError(c.tok.Current(), "missing semicolon")
		}
	}
	if appendStop {
		c.addOp(symIdxOpSTOP)
	} else {
		c.addOp(symIdxOpRTN)
	}
	return c.code.Get(), len(c.errors) == 0
}

func (c *Compiler) updatePosition(force bool) {
	line := c.tok.Current().Line
	if force {
		c.addOp(symIdxOpFILE)
		c.addCode(c.file.Get())
		c.addOp(symIdxOpLINE)
		c.addCode(c.storage.MakeNumber(int64(line)))
	} else if c.lastLine != line {
		c.addOp(symIdxOpLINE)
		c.addCode(c.storage.MakeNumber(int64(line)))
	}
	c.lastLine = line
}

func (c *Compiler) block() {
	c.statement()
	for c.tok.Current().Kind != TokRCurly && c.tok.Current().Kind != TokRBracket && c.tok.Current().Kind != TokEOF {
		if c.tok.Current().Kind == TokSemicolon {
			c.tok.Advance()
		} else {
			c.statement()
		}
	}
}

func (c *Compiler) statement() {
	c.updatePosition(false)
	c.expression()
}

// findSymbol searches the frame stack inner-first, mirroring the
// original's scan from most-recently-pushed frame outward.
func (c *Compiler) findSymbol(name string) (major, minor int) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if idx := c.frames[i].indexOf(name); idx > 0 {
			return len(c.frames) - i, idx
		}
	}
	return -1, -1
}

func (c *Compiler) pushFrame() *symbolFrame {
	f := &symbolFrame{}
	c.frames = append(c.frames, f)
	return f
}

func (c *Compiler) popFrame() {
	c.frames = c.frames[:len(c.frames)-1]
}

func (c *Compiler) expression() {
	cur, la1, la2 := c.tok.Current(), c.tok.Peek(), c.tok.Peek2()
	switch {
	case cur.Kind == TokLParen && la1.Kind == TokName && la2.Kind == TokComma:
		c.normalDefinition()
	case cur.Kind == TokName && la1.Kind == TokArrow:
		c.shortDefinition()
	case cur.Kind == TokLBracket:
		c.conditional()
	case cur.Kind == TokLCurly:
		c.inlineDefinition()
	default:
		c.basicExp()
	}
}

func (c *Compiler) normalDefinition() {
	c.tok.Advance() // (
	var names []string
	names = append(names, c.tok.Current().Text)
	c.tok.Advance()
	for c.tok.Current().Kind == TokComma {
		c.tok.Advance()
		names = append(names, c.tok.Current().Text)
		c.tok.Advance()
	}
	c.expect(TokRParen, ")")
	c.expect(TokArrow, "->")

	f := c.pushFrame()
	f.names = names

	brackets := false
	if c.tok.Current().Kind == TokLCurly {
		c.tok.Advance()
		brackets = true
	}
	c.addOp(symIdxOpLDF)
	c.generateFunctionCode(brackets, true)
	c.popFrame()
}

func (c *Compiler) shortDefinition() {
	name := c.tok.Current().Text
	c.tok.Advance()
	c.expect(TokArrow, "->")

	f := c.pushFrame()
	f.names = []string{name}

	brackets := false
	if c.tok.Current().Kind == TokLCurly {
		c.tok.Advance()
		brackets = true
	}
	c.addOp(symIdxOpLDF)
	c.generateFunctionCode(brackets, true)
	c.popFrame()
}

func (c *Compiler) inlineDefinition() {
	c.tok.Advance() // {
	// An InlineDef may optionally declare its own parameter list before
	// the block (spec §4.3's InlineDef rule); detect it by lookahead
	// for a name run terminated by '->'.
	if c.tok.Current().Kind == TokName {
		save := c.snapshotTokenPosition()
		var names []string
		ok := true
		names = append(names, c.tok.Current().Text)
		c.tok.Advance()
		for c.tok.Current().Kind == TokComma {
			c.tok.Advance()
			if c.tok.Current().Kind != TokName {
				ok = false
				break
			}
			names = append(names, c.tok.Current().Text)
			c.tok.Advance()
		}
		if ok && c.tok.Current().Kind == TokArrow {
			c.tok.Advance()
			f := c.pushFrame()
			f.names = names
			c.addOp(symIdxOpLDF)
			c.generateFunctionCode(true, true)
			c.popFrame()
			return
		}
		c.restoreTokenPosition(save)
	}
	c.addOp(symIdxOpLDF)
	c.generateFunctionCode(true, true)
}

// snapshotTokenPosition/restoreTokenPosition allow a short, bounded
// lookahead beyond the tokenizer's own two-token window for the rare
// ambiguous prefix (a parameter-less inline block that merely starts
// with a name). Re-tokenizing from a remembered offset keeps the
// tokenizer itself free of backtracking state.
type tokenizerSnapshot struct {
	offset int
}

func (c *Compiler) snapshotTokenPosition() tokenizerSnapshot {
	return tokenizerSnapshot{offset: c.tok.current.AbsoluteOffset}
}

func (c *Compiler) restoreTokenPosition(s tokenizerSnapshot) {
	file := c.tok.file
	source := string(c.tok.input)
	t := NewTokenizer(source, file)
	for t.current.AbsoluteOffset < s.offset {
		t.Advance()
	}
	c.tok = t
}

func (c *Compiler) conditional() {
	c.expect(TokLBracket, "[")
	c.updatePosition(false)
	c.basicExp()
	c.addOp(symIdxOpBT)
	c.expect(TokColon, ":")

	backupCode, backupTail := c.code.Get(), c.tail.Get()
	c.code.Set(NIL)
	c.tail.Set(NIL)

	c.block()
	c.addOp(symIdxOpJOIN)
	if c.tok.Current().Kind != TokRBracket {
		c.addError(c.tok.Current(), "missing semicolon")
	}
	c.expect(TokRBracket, "]")

	fn := c.code.Get()
	c.code.Set(backupCode)
	c.tail.Set(backupTail)
	c.addCode(fn)
}

// generateFunctionCode compiles a function body. When asSublist is
// true (always, in this grammar: every def produces a nested closure
// body) the body is compiled into a fresh code/tail pair and the
// finished list is spliced back as a single LDC-style inline atom.
func (c *Compiler) generateFunctionCode(expectCurly, asSublist bool) {
	backupCode, backupTail := c.code.Get(), c.tail.Get()
	if asSublist {
		c.code.Set(NIL)
		c.tail.Set(NIL)
	}
	c.updatePosition(true)
	if expectCurly {
		for c.tok.Current().Kind != TokRCurly && c.tok.Current().Kind != TokEOF {
			c.block()
			if c.tok.Current().Kind != TokRCurly {
				c.addError(c.tok.Current(), "missing semicolon")
			}
		}
		c.expect(TokRCurly, "}")
	} else {
		c.statement()
	}
	c.addOp(symIdxOpRTN)
	if asSublist {
		fn := c.code.Get()
		c.code.Set(backupCode)
		c.tail.Set(backupTail)
		c.addCode(fn)
	}
}

func (c *Compiler) basicExp() {
	c.logExp()
	for {
		switch c.tok.Current().Kind {
		case TokAnd:
			c.tok.Advance()
			c.logExp()
			c.addOp(symIdxOpAND)
		case TokOr:
			c.tok.Advance()
			c.logExp()
			c.addOp(symIdxOpOR)
		default:
			return
		}
	}
}

func (c *Compiler) logExp() {
	c.relExp()
	for {
		switch c.tok.Current().Kind {
		case TokPlus:
			c.tok.Advance()
			c.relExp()
			c.addOp(symIdxOpADD)
		case TokMinus:
			c.tok.Advance()
			c.relExp()
			c.addOp(symIdxOpSUB)
		case TokConcat:
			c.tok.Advance()
			c.relExp()
			c.addOp(symIdxOpADD) // string concatenation shares ADD at runtime (spec §4.4)
		default:
			return
		}
	}
}

// relExp implements chained-comparison rewriting: `1 < x < 10` compiles
// as `1 < x AND x < 10` by re-emitting the shared middle operand's
// bytecode ahead of the second comparison (spec §4.3's authoritative
// note on chained relational operators).
func (c *Compiler) relExp() {
	c.termExp()
	var lastStart, lastEnd Atom
	for {
		var op int
		switch c.tok.Current().Kind {
		case TokEq:
			op = symIdxOpEQ
		case TokNE:
			op = symIdxOpNE
		case TokLT:
			op = symIdxOpLT
		case TokLTEQ:
			op = symIdxOpLTQ
		case TokGT:
			op = symIdxOpGT
		case TokGTEQ:
			op = symIdxOpGTQ
		default:
			return
		}
		c.tok.Advance()

		conjunction := !IsNil(lastStart)
		if conjunction {
			cursor := c.storage.Cdr(lastStart)
			for IsCons(cursor) && cursor != lastEnd {
				car, cdr := c.storage.GetCons(cursor)
				c.addCode(car)
				cursor = cdr
			}
		}
		lastStart = c.tail.Get()
		c.termExp()
		c.addOp(op)
		lastEnd = c.tail.Get()
		if conjunction {
			c.addOp(symIdxOpAND)
		}
	}
}

func (c *Compiler) termExp() {
	c.factorExp()
	for {
		switch c.tok.Current().Kind {
		case TokMul:
			c.tok.Advance()
			c.factorExp()
			c.addOp(symIdxOpMUL)
		case TokDiv:
			c.tok.Advance()
			c.factorExp()
			c.addOp(symIdxOpDIV)
		case TokMod:
			c.tok.Advance()
			c.factorExp()
			c.addOp(symIdxOpREM)
		default:
			return
		}
	}
}

func (c *Compiler) factorExp() {
	cur := c.tok.Current()
	switch {
	case cur.Kind == TokLParen:
		c.tok.Advance()
		c.expression()
		c.expect(TokRParen, ")")
	case cur.Kind == TokNot:
		c.tok.Advance()
		c.factorExp()
		c.addOp(symIdxOpNOT)
	case cur.Kind == TokMinus && (c.tok.Peek().Kind == TokNumber || c.tok.Peek().Kind == TokDecimal):
		// A '-' where an operand is expected negates the literal after it.
		c.tok.Advance()
		lit := c.tok.Current()
		c.tok.Advance()
		c.addOp(symIdxOpLDC)
		if lit.Kind == TokNumber {
			c.addCode(c.storage.MakeNumber(-lit.NumberValue))
		} else {
			c.addCode(c.storage.MakeDecimal(-lit.DecimalValue))
		}
	case cur.Kind == TokSymbol || cur.Kind == TokString || cur.Kind == TokDecimal || cur.Kind == TokNumber:
		c.literal()
	case cur.Kind == TokName && c.tok.Peek().Kind == TokSplit:
		c.splitAssignment()
	case cur.Kind == TokListStart:
		c.inlineList()
	case cur.Kind == TokName:
		c.nameFactor()
	default:
		c.addError(cur, "unexpected token %q", cur.Text)
		c.tok.Advance()
	}
}

func (c *Compiler) nameFactor() {
	cur := c.tok.Current()
	la := c.tok.Peek()
	switch {
	case la.Kind == TokLParen:
		c.call()
	case la.Kind == TokAssign:
		c.localAssignment()
	case la.Kind == TokGlobalAssign:
		c.globalAssignment()
	case la.Kind == TokSplit:
		c.splitAssignment()
	case len(cur.Text) > 0 && cur.Text[len(cur.Text)-1] == ':' &&
		la.Kind != TokRParen && la.Kind != TokRBracket &&
		la.Kind != TokComma && la.Kind != TokEOF && la.Kind != TokSemicolon:
		c.call()
	default:
		c.variable()
	}
}

func (c *Compiler) inlineList() {
	c.tok.Advance() // #(
	if c.tok.Current().Kind == TokRParen {
		c.tok.Advance()
		c.addOp(symIdxOpNIL)
		return
	}
	if c.tok.Peek().Kind == TokDot {
		car := c.compileLiteralValue()
		c.tok.Advance() // .
		cdr := c.compileLiteralValue()
		c.addOp(symIdxOpLDC)
		c.addCode(c.storage.MakeCons(car, cdr))
		c.expect(TokRParen, ")")
		return
	}

	// Each element is compiled into its own scratch code/tail buffer,
	// then the buffers are chained in reverse order exactly as a call's
	// arguments are (see standardCall): NIL, <last>, CONS, ...,
	// <first>, CONS. Since CONS pops (car=top, cdr=accumulator), this
	// produces a proper right-nested list in the original left-to-right
	// order (spec §4.3 leaves the convention to the implementer as long
	// as it is applied consistently; §8 scenario 4 pins the result to
	// left-to-right order).
	c.addOp(symIdxOpNIL)
	backupCode, backupTail := c.code.Get(), c.tail.Get()
	var elemsCode, elemsTail Atom

	for c.tok.Current().Kind != TokRParen && c.tok.Current().Kind != TokEOF {
		c.code.Set(NIL)
		c.tail.Set(NIL)
		c.expression()
		c.addOp(symIdxOpCONS)
		if IsNil(elemsCode) {
			elemsCode, elemsTail = c.code.Get(), c.tail.Get()
		} else {
			c.storage.SetCDR(c.tail.Get(), elemsCode)
			elemsCode = c.code.Get()
		}
		if c.tok.Current().Kind == TokComma {
			c.tok.Advance()
		}
	}
	c.expect(TokRParen, ")")

	c.code.Set(backupCode)
	c.storage.SetCDR(backupTail, elemsCode)
	c.tail.Set(elemsTail)
}

func (c *Compiler) compileLiteralValue() Atom {
	result := c.literalAtom()
	c.tok.Advance()
	return result
}

func (c *Compiler) literalAtom() Atom {
	cur := c.tok.Current()
	switch cur.Kind {
	case TokSymbol:
		return c.storage.MakeSymbol(cur.Text)
	case TokString:
		return c.storage.MakeString(cur.Text)
	case TokNumber:
		return c.storage.MakeNumber(cur.NumberValue)
	case TokDecimal:
		return c.storage.MakeDecimal(cur.DecimalValue)
	default:
		c.addError(cur, "expected a literal")
		return NIL
	}
}

func (c *Compiler) literal() {
	c.addOp(symIdxOpLDC)
	c.addCode(c.compileLiteralValue())
}

func (c *Compiler) variable() {
	name := c.tok.Current().Text
	c.tok.Advance()
	c.load(name)
}

func (c *Compiler) load(name string) {
	major, minor := c.findSymbol(name)
	if major > 0 {
		c.addOp(symIdxOpLD)
		c.addCode(c.storage.MakeCons(c.storage.MakeNumber(int64(major)), c.storage.MakeNumber(int64(minor))))
		return
	}
	symbol := c.storage.MakeSymbol(name)
	if c.findBIF != nil {
		if bif, ok := c.findBIF(symbol); ok {
			c.addOp(symIdxOpLDC)
			c.addCode(bif)
			return
		}
	}
	c.addOp(symIdxOpLDG)
	c.addCode(c.storage.FindGlobal(symbol))
}

func (c *Compiler) call() {
	name := c.tok.Current().Text
	if len(name) > 0 && name[len(name)-1] == ':' {
		c.colonCall()
	} else {
		c.standardCall()
	}
}

// colonCall compiles a Smalltalk-style keyword call: one or more
// `name: expr` segments. Each segment's bytecode is compiled into a
// scratch buffer, then the buffers are chained together in reverse
// order so the assembled argument list reads NIL, <argN>, CONS, ...,
// <arg1>, CONS (spec §4.3's keyword-call emission rule).
func (c *Compiler) colonCall() {
	name := ""
	c.addOp(symIdxOpNIL)

	backupCode, backupTail := c.code.Get(), c.tail.Get()
	var argsCode, argsTail Atom

	for c.tok.Current().Kind == TokName && len(c.tok.Current().Text) > 0 && c.tok.Current().Text[len(c.tok.Current().Text)-1] == ':' {
		name += c.tok.Current().Text
		c.tok.Advance()
		c.code.Set(NIL)
		c.tail.Set(NIL)
		c.expression()
		c.addOp(symIdxOpCONS)
		if IsNil(argsCode) {
			argsCode, argsTail = c.code.Get(), c.tail.Get()
		} else {
			c.storage.SetCDR(c.tail.Get(), argsCode)
			argsCode = c.code.Get()
		}
	}

	c.code.Set(backupCode)
	c.storage.SetCDR(backupTail, argsCode)
	c.tail.Set(argsTail)

	c.load(name)
	c.addOp(symIdxOpAP)
	c.addCode(c.storage.MakeSymbol(name))
}

// standardCall compiles `name(a1, ..., an)`, chaining argument
// fragments the same way colonCall does.
func (c *Compiler) standardCall() {
	name := c.tok.Current().Text
	c.tok.Advance() // name
	c.tok.Advance() // (

	if c.tok.Current().Kind == TokRParen {
		c.tok.Advance()
		c.load(name)
		c.addOp(symIdxOpAP0)
		c.addCode(c.storage.MakeSymbol(name))
		return
	}

	c.addOp(symIdxOpNIL)
	backupCode, backupTail := c.code.Get(), c.tail.Get()
	var argsCode, argsTail Atom

	for c.tok.Current().Kind != TokRParen && c.tok.Current().Kind != TokEOF {
		c.code.Set(NIL)
		c.tail.Set(NIL)
		c.expression()
		c.addOp(symIdxOpCONS)
		if IsNil(argsCode) {
			argsCode, argsTail = c.code.Get(), c.tail.Get()
		} else {
			c.storage.SetCDR(c.tail.Get(), argsCode)
			argsCode = c.code.Get()
		}
		if c.tok.Current().Kind == TokComma {
			c.tok.Advance()
		}
	}
	c.expect(TokRParen, ")")

	c.code.Set(backupCode)
	c.storage.SetCDR(backupTail, argsCode)
	c.tail.Set(argsTail)

	c.load(name)
	c.addOp(symIdxOpAP)
	c.addCode(c.storage.MakeSymbol(name))
}

// splitAssignment compiles `head | tail := expr`, destructuring a cons
// cell into two newly (or previously) declared locals.
func (c *Compiler) splitAssignment() {
	if len(c.frames) == 0 {
		c.addError(c.tok.Current(), "split-assignments not allowed on top level")
		c.tok.Advance() // name
		c.tok.Advance() // |
		c.tok.Advance() // name
		c.expect(TokAssign, ":=")
		return
	}
	headName := c.tok.Current().Text
	c.tok.Advance() // name
	c.tok.Advance() // |
	tailName := c.tok.Current().Text
	c.tok.Advance() // name
	c.expect(TokAssign, ":=")

	frame := c.frames[len(c.frames)-1]
	headMinor := frame.indexOfOrAppend(headName)
	tailMinor := frame.indexOfOrAppend(tailName)

	c.factorExp()
	c.addOp(symIdxOpSPLIT)
	c.addCode(c.storage.MakeCons(c.storage.MakeNumber(1), c.storage.MakeNumber(int64(headMinor))))
	c.addCode(c.storage.MakeCons(c.storage.MakeNumber(1), c.storage.MakeNumber(int64(tailMinor))))
}

func (c *Compiler) localAssignment() {
	if len(c.frames) == 0 {
		c.globalAssignment()
		return
	}
	name := c.tok.Current().Text
	c.tok.Advance() // name
	c.tok.Advance() // :=

	major, minor := c.findSymbol(name)
	if major == -1 {
		frame := c.frames[len(c.frames)-1]
		minor = frame.indexOfOrAppend(name)
		major = 1
	}
	c.expression()
	c.addOp(symIdxOpST)
	c.addCode(c.storage.MakeCons(c.storage.MakeNumber(int64(major)), c.storage.MakeNumber(int64(minor))))
}

func (c *Compiler) globalAssignment() {
	name := c.tok.Current().Text
	c.tok.Advance() // name
	c.tok.Advance() // ::=
	c.expression()

	major, minor := c.findSymbol(name)
	if major > 0 {
		c.addOp(symIdxOpST)
		c.addCode(c.storage.MakeCons(c.storage.MakeNumber(int64(major)), c.storage.MakeNumber(int64(minor))))
		return
	}
	c.addOp(symIdxOpSTG)
	c.addCode(c.storage.FindGlobal(c.storage.MakeSymbol(name)))
}
