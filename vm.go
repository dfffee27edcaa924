package pimii

import (
	"fmt"
	"sync/atomic"
)

// Periodic-GC heuristic constants, mirrored from the original engine's
// shouldGC(): layered on top of Storage's own out-of-free-cells
// trigger so a long-running, heap-light computation still gets swept
// occasionally instead of only at allocation pressure.
const (
	gcMinWait      = 2000
	minHeapSize    = 1024
	gcWait         = 20000
	minHeavyGCSize = 1 << 16
	reportInterval = 100000
)

// VMError is raised by a VM panic (spec's "VM panic" error kind): a
// single error kind that stops the current execution and carries
// enough state to reproduce the original's diagnostic dump.
type VMError struct {
	Message  string
	File     string
	Line     int64
	Trace    []PositionFrame
	Registers RegisterDump
}

func (e *VMError) Error() string { return e.Message }

// PositionFrame is one entry of the P register's call trace.
type PositionFrame struct {
	File string
	Line int64
}

// RegisterDump snapshots S/E/C/D at the moment of a panic, formatted
// for a human reading a crash report (spec §6's error-report rule).
type RegisterDump struct {
	S, E, C, D string
}

// VM is the SECD+P bytecode interpreter: five registers (S stack, E
// environment, C control/code, D dump, P position-trace), each backed
// by an AtomRef so a running computation's entire live state is itself
// a set of GC roots (spec §5).
type VM struct {
	storage *Storage
	bifs    *BIFRegistry
	engine  *Engine
	printer *Printer

	s, e, c, d, p *AtomRef

	currentFile Atom
	currentLine int64

	instructionCounter int64
	lastGC             int64
	lastStatusReport   int64
	gcRuns             int

	running   int32
	interrupt int32
}

// NewVM builds a VM bound to storage and bifs. engine may be nil for
// standalone tests that never touch compile/eval/include BIFs.
func NewVM(storage *Storage, bifs *BIFRegistry, engine *Engine) *VM {
	return &VM{
		storage: storage,
		bifs:    bifs,
		engine:  engine,
		printer: NewPrinter(storage, bifs),
		s:       storage.Ref(NIL),
		e:       storage.Ref(NIL),
		c:       storage.Ref(NIL),
		d:       storage.Ref(NIL),
		p:       storage.Ref(NIL),
	}
}

// Release frees the VM's register AtomRefs. Call once the VM itself is
// being discarded.
func (vm *VM) Release() {
	vm.s.Release()
	vm.e.Release()
	vm.c.Release()
	vm.d.Release()
	vm.p.Release()
}

func (vm *VM) push(reg *AtomRef, atom Atom) {
	reg.Set(vm.storage.MakeCons(atom, reg.Get()))
}

// pop mirrors the original's forgiving behavior: popping a register
// that doesn't currently hold a cons yields NIL instead of panicking
// (spec §7's stack-underflow policy).
func (vm *VM) pop(reg *AtomRef) Atom {
	cur := reg.Get()
	if !IsCons(cur) {
		return NIL
	}
	car, cdr := vm.storage.GetCons(cur)
	reg.Set(cdr)
	return car
}

func (vm *VM) head(list Atom) Atom {
	if !IsCons(list) {
		return NIL
	}
	car, _ := vm.storage.GetCons(list)
	return car
}

// SetCode installs code as the program the next Run call executes,
// resetting every other register (spec §5's "prepare a fresh
// execution" semantics).
func (vm *VM) SetCode(code Atom, file string, line int64) {
	vm.s.Set(NIL)
	vm.e.Set(NIL)
	vm.c.Set(code)
	vm.d.Set(NIL)
	vm.p.Set(NIL)
	vm.currentFile = vm.storage.MakeSymbol(file)
	vm.currentLine = line
	vm.push(vm.p, vm.storage.MakeCons(vm.currentFile, vm.storage.MakeNumber(line)))
}

// Result returns the top of the stack register, the VM's notion of
// "the value of the last completed execution".
func (vm *VM) Result() Atom { return vm.head(vm.s.Get()) }

// Interrupt requests the running loop stop before its next
// instruction. Safe to call from another goroutine (spec §5:
// cancellation must be externally triggerable).
func (vm *VM) Interrupt() { atomic.StoreInt32(&vm.interrupt, 1) }

func (vm *VM) interruptRequested() bool { return atomic.LoadInt32(&vm.interrupt) != 0 }

// Run executes C until it pops a STOP opcode, C runs dry, or an
// interrupt/panic stops it early. Returns the accumulated VMError, if
// any; a nil error with a non-nil Result means the program finished
// normally.
func (vm *VM) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ve, ok := r.(*VMError); ok {
				err = ve
				if vm.engine != nil {
					vm.engine.reportPanic(ve)
				}
				return
			}
			panic(r)
		}
	}()

	vm.instructionCounter = 0
	vm.gcRuns = 0
	atomic.StoreInt32(&vm.interrupt, 0)
	atomic.StoreInt32(&vm.running, 1)
	defer atomic.StoreInt32(&vm.running, 0)

	if IsNil(vm.c.Get()) {
		return nil
	}

	interval := int64(reportInterval)
	if vm.engine != nil && vm.engine.settings.ReportInterval > 0 {
		interval = vm.engine.settings.ReportInterval
	}

	for atomic.LoadInt32(&vm.running) != 0 {
		if vm.interruptRequested() {
			return nil
		}
		if !IsCons(vm.c.Get()) {
			return nil
		}
		op := vm.pop(vm.c)
		if op == opSTOP {
			vm.gc()
			vm.reportStatus()
			return nil
		}
		vm.dispatch(op)
		if vm.shouldGC() {
			vm.gc()
		}
		if vm.instructionCounter-vm.lastStatusReport > interval {
			vm.reportStatus()
		}
	}
	return nil
}

// gc runs a minor collection whether or not free cells remain; the
// out-of-cells case is handled by Storage's own trigger in MakeCons.
func (vm *VM) gc() {
	vm.gcRuns++
	vm.storage.runGC(false, NIL, NIL)
	vm.lastGC = vm.instructionCounter
}

// shouldGC mirrors the original's periodic heuristic: once the heap is
// more than half full (and at least minHeapSize cells are in use), sweep
// either after gcWait instructions since the last run or, once the heap
// is over 75% full and larger than minHeavyGCSize cells, every gcMinWait
// instructions ("heavy duty" mode).
func (vm *VM) shouldGC() bool {
	elapsed := vm.instructionCounter - vm.lastGC
	if elapsed < gcMinWait {
		return false
	}
	inUse := vm.storage.StatusCellsUsed()
	if inUse < minHeapSize {
		return false
	}
	total := vm.storage.StatusTotalCells()
	if inUse > total/2 {
		if elapsed > gcWait {
			return true
		}
		if total-inUse < total/4 {
			return total > minHeavyGCSize
		}
	}
	return false
}

func (vm *VM) reportStatus() {
	vm.lastStatusReport = vm.instructionCounter
	if vm.engine != nil {
		vm.engine.reportStatus(vm)
	}
}

func (vm *VM) panicf(format string, args ...interface{}) {
	panic(vm.newError(fmt.Sprintf(format, args...)))
}

func (vm *VM) newError(message string) *VMError {
	var trace []PositionFrame
	pos := vm.p.Get()
	for IsCons(pos) {
		car, cdr := vm.storage.GetCons(pos)
		file, line := vm.storage.GetCons(car)
		trace = append(trace, PositionFrame{
			File: vm.printer.SimpleString(file),
			Line: vm.storage.GetNumber(line),
		})
		pos = cdr
	}
	return &VMError{
		Message: message,
		File:    vm.printer.SimpleString(vm.currentFile),
		Line:    vm.currentLine,
		Trace:   trace,
		Registers: RegisterDump{
			S: vm.printer.String(vm.s.Get()),
			E: vm.printer.String(vm.e.Get()),
			C: vm.printer.String(vm.c.Get()),
			D: vm.printer.String(vm.d.Get()),
		},
	}
}

// dispatch executes a single opcode already popped from C.
func (vm *VM) dispatch(opcode Atom) {
	vm.instructionCounter++
	switch opcode {
	case opNIL:
		vm.push(vm.s, NIL)
	case opLDC:
		vm.push(vm.s, vm.pop(vm.c))
	case opLD:
		vm.push(vm.s, vm.locate(vm.pop(vm.c)))
	case opST:
		pos := vm.pop(vm.c)
		vm.store(pos, vm.pop(vm.s))
	case opLDG:
		g := vm.pop(vm.c)
		if !IsGlobal(g) {
			vm.panicf("#LDG: code top was not a global")
		}
		vm.push(vm.s, vm.storage.ReadGlobal(g))
	case opSTG:
		g := vm.pop(vm.c)
		if !IsGlobal(g) {
			vm.panicf("#STG: code top was not a global")
		}
		vm.storage.WriteGlobal(g, vm.pop(vm.s))
	case opBT:
		// One-armed relative of the original's two-armed SEL: the
		// compiler only ever emits a consequent, using BT's fallthrough
		// (discriminator false, C left untouched) as the else case.
		// Taking the branch still has to save the rest of C the way SEL
		// does, or JOIN has nothing to restore once the consequent runs
		// out.
		discriminator := vm.pop(vm.s)
		ct := vm.pop(vm.c)
		if AtomIsTrue(discriminator) {
			vm.push(vm.d, vm.c.Get())
			vm.c.Set(ct)
		}
	case opJOIN:
		vm.c.Set(vm.pop(vm.d))
	case opLDF:
		vm.push(vm.s, vm.storage.MakeCons(vm.pop(vm.c), vm.e.Get()))
	case opAP:
		vm.opAP(true)
	case opAP0:
		vm.opAP(false)
	case opRTN:
		vm.opRTN()
	case opCAR:
		atom := vm.pop(vm.s)
		if !IsCons(atom) {
			vm.panicf("#CAR: stack top was not a cons!")
		}
		car, _ := vm.storage.GetCons(atom)
		vm.push(vm.s, car)
	case opCDR:
		atom := vm.pop(vm.s)
		if !IsCons(atom) {
			vm.panicf("#CDR: stack top was not a cons!")
		}
		_, cdr := vm.storage.GetCons(atom)
		vm.push(vm.s, cdr)
	case opCONS:
		// Standard cons: the top of S becomes the car, the value beneath
		// it (the list built so far) the cdr.
		car := vm.pop(vm.s)
		cdr := vm.pop(vm.s)
		vm.push(vm.s, vm.storage.MakeCons(car, cdr))
	case opRPLCAR:
		element := vm.pop(vm.s)
		cell := vm.pop(vm.s)
		if !IsCons(cell) {
			vm.panicf("#RPLCAR: stack top was not a cons!")
		}
		vm.storage.SetCAR(cell, element)
		vm.push(vm.s, cell)
	case opRPLCDR:
		element := vm.pop(vm.s)
		cell := vm.pop(vm.s)
		if !IsCons(cell) {
			vm.panicf("#RPLCDR: stack top was not a cons!")
		}
		vm.storage.SetCDR(cell, element)
		vm.push(vm.s, cell)
	case opCHAIN:
		vm.opCHAIN()
	case opCHAINEND:
		vm.opCHAINEND()
	case opSPLIT:
		vm.opSPLIT()
	case opEQ:
		vm.opEQ()
	case opNE:
		vm.opNE()
	case opLT:
		vm.opLT()
	case opLTQ:
		vm.opLTQ()
	case opGT:
		vm.opGT()
	case opGTQ:
		vm.opGTQ()
	case opADD:
		vm.opADD()
	case opSUB, opMUL, opDIV, opREM:
		vm.dispatchArithmetic(opcode)
	case opAND:
		b := vm.pop(vm.s)
		a := vm.pop(vm.s)
		vm.push(vm.s, AtomBool(AtomIsTrue(a) && AtomIsTrue(b)))
	case opOR:
		b := vm.pop(vm.s)
		a := vm.pop(vm.s)
		vm.push(vm.s, AtomBool(AtomIsTrue(a) || AtomIsTrue(b)))
	case opNOT:
		a := vm.pop(vm.s)
		vm.push(vm.s, AtomBool(!AtomIsTrue(a)))
	case opFILE:
		symbol := vm.pop(vm.c)
		if !IsSymbol(symbol) {
			vm.panicf("#FILE: code top is not a symbol!")
		}
		vm.currentFile = symbol
	case opLINE:
		line := vm.pop(vm.c)
		if !IsNumber(line) {
			vm.panicf("#LINE: code top is not a number!")
		}
		vm.currentLine = vm.storage.GetNumber(line)
	default:
		vm.panicf("Invalid op-code: %s", vm.printer.String(opcode))
	}
}

// opAP applies a closure or BIF popped from S to its argument list
// (present only when hasArguments, per AP vs AP0). A call in strict
// tail position — the next instruction in C is RTN, and the callee's
// body is the same code pointer already running per the top of D — is
// executed without growing the dump stack at all (spec §4.5's TCO
// requirement).
func (vm *VM) opAP(hasArguments bool) {
	vm.pop(vm.c) // callee name operand the compiler emits after AP/AP0
	fun := vm.pop(vm.s)
	v := Atom(NIL)
	if hasArguments {
		v = vm.pop(vm.s)
	}
	if IsBIF(fun) {
		ctx := newCallContext(vm.engine, vm.storage, v)
		result := vm.bifs.Call(fun, ctx)
		vm.push(vm.s, result)
		return
	}
	if !IsCons(fun) {
		vm.panicf("#AP: code top was neither a built in function or a closure!")
	}
	funBody, funEnv := vm.storage.GetCons(fun)

	if vm.head(vm.c.Get()) == opRTN && funBody == vm.head(vm.d.Get()) {
		vm.s.Set(NIL)
		vm.c.Set(funBody)
		vm.e.Set(vm.storage.MakeCons(v, funEnv))
		return
	}
	vm.push(vm.d, vm.e.Get())
	vm.push(vm.d, vm.s.Get())
	vm.push(vm.d, vm.c.Get())
	vm.s.Set(NIL)
	vm.c.Set(funBody)
	vm.push(vm.d, vm.c.Get())
	vm.e.Set(vm.storage.MakeCons(v, funEnv))
	vm.push(vm.p, vm.storage.MakeCons(vm.currentFile, vm.storage.MakeNumber(vm.currentLine)))
}

// opRTN reverses one non-tail-optimized opAP: discard the duplicated
// body pointer pushed onto D for the tail-call check, then restore
// C/S/E in the order they were saved, leaving the call's result on top
// of the restored S.
func (vm *VM) opRTN() {
	result := vm.pop(vm.s)
	vm.pop(vm.d)
	vm.c.Set(vm.pop(vm.d))
	vm.s.Set(vm.pop(vm.d))
	vm.push(vm.s, result)
	vm.e.Set(vm.pop(vm.d))
	vm.pop(vm.p)
}

func (vm *VM) opCHAIN() {
	element := vm.pop(vm.s)
	cell := vm.pop(vm.s)
	if IsNil(cell) {
		a := vm.storage.MakeCons(element, NIL)
		vm.push(vm.s, vm.storage.MakeCons(a, a))
		return
	}
	if !IsCons(cell) {
		vm.panicf("#CHAIN: stack top was not a cons!")
	}
	_, tail := vm.storage.GetCons(cell)
	newTail := vm.storage.MakeCons(element, NIL)
	vm.storage.SetCDR(tail, newTail)
	vm.storage.SetCDR(cell, newTail)
	vm.push(vm.s, cell)
}

func (vm *VM) opCHAINEND() {
	cell := vm.pop(vm.s)
	if !IsCons(cell) {
		vm.push(vm.s, vm.storage.MakeCons(cell, NIL))
		return
	}
	car, _ := vm.storage.GetCons(cell)
	vm.push(vm.s, car)
}

// opSPLIT destructures a cons cell into two local slots named by the
// two (major, minor) position pairs following SPLIT in the code
// stream, pushing TRUE/FALSE to report whether cell was actually a
// cons (spec §4.3's split-assignment rule).
func (vm *VM) opSPLIT() {
	cell := vm.pop(vm.s)
	head := vm.pop(vm.c)
	tail := vm.pop(vm.c)
	if IsCons(cell) {
		car, cdr := vm.storage.GetCons(cell)
		vm.store(head, car)
		vm.store(tail, cdr)
		vm.push(vm.s, AtomBool(true))
	} else {
		vm.push(vm.s, AtomBool(false))
	}
}

func (vm *VM) opEQ() {
	b, a := vm.pop(vm.s), vm.pop(vm.s)
	vm.push(vm.s, AtomBool(atomsEqual(vm.storage, a, b)))
}

func (vm *VM) opNE() {
	b, a := vm.pop(vm.s), vm.pop(vm.s)
	vm.push(vm.s, AtomBool(!atomsEqual(vm.storage, a, b)))
}

func atomsEqual(s *Storage, a, b Atom) bool {
	if a == b {
		return true
	}
	if IsString(a) && IsString(b) {
		return s.GetString(a) == s.GetString(b)
	}
	return false
}

func (vm *VM) opLT()  { vm.compare(func(c int) bool { return c < 0 }) }
func (vm *VM) opLTQ() { vm.compare(func(c int) bool { return c <= 0 }) }
func (vm *VM) opGT()  { vm.compare(func(c int) bool { return c > 0 }) }
func (vm *VM) opGTQ() { vm.compare(func(c int) bool { return c >= 0 }) }

// compare implements the shared string/number/raw-atom ordering used
// by LT/LTQ/GT/GTQ (spec §4.4).
func (vm *VM) compare(ok func(int) bool) {
	b, a := vm.pop(vm.s), vm.pop(vm.s)
	switch {
	case IsString(a) && IsString(b):
		sa, sb := vm.storage.GetString(a), vm.storage.GetString(b)
		vm.push(vm.s, AtomBool(ok(stringCompare(sa, sb))))
	case IsNumber(a) && IsNumber(b):
		na, nb := vm.storage.GetNumber(a), vm.storage.GetNumber(b)
		vm.push(vm.s, AtomBool(ok(int64Compare(na, nb))))
	default:
		vm.push(vm.s, AtomBool(ok(int(a)-int(b))))
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// opADD implements the dual arithmetic/string-concatenation behavior
// of `+` and `&` (spec §4.4): two numbers add, anything involving a
// string concatenates via toSimpleString.
func (vm *VM) opADD() {
	b, a := vm.pop(vm.s), vm.pop(vm.s)
	if IsNumber(a) && IsNumber(b) {
		vm.push(vm.s, vm.storage.MakeNumber(vm.storage.GetNumber(a)+vm.storage.GetNumber(b)))
		return
	}
	if IsString(a) || IsString(b) {
		vm.push(vm.s, vm.storage.MakeString(vm.printer.SimpleString(a)+vm.printer.SimpleString(b)))
		return
	}
	vm.panicf("Invalid operands for addition: '%s' and '%s'", vm.printer.SimpleString(a), vm.printer.SimpleString(b))
}

// dispatchArithmetic handles SUB/MUL/DIV/REM, which (unlike ADD) only
// ever operate on numbers.
func (vm *VM) dispatchArithmetic(opcode Atom) {
	atomB := vm.pop(vm.s)
	if !IsNumber(atomB) {
		vm.panicf("Arithmetic: 1st stack top was not a number!")
	}
	atomA := vm.pop(vm.s)
	if !IsNumber(atomA) {
		vm.panicf("Arithmetic: 2nd stack top was not a number!")
	}
	a, b := vm.storage.GetNumber(atomA), vm.storage.GetNumber(atomB)
	switch opcode {
	case opMUL:
		vm.push(vm.s, vm.storage.MakeNumber(a*b))
	case opDIV:
		if b == 0 {
			vm.panicf("Division by zero")
		}
		vm.push(vm.s, vm.storage.MakeNumber(a/b))
	case opREM:
		if b == 0 {
			vm.panicf("Division by zero")
		}
		vm.push(vm.s, vm.storage.MakeNumber(a%b))
	case opSUB:
		vm.push(vm.s, vm.storage.MakeNumber(a-b))
	}
}

// locate reads the environment at (i, j): walk i-1 frames outward,
// then j-1 slots into that frame. Any out-of-bounds step — reading a
// variable that hasn't been assigned yet is common in this language,
// since locals aren't pre-declared — yields NIL rather than panicking
// (spec §4.5).
func (vm *VM) locate(pos Atom) Atom {
	if !IsCons(pos) {
		vm.panicf("locate: pos is not a pair!")
	}
	posI, posJ := vm.storage.GetCons(pos)
	i := vm.storage.GetNumber(posI)
	j := vm.storage.GetNumber(posJ)

	env := vm.e.Get()
	for i > 1 {
		if !IsCons(env) {
			return NIL
		}
		_, env = vm.storage.GetCons(env)
		i--
	}
	if !IsCons(env) {
		return NIL
	}
	env, _ = vm.storage.GetCons(env)
	for j > 1 {
		if !IsCons(env) {
			return NIL
		}
		_, env = vm.storage.GetCons(env)
		j--
	}
	if !IsCons(env) {
		return NIL
	}
	car, _ := vm.storage.GetCons(env)
	return car
}

// store writes value at (i, j), lazily materializing any intermediate
// frame slot that is still NIL so that assigning to a local ahead of
// ones already in use always succeeds.
func (vm *VM) store(pos, value Atom) {
	if !IsCons(pos) {
		vm.panicf("store: pos is not a pair!")
	}
	posI, posJ := vm.storage.GetCons(pos)
	i := vm.storage.GetNumber(posI)
	j := vm.storage.GetNumber(posJ)

	env := vm.e.Get()
	for i > 1 {
		if !IsCons(env) {
			return
		}
		_, env = vm.storage.GetCons(env)
		i--
	}
	if !IsCons(env) {
		return
	}
	targetEnv, _ := vm.storage.GetCons(env)
	if IsNil(targetEnv) {
		vm.storage.SetCAR(env, vm.storage.MakeCons(NIL, NIL))
	}
	env, _ = vm.storage.GetCons(env)
	for j > 1 {
		if !IsCons(env) {
			return
		}
		_, cdr := vm.storage.GetCons(env)
		if IsNil(cdr) {
			cdr = vm.storage.MakeCons(NIL, NIL)
			vm.storage.SetCDR(env, cdr)
		}
		env = cdr
		j--
	}
	if !IsCons(env) {
		return
	}
	vm.storage.SetCAR(env, value)
}
