package pimii

import "fmt"

// BIFFunc is a built-in function body. It runs synchronously inside
// the VM's opAP dispatch; ctx carries its arguments and receives its
// result.
type BIFFunc func(ctx *CallContext) Atom

// CallContext is passed into a BIF: a one-shot cursor over its
// argument list plus typed fetch helpers that panic with a VM error
// (not a Go panic escaping the interpreter) on a precondition failure
// (spec §7's BIF-precondition-failure error kind).
type CallContext struct {
	engine  *Engine
	storage *Storage

	remaining Atom
	index     int
}

func newCallContext(engine *Engine, storage *Storage, args Atom) *CallContext {
	return &CallContext{engine: engine, storage: storage, remaining: args}
}

// Engine returns the owning engine, or nil for a BIF invoked from a
// bare VM with no engine attached.
func (ctx *CallContext) Engine() *Engine { return ctx.engine }

// Storage returns the storage a BIF should allocate results through.
func (ctx *CallContext) Storage() *Storage { return ctx.storage }

func (ctx *CallContext) fail(bifName, format string, args ...interface{}) {
	msg := fmt.Sprintf("The %d. argument of %s "+format, append([]interface{}{ctx.index, bifName}, args...)...)
	panic(&VMError{Message: msg})
}

// HasMoreArguments reports whether FetchArgument would succeed.
func (ctx *CallContext) HasMoreArguments() bool { return IsCons(ctx.remaining) }

// FetchArgument pops the next argument, panicking with a VM error
// (rather than returning a Go error) if none remain — a BIF that calls
// this is asserting the argument is required.
func (ctx *CallContext) FetchArgument(bifName string) Atom {
	ctx.index++
	if !ctx.HasMoreArguments() {
		if ctx.index == 1 {
			panic(&VMError{Message: fmt.Sprintf("The built in function: %s requires at least one argument!", bifName)})
		}
		panic(&VMError{Message: fmt.Sprintf("The built in function: %s requires at least %d argument(s)!", bifName, ctx.index)})
	}
	car, cdr := ctx.storage.GetCons(ctx.remaining)
	ctx.remaining = cdr
	return car
}

// FetchString fetches and type-checks a STRING argument.
func (ctx *CallContext) FetchString(bifName string) string {
	a := ctx.FetchArgument(bifName)
	if !IsString(a) {
		ctx.fail(bifName, "must be a string!")
	}
	return ctx.storage.GetString(a)
}

// FetchNumber fetches and type-checks a numeric argument.
func (ctx *CallContext) FetchNumber(bifName string) int64 {
	a := ctx.FetchArgument(bifName)
	if !IsNumber(a) {
		ctx.fail(bifName, "must be a number!")
	}
	return ctx.storage.GetNumber(a)
}

// FetchDouble fetches a numeric argument, auto-converting an integer.
func (ctx *CallContext) FetchDouble(bifName string) float64 {
	a := ctx.FetchArgument(bifName)
	switch {
	case IsNumber(a):
		return float64(ctx.storage.GetNumber(a))
	case IsDecimal(a):
		return ctx.storage.GetDecimal(a)
	default:
		ctx.fail(bifName, "must be a number!")
		return 0
	}
}

// FetchArray fetches and type-checks an ARRAY argument, returning the
// atom itself (array contents are read via Storage.ArrayGet/ArraySet).
func (ctx *CallContext) FetchArray(bifName string) Atom {
	a := ctx.FetchArgument(bifName)
	if !IsArray(a) {
		ctx.fail(bifName, "must be an array!")
	}
	return a
}

// FetchReference fetches and type-checks a REFERENCE argument.
func (ctx *CallContext) FetchReference(bifName string) *Reference {
	a := ctx.FetchArgument(bifName)
	if !IsReference(a) {
		ctx.fail(bifName, "must be a reference!")
	}
	return ctx.storage.GetReference(a)
}

// FetchTypedReference fetches a REFERENCE argument and additionally
// checks its declared TypeName, the Go analogue of the original's
// dynamic_cast-based fetchRef<R>.
func (ctx *CallContext) FetchTypedReference(bifName, typeName string) *Reference {
	ref := ctx.FetchReference(bifName)
	if ref.TypeName() != typeName {
		ctx.fail(bifName, "must be a '%s'!", typeName)
	}
	return ref
}

// FetchCons fetches and type-checks a CONS argument, returning its
// (car, cdr) pair directly.
func (ctx *CallContext) FetchCons(bifName string) (Atom, Atom) {
	a := ctx.FetchArgument(bifName)
	if !IsCons(a) {
		ctx.fail(bifName, "must be a list!")
	}
	return ctx.storage.GetCons(a)
}

// FetchList fetches and type-checks a CONS argument without
// dereferencing it, for BIFs that just want to walk the list
// themselves (or hand it straight to another list-consuming BIF).
func (ctx *CallContext) FetchList(bifName string) Atom {
	a := ctx.FetchArgument(bifName)
	if !IsCons(a) {
		ctx.fail(bifName, "must be a list!")
	}
	return a
}

// BIFRegistry maps a BIF's name symbol to its native implementation,
// using the same insertion-ordered lookupTable shape as Storage's
// symbol/global tables (spec §3.4's BIF table).
type BIFRegistry struct {
	storage *Storage
	names   *lookupTable[Atom]
	fns     []BIFFunc
}

// NewBIFRegistry builds an empty registry bound to storage.
func NewBIFRegistry(storage *Storage) *BIFRegistry {
	return &BIFRegistry{storage: storage, names: newLookupTable[Atom]()}
}

// Register installs fn under name, returning its BIF atom. Calling
// Register again with the same name replaces the implementation in
// place (used by tests that stub out a BIF).
func (r *BIFRegistry) Register(name string, fn BIFFunc) Atom {
	symbol := r.storage.MakeSymbol(name)
	idx := r.names.intern(symbol)
	if idx == len(r.fns) {
		r.fns = append(r.fns, fn)
	} else {
		r.fns[idx] = fn
	}
	return bifAtom(idx)
}

// Find resolves a name symbol to its BIF atom, if one is registered.
// This is what the compiler's findBIF callback is wired to.
func (r *BIFRegistry) Find(nameSymbol Atom) (Atom, bool) {
	idx, ok := r.names.find(nameSymbol)
	if !ok {
		return NIL, false
	}
	return bifAtom(idx), true
}

// NameOf returns the symbol a BIF atom was registered under, used by
// the pretty-printer's `$name` rendering.
func (r *BIFRegistry) NameOf(atom Atom) Atom {
	return r.names.keyAt(indexOf(atom))
}

// Call invokes the BIF atom refers to with ctx and returns the atom the
// BIF function itself returns.
func (r *BIFRegistry) Call(atom Atom, ctx *CallContext) Atom {
	return r.fns[indexOf(atom)](ctx)
}
