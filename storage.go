package pimii

import (
	"fmt"
)

// Reference is the payload behind a REFERENCE atom: an opaque handle to
// a Go value owned by a BIF or by the embedding application. typeName
// lets typeOf/printing distinguish references without type-asserting
// value, since value is only ever inspected by the BIF that created it.
type Reference struct {
	typeName string
	value    interface{}
}

// TypeName reports the handle's declared type, as passed to
// Storage.MakeReference.
func (r *Reference) TypeName() string { return r.typeName }

// Value returns the opaque payload. Callers must type-assert against
// whatever they know r.typeName means.
func (r *Reference) Value() interface{} { return r.value }

// arrayValue is the payload behind an ARRAY atom: a fixed-length,
// mutable vector of atoms (spec §3.5).
type arrayValue struct {
	elems []Atom
}

// Storage is the central unit of memory management: the cons-cell
// heap, every auxiliary value table, the symbol/globals lookup tables
// and the registry of external strong roots all live here. A Storage
// is not safe for concurrent use (spec §5: one VM per Storage, driven
// from a single goroutine).
type Storage struct {
	cells *cellHeap

	symbols *lookupTable[string]
	globals *lookupTable[Atom]

	strings   *valueTable[string]
	largeNums *valueTable[int64]
	decimals  *valueTable[float64]
	refs      *valueTable[*Reference]
	arrays    *valueTable[*arrayValue]

	globalValues []Atom // parallel to globals.byIdx

	roots *atomRefRegistry

	gcCount      int
	gcEfficiency *runningAverage

	settings GCSettings
	minorRuns int
}

// GCSettings tunes when and how the collector runs (spec §4.1).
type GCSettings struct {
	InitialCells    int
	StorageChunkSize int
	MinFreeSpace    int
	MaxMinorRuns    int
}

// DefaultGCSettings mirrors the constants named by spec §4.1.
func DefaultGCSettings() GCSettings {
	return GCSettings{
		InitialCells:     4096,
		StorageChunkSize: 4096,
		MinFreeSpace:     256,
		MaxMinorRuns:     10,
	}
}

// NewStorage builds a Storage with its reserved symbols pre-registered
// in the fixed order declared in symbols.go.
func NewStorage(settings GCSettings) *Storage {
	s := &Storage{
		cells:        newCellHeap(settings.InitialCells),
		symbols:      newLookupTable[string](),
		globals:      newLookupTable[Atom](),
		strings:      newValueTable[string](),
		largeNums:    newValueTable[int64](),
		decimals:     newValueTable[float64](),
		refs:         newValueTable[*Reference](),
		arrays:       newValueTable[*arrayValue](),
		roots:        newAtomRefRegistry(),
		gcEfficiency: newRunningAverage(32),
		settings:     settings,
	}
	s.initializeSymbols()
	return s
}

// initializeSymbols installs every reserved symbol at its fixed index,
// panicking if the lookup table's insertion order ever drifts out of
// sync with symbols.go (a programming error, never a runtime one).
func (s *Storage) initializeSymbols() {
	for i, name := range reservedSymbolNames {
		idx := s.symbols.intern(name)
		if idx != i {
			panic(fmt.Sprintf("reserved symbol %q registered at index %d, expected %d", name, idx, i))
		}
	}
}

// MakeSymbol interns name, returning its (possibly newly-created)
// SYMBOL atom.
func (s *Storage) MakeSymbol(name string) Atom {
	return symbolAtom(s.symbols.intern(name))
}

// GetSymbolName returns the source text behind a SYMBOL atom.
func (s *Storage) GetSymbolName(a Atom) string {
	if tagOf(a) != TagSymbol {
		panic("GetSymbolName: not a symbol")
	}
	return s.symbols.keyAt(indexOf(a))
}

// MakeCons allocates a new cell, running spec §4.1's trigger policy
// first when the free-list is empty.
func (s *Storage) MakeCons(car, cdr Atom) Atom {
	s.maybeCollect(car, cdr)
	idx := s.cells.popFree()
	if idx < 0 {
		s.grow()
		idx = s.cells.popFree()
	}
	s.cells.cells[idx] = cell{car: car, cdr: cdr}
	s.cells.states[idx] = stateGray
	return consAtom(idx)
}

// GetCons returns the (car, cdr) pair a CONS atom points to.
func (s *Storage) GetCons(a Atom) (Atom, Atom) {
	if tagOf(a) != TagCons {
		panic("GetCons: not a cons")
	}
	c := s.cells.get(indexOf(a))
	return c.car, c.cdr
}

func (s *Storage) Car(a Atom) Atom { c, _ := s.GetCons(a); return c }
func (s *Storage) Cdr(a Atom) Atom { _, d := s.GetCons(a); return d }

// SetCAR replaces the car of the cell a points to. A cell already
// CHECKED by an earlier collection reverts to REFERENCED so the next
// minor GC re-scans it.
func (s *Storage) SetCAR(a, car Atom) {
	if tagOf(a) != TagCons {
		panic("SetCAR: not a cons")
	}
	idx := indexOf(a)
	s.cells.setCar(idx, car)
	if s.cells.states[idx] == stateChecked {
		s.cells.states[idx] = stateReferenced
	}
}

// SetCDR replaces the cdr of the cell a points to, with the same
// re-scan rule as SetCAR.
func (s *Storage) SetCDR(a, cdr Atom) {
	if tagOf(a) != TagCons {
		panic("SetCDR: not a cons")
	}
	idx := indexOf(a)
	s.cells.setCdr(idx, cdr)
	if s.cells.states[idx] == stateChecked {
		s.cells.states[idx] = stateReferenced
	}
}

// Append creates a new cell (next . NIL), links it as the cdr of tail
// (or returns it standalone if tail is NIL), and returns the new cell's
// atom. Used by the compiler to build bytecode lists incrementally
// without reversing at the end.
func (s *Storage) Append(tail, next Atom) Atom {
	cell := s.MakeCons(next, NIL)
	if !IsNil(tail) {
		s.SetCDR(tail, cell)
	}
	return cell
}

// FindGlobal returns the GLOBAL atom bound to nameSymbol, creating an
// unbound (NIL-valued) slot if this is the first reference.
func (s *Storage) FindGlobal(nameSymbol Atom) Atom {
	if tagOf(nameSymbol) != TagSymbol {
		panic("FindGlobal: name must be a symbol")
	}
	idx := s.globals.intern(nameSymbol)
	if idx == len(s.globalValues) {
		s.globalValues = append(s.globalValues, NIL)
	}
	return globalAtom(idx)
}

// GetGlobalName returns the symbol a global was declared under.
func (s *Storage) GetGlobalName(a Atom) Atom {
	if tagOf(a) != TagGlobal {
		panic("GetGlobalName: not a global")
	}
	return s.globals.keyAt(indexOf(a))
}

// ReadGlobal returns the current value bound to a GLOBAL atom.
func (s *Storage) ReadGlobal(a Atom) Atom {
	if tagOf(a) != TagGlobal {
		panic("ReadGlobal: not a global")
	}
	return s.globalValues[indexOf(a)]
}

// WriteGlobal rebinds a GLOBAL atom's value.
func (s *Storage) WriteGlobal(a, value Atom) {
	if tagOf(a) != TagGlobal {
		panic("WriteGlobal: not a global")
	}
	s.globalValues[indexOf(a)] = value
}

// GetString dereferences a STRING atom.
func (s *Storage) GetString(a Atom) string {
	if tagOf(a) != TagString {
		panic("GetString: not a string")
	}
	return s.strings.get(indexOf(a))
}

// MakeString allocates a new STRING atom wrapping value.
func (s *Storage) MakeString(value string) Atom {
	return stringAtom(s.strings.allocate(value))
}

// MakeNumber returns a SMALL_NUMBER atom if value fits in 28 bits,
// otherwise promotes it to a LARGE_NUMBER value-table entry (spec
// §3.1's auto-promotion rule).
func (s *Storage) MakeNumber(value int64) Atom {
	if fitsSmallNumber(value) {
		return encodeSmallNumber(value)
	}
	return largeAtom(s.largeNums.allocate(value))
}

// GetNumber dereferences any numeric atom, small or large.
func (s *Storage) GetNumber(a Atom) int64 {
	switch tagOf(a) {
	case TagSmallNumber:
		return decodeSmallNumber(a)
	case TagLargeNumber:
		return s.largeNums.get(indexOf(a))
	default:
		panic("GetNumber: not a number")
	}
}

// MakeDecimal allocates a new DECIMAL atom wrapping value.
func (s *Storage) MakeDecimal(value float64) Atom {
	return decimalAtom(s.decimals.allocate(value))
}

// GetDecimal dereferences a DECIMAL atom.
func (s *Storage) GetDecimal(a Atom) float64 {
	if tagOf(a) != TagDecimal {
		panic("GetDecimal: not a decimal")
	}
	return s.decimals.get(indexOf(a))
}

// MakeReference wraps an opaque Go value as a REFERENCE atom.
func (s *Storage) MakeReference(typeName string, value interface{}) Atom {
	return refAtom(s.refs.allocate(&Reference{typeName: typeName, value: value}))
}

// GetReference dereferences a REFERENCE atom.
func (s *Storage) GetReference(a Atom) *Reference {
	if tagOf(a) != TagReference {
		panic("GetReference: not a reference")
	}
	return s.refs.get(indexOf(a))
}

// MakeArray allocates a fixed-length ARRAY atom, initialized to NIL.
func (s *Storage) MakeArray(length int) Atom {
	return arrayAtom(s.arrays.allocate(&arrayValue{elems: make([]Atom, length)}))
}

// ArrayLen reports an ARRAY atom's element count.
func (s *Storage) ArrayLen(a Atom) int {
	return len(s.arrays.get(indexOf(a)).elems)
}

// ArrayGet reads one element of an ARRAY atom.
func (s *Storage) ArrayGet(a Atom, i int) Atom {
	if tagOf(a) != TagArray {
		panic("ArrayGet: not an array")
	}
	arr := s.arrays.get(indexOf(a))
	if i < 0 || i >= len(arr.elems) {
		panic(fmt.Sprintf("ArrayGet: index %d out of range [0,%d)", i, len(arr.elems)))
	}
	return arr.elems[i]
}

// ArraySet writes one element of an ARRAY atom.
func (s *Storage) ArraySet(a Atom, i int, v Atom) {
	if tagOf(a) != TagArray {
		panic("ArraySet: not an array")
	}
	arr := s.arrays.get(indexOf(a))
	if i < 0 || i >= len(arr.elems) {
		panic(fmt.Sprintf("ArraySet: index %d out of range [0,%d)", i, len(arr.elems)))
	}
	arr.elems[i] = v
	s.arrays.slots[indexOf(a)].visited = false // re-scan contents on the next GC
}

// Ref registers a new strong GC root holding atom, protecting it (and
// its closure) from collection until Release is called.
func (s *Storage) Ref(atom Atom) *AtomRef {
	return s.roots.register(s, atom)
}

func (s *Storage) releaseRef(r *AtomRef) {
	s.roots.release(r)
}

// --- status accessors (spec §6.1) -----------------------------------

func (s *Storage) StatusNumGC() int            { return s.gcCount }
func (s *Storage) StatusGCEfficiency() float64 { return s.gcEfficiency.average() }
func (s *Storage) StatusNumGCRoots() int       { return s.roots.count() }
func (s *Storage) StatusNumSymbols() int       { return s.symbols.len() }
func (s *Storage) StatusNumGlobals() int       { return s.globals.len() }
func (s *Storage) StatusTotalCells() int       { return s.cells.size() }
func (s *Storage) StatusCellsUsed() int        { return s.cells.size() - s.cells.freeCount() }
func (s *Storage) StatusTotalStrings() int     { return s.strings.totalSlots() }
func (s *Storage) StatusStringsUsed() int      { return s.strings.usedSlots() }
func (s *Storage) StatusTotalLargeNumbers() int { return s.largeNums.totalSlots() }
func (s *Storage) StatusLargeNumbersUsed() int  { return s.largeNums.usedSlots() }
func (s *Storage) StatusTotalDecimals() int    { return s.decimals.totalSlots() }
func (s *Storage) StatusDecimalsUsed() int     { return s.decimals.usedSlots() }
func (s *Storage) StatusTotalReferences() int  { return s.refs.totalSlots() }
func (s *Storage) StatusReferencesUsed() int   { return s.refs.usedSlots() }
func (s *Storage) StatusTotalArrays() int      { return s.arrays.totalSlots() }
func (s *Storage) StatusArraysUsed() int       { return s.arrays.usedSlots() }

// grow extends the cell heap by one storage chunk (spec §4.1 trigger
// policy step 3).
func (s *Storage) grow() {
	s.cells.grow(s.settings.StorageChunkSize)
}

// runningAverage is a small fixed-window moving average, used for
// GC_EFFICIENCY (spec §6.1). Grounded on the original's DoubleAverage.
type runningAverage struct {
	window []float64
	pos    int
	filled bool
}

func newRunningAverage(window int) *runningAverage {
	return &runningAverage{window: make([]float64, window)}
}

func (a *runningAverage) add(v float64) {
	a.window[a.pos] = v
	a.pos = (a.pos + 1) % len(a.window)
	if a.pos == 0 {
		a.filled = true
	}
}

func (a *runningAverage) average() float64 {
	n := len(a.window)
	if !a.filled {
		n = a.pos
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a.window[i]
	}
	return sum / float64(n)
}
