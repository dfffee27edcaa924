package pimii

import (
	"strconv"
	"strings"
)

// Printer renders atoms to text against one Storage, optionally
// resolving BIF atoms to their registered names. bifs may be nil (e.g.
// storage-only unit tests), in which case a BIF prints as `$bif`.
type Printer struct {
	storage *Storage
	bifs    *BIFRegistry
}

// NewPrinter builds a Printer bound to storage and bifs.
func NewPrinter(storage *Storage, bifs *BIFRegistry) *Printer {
	return &Printer{storage: storage, bifs: bifs}
}

func (p *Printer) bifName(a Atom) string {
	if p.bifs == nil {
		return "bif"
	}
	return p.storage.GetSymbolName(p.bifs.NameOf(a))
}

// String renders an atom the way a REPL echoes a value: strings
// quoted, symbols/BIFs/globals prefixed with their sigil, lists shown
// as `(a b c)` or `(a b . c)` for an improper tail (spec §6.2).
func (p *Printer) String(a Atom) string {
	s := p.storage
	if IsNil(a) {
		return "NIL"
	}
	switch tagOf(a) {
	case TagSmallNumber, TagLargeNumber:
		return strconv.FormatInt(s.GetNumber(a), 10)
	case TagDecimal:
		return strconv.FormatFloat(s.GetDecimal(a), 'g', -1, 64)
	case TagBIF:
		return "$" + p.bifName(a)
	case TagGlobal:
		return "@" + s.GetSymbolName(s.GetGlobalName(a))
	case TagString:
		return "'" + s.GetString(a) + "'"
	case TagSymbol:
		return "#" + s.GetSymbolName(a)
	case TagCons:
		return p.printList(a)
	case TagReference:
		return "<reference:" + s.GetReference(a).TypeName() + ">"
	case TagArray:
		return p.printArray(a)
	default:
		return "UNKNOWN"
	}
}

// SimpleString renders an atom for string-concatenation purposes (the
// right-hand side of `&`/`+`): no quotes, no sigils, just the text
// content (spec §4.4).
func (p *Printer) SimpleString(a Atom) string {
	s := p.storage
	if IsNil(a) {
		return ""
	}
	switch tagOf(a) {
	case TagSmallNumber, TagLargeNumber:
		return strconv.FormatInt(s.GetNumber(a), 10)
	case TagDecimal:
		return strconv.FormatFloat(s.GetDecimal(a), 'g', -1, 64)
	case TagBIF:
		return p.bifName(a)
	case TagGlobal:
		return s.GetSymbolName(s.GetGlobalName(a))
	case TagString:
		return s.GetString(a)
	case TagSymbol:
		return s.GetSymbolName(a)
	case TagCons:
		return p.printList(a)
	default:
		return ""
	}
}

// printList renders a cons cell and everything reachable through its
// cdr chain, truncating on a cycle back to a cell already printed
// rather than looping forever (spec §6.2's "cyclic lists truncate"
// rule).
func (p *Printer) printList(a Atom) string {
	s := p.storage
	var b strings.Builder
	b.WriteByte('(')
	car, cdr := s.GetCons(a)
	b.WriteString(p.String(car))

	seen := map[Atom]bool{a: true}
	for IsCons(cdr) {
		if seen[cdr] {
			b.WriteString(" ...")
			cdr = NIL
			break
		}
		seen[cdr] = true
		car, next := s.GetCons(cdr)
		b.WriteString(" ")
		b.WriteString(p.String(car))
		cdr = next
	}
	if !IsNil(cdr) {
		b.WriteString(" . ")
		b.WriteString(p.String(cdr))
	}
	b.WriteByte(')')
	return b.String()
}

// printArray renders an ARRAY atom as `#[e0 e1 ...]`, the array
// analogue of printList (spec §3.5 extends the original, which has no
// array literal syntax of its own to echo).
func (p *Printer) printArray(a Atom) string {
	var b strings.Builder
	b.WriteString("#[")
	n := p.storage.ArrayLen(a)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.String(p.storage.ArrayGet(a, i)))
	}
	b.WriteByte(']')
	return b.String()
}
