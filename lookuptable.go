package pimii

import "golang.org/x/exp/slices"

// lookupTable is an insertion-ordered, key-deduplicated mapping from a
// comparable key to an index. Entries are never removed (spec §3.3,
// §3.4): the symbol table and the globals table are both instances of
// this shape, one keyed by string, the other by Atom.
type lookupTable[K comparable] struct {
	index  map[K]int
	byIdx  []K
}

func newLookupTable[K comparable]() *lookupTable[K] {
	return &lookupTable[K]{index: make(map[K]int)}
}

// intern returns the index for key, creating a new entry if this is
// the first time key has been seen.
func (t *lookupTable[K]) intern(key K) int {
	if idx, ok := t.index[key]; ok {
		return idx
	}
	idx := len(t.byIdx)
	t.index[key] = idx
	t.byIdx = append(t.byIdx, key)
	return idx
}

// find returns the index of key without creating it.
func (t *lookupTable[K]) find(key K) (int, bool) {
	idx, ok := t.index[key]
	return idx, ok
}

func (t *lookupTable[K]) keyAt(idx int) K { return t.byIdx[idx] }

func (t *lookupTable[K]) len() int { return len(t.byIdx) }

// sortedKeys returns every interned key in a deterministic order,
// regardless of Go's randomized map iteration. Used by debug dumps
// (Storage.DebugDump) where stable output matters more than insertion
// order.
func sortedKeys[K comparable](t *lookupTable[K], less func(a, b K) bool) []K {
	out := slices.Clone(t.byIdx)
	slices.SortFunc(out, func(a, b K) bool { return less(a, b) })
	return out
}
