package pimii

import "golang.org/x/exp/maps"

// valueSlot is one entry of a valueTable: either free (threaded through
// next) or live, holding a value plus its reference count.
type valueSlot[T any] struct {
	free     bool
	next     int
	value    T
	refCount int
	visited  bool // arrays only: cycle-breaking flag used during GC marking
}

// valueTable is the generic auxiliary side table backing STRING,
// LARGE_NUMBER, DECIMAL, REFERENCE and ARRAY atoms. Every variant shares
// the same free-list + refcount shape (spec §3.5); only the payload
// type differs, so this is implemented once as a generic and
// instantiated per variant in Storage.
type valueTable[T any] struct {
	slots    []valueSlot[T]
	freeHead int
}

func newValueTable[T any]() *valueTable[T] {
	return &valueTable[T]{freeHead: -1}
}

// allocate stores v and returns its index, reusing a free slot if one
// is available.
func (t *valueTable[T]) allocate(v T) int {
	if t.freeHead >= 0 {
		idx := t.freeHead
		t.freeHead = t.slots[idx].next
		t.slots[idx] = valueSlot[T]{value: v, refCount: 0}
		return idx
	}
	t.slots = append(t.slots, valueSlot[T]{value: v})
	return len(t.slots) - 1
}

func (t *valueTable[T]) get(idx int) T { return t.slots[idx].value }

func (t *valueTable[T]) inc(idx int) { t.slots[idx].refCount++ }

// resetRefCounts zeroes every live slot's reference count ahead of a
// major GC's mark phase.
func (t *valueTable[T]) resetRefCounts() {
	for i := range t.slots {
		if !t.slots[i].free {
			t.slots[i].refCount = 0
			t.slots[i].visited = false
		}
	}
}

// gc frees every live slot whose reference count is still zero after
// marking, threading them back onto the free-list.
func (t *valueTable[T]) gc() {
	for i := range t.slots {
		if !t.slots[i].free && t.slots[i].refCount == 0 {
			var zero T
			t.slots[i] = valueSlot[T]{free: true, next: t.freeHead, value: zero}
			t.freeHead = i
		}
	}
}

func (t *valueTable[T]) totalSlots() int { return len(t.slots) }

// usedSlots counts live (non-free) entries. Backs the NUM_*_USED status
// keys (spec §6.1).
func (t *valueTable[T]) usedSlots() int {
	n := 0
	for i := range t.slots {
		if !t.slots[i].free {
			n++
		}
	}
	return n
}

// markVisited flips the transient visited flag used to break array
// cycles during marking, returning whether it was already set.
func (t *valueTable[T]) markVisited(idx int) (alreadyVisited bool) {
	alreadyVisited = t.slots[idx].visited
	t.slots[idx].visited = true
	return alreadyVisited
}

// snapshotLiveIndices returns the indices of every live slot, used by
// debug dumps that want a stable, sorted view of table occupancy.
func (t *valueTable[T]) snapshotLiveIndices() []int {
	live := make(map[int]struct{}, len(t.slots))
	for i := range t.slots {
		if !t.slots[i].free {
			live[i] = struct{}{}
		}
	}
	return maps.Keys(live)
}
