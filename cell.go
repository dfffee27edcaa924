package pimii

// cellState tracks where a cell sits in the tri-colour mark/sweep cycle.
// Free cells are threaded through the car field as a singly linked
// free-list; cellSize (the sentinel value, assigned once the heap size
// is known) marks the end of that list.
type cellState byte

const (
	stateUnused cellState = iota
	stateGray
	stateReferenced
	stateChecked
)

// cell is a single (car, cdr) record in the heap.
type cell struct {
	car Atom
	cdr Atom
}

// cellHeap is the contiguous array of cons cells backing every CONS
// atom, plus the per-cell GC state byte and the free-list head.
type cellHeap struct {
	cells    []cell
	states   []cellState
	freeHead int // index of first free cell, or len(cells) at end of list
}

func newCellHeap(initialSize int) *cellHeap {
	h := &cellHeap{
		cells:  make([]cell, initialSize),
		states: make([]cellState, initialSize),
	}
	h.freeHead = 0
	for i := 0; i < initialSize; i++ {
		h.cells[i].car = Atom(i + 1)
	}
	return h
}

// endOfFreeList reports the sentinel index meaning "no more free cells".
func (h *cellHeap) endOfFreeList() int { return len(h.cells) }

// size returns the total number of cells, used and free.
func (h *cellHeap) size() int { return len(h.cells) }

// freeCount walks the free-list and counts its length. Used by tests to
// verify free-list integrity (spec §8).
func (h *cellHeap) freeCount() int {
	n := 0
	for i := h.freeHead; i != h.endOfFreeList(); i = int(h.cells[i].car) {
		n++
	}
	return n
}

// popFreePeek reports the index at the head of the free-list without
// removing it, or -1 if the list is empty.
func (h *cellHeap) popFreePeek() int {
	if h.freeHead == h.endOfFreeList() {
		return -1
	}
	return h.freeHead
}

// popFree removes and returns the index at the head of the free-list,
// or -1 if none is available.
func (h *cellHeap) popFree() int {
	if h.freeHead == h.endOfFreeList() {
		return -1
	}
	idx := h.freeHead
	h.freeHead = int(h.cells[idx].car)
	return idx
}

// grow appends n new cells, chaining them onto the free-list in
// descending order so that the lowest new index is popped first (spec
// §4.1's trigger policy step 3).
func (h *cellHeap) grow(n int) {
	base := len(h.cells)
	h.cells = append(h.cells, make([]cell, n)...)
	h.states = append(h.states, make([]cellState, n)...)
	// The old end-of-list sentinel (base) is now a real cell index, so
	// the link that held it is re-pointed at the new sentinel.
	if h.freeHead == base {
		h.freeHead = base + n
	} else {
		i := h.freeHead
		for int(h.cells[i].car) != base {
			i = int(h.cells[i].car)
		}
		h.cells[i].car = Atom(base + n)
	}
	for i := base + n - 1; i >= base; i-- {
		h.cells[i].car = Atom(h.freeHead)
		h.freeHead = i
	}
}

func (h *cellHeap) get(idx int) cell { return h.cells[idx] }

func (h *cellHeap) setCar(idx int, v Atom) { h.cells[idx].car = v }
func (h *cellHeap) setCdr(idx int, v Atom) { h.cells[idx].cdr = v }
