package pimii

// gc.go implements the tri-colour mark/sweep collector described by
// spec §4.1. A minor collection only chases cells allocated (and
// therefore left GRAY) since the last run; a major collection first
// resets every cell to GRAY and clears every value table's reference
// count, so it also reclaims strings/large-numbers/decimals/references/
// arrays that have fallen out of reach.

// maybeCollect runs the spec §4.1 trigger policy ahead of an
// allocation that is about to fail: out of free cells, try a minor GC
// (unless this is a scheduled major run), fall back to a major GC if
// that didn't free enough, then grow the heap if neither did.
func (s *Storage) maybeCollect(car, cdr Atom) {
	if s.cells.popFreePeek() >= 0 {
		return
	}
	if s.cells.size() == 0 {
		return
	}

	if s.minorRuns >= s.settings.MaxMinorRuns {
		s.runGC(true, car, cdr)
		s.minorRuns = 0
	} else {
		s.runGC(false, car, cdr)
		s.minorRuns++
		if s.cells.freeCount() < s.settings.MinFreeSpace {
			s.runGC(true, car, cdr)
			s.minorRuns = 0
		}
	}

	if s.cells.freeCount() < s.settings.MinFreeSpace {
		s.grow()
	}
}

// runGC executes one collection cycle. car and cdr are the two
// in-flight atoms of the allocation that triggered the run (they have
// no home anywhere else yet, so they're marked as temporary roots
// alongside the globals table and every live AtomRef).
func (s *Storage) runGC(major bool, car, cdr Atom) {
	if major {
		s.strings.resetRefCounts()
		s.largeNums.resetRefCounts()
		s.decimals.resetRefCounts()
		s.refs.resetRefCounts()
		s.arrays.resetRefCounts()
		for i := range s.cells.states {
			s.cells.states[i] = stateGray
		}
	}

	roots := 0
	s.markRoot(car, &roots)
	s.markRoot(cdr, &roots)
	for _, g := range s.globalValues {
		s.markRoot(g, &roots)
	}
	s.roots.forEach(func(r *AtomRef) {
		s.markRoot(r.Get(), &roots)
	})

	s.mark()
	reclaimed := s.sweep()

	if major {
		s.strings.gc()
		s.largeNums.gc()
		s.decimals.gc()
		s.refs.gc()
		s.arrays.gc()
	}

	eff := 0.0
	if s.cells.size() > 0 {
		eff = 100.0 * float64(reclaimed) / float64(s.cells.size())
	}
	s.gcEfficiency.add(eff)
	s.gcCount++
}

// markRoot marks a single root atom: a cons cell is flagged REFERENCED
// directly, anything else is routed through incValueTable so its
// value-table refcount (and any array it transitively reaches) is
// accounted for.
func (s *Storage) markRoot(a Atom, roots *int) {
	if IsNil(a) {
		return
	}
	if tagOf(a) == TagCons {
		s.cells.states[indexOf(a)] = stateReferenced
		*roots++
		return
	}
	s.incValueTable(a, nil)
}

// incValueTable bumps the refcount of whichever value table a points
// into, if any, recursing into ARRAY contents exactly once per array
// (guarded by the visited flag, reset each major GC). refQueue is
// non-nil only when called from markCell, so cons cells reached through
// an array can be folded into the same mark queue as ordinary cells.
func (s *Storage) incValueTable(a Atom, refQueue *[]int) {
	switch tagOf(a) {
	case TagLargeNumber:
		s.largeNums.inc(indexOf(a))
	case TagDecimal:
		s.decimals.inc(indexOf(a))
	case TagString:
		s.strings.inc(indexOf(a))
	case TagReference:
		s.refs.inc(indexOf(a))
	case TagArray:
		idx := indexOf(a)
		s.arrays.inc(idx)
		if !s.arrays.markVisited(idx) {
			arr := s.arrays.get(idx)
			for _, elem := range arr.elems {
				if tagOf(elem) == TagCons {
					eIdx := indexOf(elem)
					if s.cells.states[eIdx] != stateChecked {
						s.cells.states[eIdx] = stateReferenced
						if refQueue != nil {
							*refQueue = append(*refQueue, eIdx)
						}
					}
				} else {
					s.incValueTable(elem, refQueue)
				}
			}
		}
	}
}

// markCell promotes a REFERENCED cell to CHECKED, marking its car/cdr
// in turn. alwaysQueue mirrors the original's optimization: while
// scanning the heap in index order, a forward reference (higher index)
// will still be visited by the main loop, so only backward references
// need to be queued explicitly; once draining the queue itself, every
// newly discovered reference must be queued since the main scan has
// already passed it by.
func (s *Storage) markCell(index int, queue *[]int, alwaysQueue bool) {
	s.cells.states[index] = stateChecked
	c := s.cells.get(index)

	if tagOf(c.car) == TagCons {
		carIdx := indexOf(c.car)
		if s.cells.states[carIdx] != stateChecked {
			s.cells.states[carIdx] = stateReferenced
			if alwaysQueue || carIdx < index {
				*queue = append(*queue, carIdx)
			}
		}
	} else {
		s.incValueTable(c.car, queue)
	}

	if tagOf(c.cdr) == TagCons {
		cdrIdx := indexOf(c.cdr)
		if s.cells.states[cdrIdx] != stateChecked {
			s.cells.states[cdrIdx] = stateReferenced
			if alwaysQueue || cdrIdx < index {
				*queue = append(*queue, cdrIdx)
			}
		}
	} else {
		s.incValueTable(c.cdr, queue)
	}
}

// mark walks the heap once in index order promoting every REFERENCED
// cell to CHECKED, then drains a queue of cells discovered out of
// order (lower-indexed cells reached from a higher-indexed one).
func (s *Storage) mark() {
	var queue []int
	for i := range s.cells.states {
		if s.cells.states[i] == stateReferenced {
			s.markCell(i, &queue, false)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if s.cells.states[i] == stateReferenced {
			s.markCell(i, &queue, true)
		}
	}
}

// sweep threads every UNUSED or still-GRAY cell back onto the
// free-list and reports how many were reclaimed.
func (s *Storage) sweep() int {
	s.cells.freeHead = s.cells.endOfFreeList()
	reclaimed := 0
	for i := range s.cells.states {
		if s.cells.states[i] == stateUnused || s.cells.states[i] == stateGray {
			s.cells.states[i] = stateUnused
			reclaimed++
			s.cells.cells[i].car = Atom(s.cells.freeHead)
			s.cells.freeHead = i
		}
	}
	return reclaimed
}
