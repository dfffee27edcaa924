package pimii

import (
	"fmt"
	"io"

	"golang.org/x/exp/slices"
)

// DebugDump writes a storage introspection report to w: live cell
// ranges, free-list length, and per-table occupancy (SPEC_FULL.md §E,
// grounded on `original_source/storage.h`'s `dumpCells`). Backs the CLI
// `-dump` flag and gives the NUM_*/GC_EFFICIENCY status keys (spec
// §6.1) a concrete introspection counterpart a human can read directly.
func (s *Storage) DebugDump(w io.Writer) {
	fmt.Fprintf(w, "cells: %d total, %d used, %d free\n",
		s.cells.size(), s.cells.size()-s.cells.freeCount(), s.cells.freeCount())
	for _, r := range liveCellRanges(s.cells) {
		fmt.Fprintf(w, "  live range [%d,%d]\n", r[0], r[1])
	}

	fmt.Fprintf(w, "symbols: %d\n", s.symbols.len())
	for _, name := range sortedKeys(s.symbols, func(a, b string) bool { return a < b }) {
		fmt.Fprintf(w, "  %s\n", name)
	}

	fmt.Fprintf(w, "globals: %d\n", s.globals.len())
	for _, sym := range sortedKeys(s.globals, func(a, b Atom) bool { return a < b }) {
		fmt.Fprintf(w, "  %s\n", s.GetSymbolName(sym))
	}

	fmt.Fprintf(w, "strings: %d/%d used\n", s.strings.usedSlots(), s.strings.totalSlots())
	liveStrings := s.strings.snapshotLiveIndices()
	slices.Sort(liveStrings)
	for _, idx := range liveStrings {
		fmt.Fprintf(w, "  [%d] %q\n", idx, s.strings.get(idx))
	}
	fmt.Fprintf(w, "large numbers: %d/%d used\n", s.largeNums.usedSlots(), s.largeNums.totalSlots())
	fmt.Fprintf(w, "decimals: %d/%d used\n", s.decimals.usedSlots(), s.decimals.totalSlots())
	fmt.Fprintf(w, "references: %d/%d used\n", s.refs.usedSlots(), s.refs.totalSlots())
	fmt.Fprintf(w, "arrays: %d/%d used\n", s.arrays.usedSlots(), s.arrays.totalSlots())

	fmt.Fprintf(w, "gc: %d runs, %.1f%% average efficiency, %d roots\n",
		s.gcCount, s.gcEfficiency.average(), s.roots.count())
}

// liveCellRanges coalesces the heap's non-UNUSED cells into contiguous
// [start,end] index pairs, the shape `dumpCells` printed in the
// original engine.
func liveCellRanges(h *cellHeap) [][2]int {
	var ranges [][2]int
	inRange := false
	start := 0
	for i, st := range h.states {
		live := st != stateUnused
		switch {
		case live && !inRange:
			start = i
			inRange = true
		case !live && inRange:
			ranges = append(ranges, [2]int{start, i - 1})
			inRange = false
		}
	}
	if inRange {
		ranges = append(ranges, [2]int{start, len(h.states) - 1})
	}
	return ranges
}
