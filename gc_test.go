package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallGCSettings returns a small heap so a handful of allocations force
// the trigger policy (spec §4.1) to actually run a collection.
func smallGCSettings() GCSettings {
	s := DefaultGCSettings()
	s.InitialCells = 4
	s.StorageChunkSize = 4
	s.MinFreeSpace = 1
	s.MaxMinorRuns = 3
	return s
}

func TestGC_MinorReclaimsUnreachableGarbage(t *testing.T) {
	s := NewStorage(smallGCSettings())

	before := s.cells.size()
	for i := 0; i < 20; i++ {
		s.MakeCons(s.MakeNumber(int64(i)), NIL)
	}
	// Heap should have grown by at most a few chunks, not by 20 cells:
	// garbage must have been reclaimed along the way.
	assert.Less(t, s.cells.size(), before+20)
}

func TestGC_GlobalsSurviveMajorGC(t *testing.T) {
	s := NewStorage(smallGCSettings())

	sym := s.MakeSymbol("g")
	g := s.FindGlobal(sym)
	s.WriteGlobal(g, s.MakeCons(s.MakeNumber(7), NIL))

	for i := 0; i < 50; i++ {
		s.MakeCons(s.MakeNumber(int64(i)), NIL)
	}
	s.runGC(true, NIL, NIL)

	val := s.ReadGlobal(g)
	require.True(t, IsCons(val))
	car, _ := s.GetCons(val)
	assert.Equal(t, int64(7), s.GetNumber(car))
}

func TestGC_CyclicListSurvivesViaRoot(t *testing.T) {
	s := NewStorage(smallGCSettings())

	cell := s.MakeCons(NIL, NIL)
	s.SetCAR(cell, s.MakeNumber(1))
	s.SetCDR(cell, cell) // cons pointing to itself
	ref := s.Ref(cell)
	defer ref.Release()

	for i := 0; i < 50; i++ {
		s.MakeCons(s.MakeNumber(int64(i)), NIL)
	}
	s.runGC(true, NIL, NIL)

	car, cdr := s.GetCons(ref.Get())
	assert.Equal(t, int64(1), s.GetNumber(car))
	assert.Equal(t, ref.Get(), cdr)
}

func TestGC_ValueTablesReclaimUnreferencedEntries(t *testing.T) {
	s := NewStorage(smallGCSettings())

	s.MakeString("garbage")
	kept := s.MakeString("kept")
	ref := s.Ref(kept)
	defer ref.Release()

	s.runGC(true, NIL, NIL)

	assert.Equal(t, "kept", s.GetString(ref.Get()))
	// The unreferenced string must have been reclaimed: usedSlots should
	// only count the surviving one (the free-listed slot may be reused,
	// but it is no longer counted as used until reallocated).
	assert.Equal(t, 1, s.strings.usedSlots())
}
