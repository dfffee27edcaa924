package pimii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_ConsCarCdr(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	a := s.MakeNumber(1)
	b := s.MakeNumber(2)
	cell := s.MakeCons(a, b)

	assert.True(t, IsCons(cell))
	car, cdr := s.GetCons(cell)
	assert.Equal(t, a, car)
	assert.Equal(t, b, cdr)
	assert.Equal(t, a, s.Car(cell))
	assert.Equal(t, b, s.Cdr(cell))
}

func TestStorage_SetCARSetCDR(t *testing.T) {
	s := NewStorage(DefaultGCSettings())
	cell := s.MakeCons(NIL, NIL)

	s.SetCAR(cell, s.MakeNumber(42))
	s.SetCDR(cell, s.MakeNumber(43))

	car, cdr := s.GetCons(cell)
	assert.Equal(t, int64(42), s.GetNumber(car))
	assert.Equal(t, int64(43), s.GetNumber(cdr))
}

func TestStorage_Append(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	head := s.MakeCons(s.MakeNumber(1), NIL)
	tail := head
	tail = s.Append(tail, s.MakeNumber(2))
	tail = s.Append(tail, s.MakeNumber(3))

	var values []int64
	cur := head
	for IsCons(cur) {
		car, cdr := s.GetCons(cur)
		values = append(values, s.GetNumber(car))
		cur = cdr
	}
	assert.Equal(t, []int64{1, 2, 3}, values)
	assert.True(t, IsNil(cur))
}

func TestStorage_Globals(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	sym := s.MakeSymbol("counter")
	g := s.FindGlobal(sym)
	assert.True(t, IsGlobal(g))
	assert.True(t, IsNil(s.ReadGlobal(g)))

	s.WriteGlobal(g, s.MakeNumber(7))
	assert.Equal(t, int64(7), s.GetNumber(s.ReadGlobal(g)))

	// Looking the same symbol up again returns the same slot.
	g2 := s.FindGlobal(sym)
	assert.Equal(t, g, g2)
	assert.Equal(t, int64(7), s.GetNumber(s.ReadGlobal(g2)))
}

func TestStorage_Array(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	arr := s.MakeArray(3)
	require.True(t, IsArray(arr))
	assert.Equal(t, 3, s.ArrayLen(arr))
	for i := 0; i < 3; i++ {
		assert.True(t, IsNil(s.ArrayGet(arr, i)))
	}

	s.ArraySet(arr, 1, s.MakeNumber(99))
	assert.Equal(t, int64(99), s.GetNumber(s.ArrayGet(arr, 1)))
}

func TestStorage_Reference(t *testing.T) {
	s := NewStorage(DefaultGCSettings())

	type widget struct{ name string }
	ref := s.MakeReference("widget", &widget{name: "gizmo"})
	require.True(t, IsReference(ref))

	got := s.GetReference(ref)
	assert.Equal(t, "widget", got.TypeName())
	assert.Equal(t, "gizmo", got.Value().(*widget).name)
}

func TestStorage_AtomRefProtectsFromMajorGC(t *testing.T) {
	settings := DefaultGCSettings()
	settings.InitialCells = 8
	settings.StorageChunkSize = 8
	settings.MinFreeSpace = 1
	settings.MaxMinorRuns = 1
	s := NewStorage(settings)

	kept := s.MakeCons(s.MakeNumber(123), NIL)
	ref := s.Ref(kept)
	defer ref.Release()

	// Allocate enough garbage to force several major collections.
	for i := 0; i < 200; i++ {
		s.MakeCons(s.MakeNumber(int64(i)), NIL)
	}
	s.runGC(true, NIL, NIL)

	car, cdr := s.GetCons(ref.Get())
	assert.Equal(t, int64(123), s.GetNumber(car))
	assert.True(t, IsNil(cdr))
}

func TestStorage_FreeListIntegrityAfterGC(t *testing.T) {
	settings := DefaultGCSettings()
	settings.InitialCells = 16
	settings.StorageChunkSize = 16
	s := NewStorage(settings)

	for i := 0; i < 10; i++ {
		s.MakeCons(s.MakeNumber(int64(i)), NIL)
	}
	s.runGC(true, NIL, NIL)

	unused := 0
	for _, st := range s.cells.states {
		if st == stateUnused {
			unused++
		}
	}
	assert.Equal(t, unused, s.cells.freeCount())
}
