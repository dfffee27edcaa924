package pimii

// ListBuilder incrementally constructs a NIL-terminated cons list one
// element at a time, without reversing at the end — the Go shape of
// `original_source/bif/callcontext.h`'s helper class of the same name.
// A BIF that assembles a multi-element result list (as opposed to
// returning a single fetched value, or a list it merely located rather
// than built) uses this instead of hand-rolling the start/current
// bookkeeping itself.
type ListBuilder struct {
	storage *Storage
	start   *AtomRef
	current *AtomRef
}

// NewListBuilder starts an empty list builder against storage. Call
// Result once construction is finished; it releases the builder's
// AtomRefs.
func NewListBuilder(storage *Storage) *ListBuilder {
	return &ListBuilder{
		storage: storage,
		start:   storage.Ref(NIL),
		current: storage.Ref(NIL),
	}
}

// Append adds cell as the next element of the list under construction.
func (b *ListBuilder) Append(cell Atom) {
	if IsNil(b.start.Get()) {
		b.current.Set(b.storage.MakeCons(cell, NIL))
		b.start.Set(b.current.Get())
	} else {
		b.current.Set(b.storage.Append(b.current.Get(), cell))
	}
}

// Result returns the list built so far (NIL if Append was never
// called) and releases the builder's AtomRefs.
func (b *ListBuilder) Result() Atom {
	result := b.start.Get()
	b.start.Release()
	b.current.Release()
	return result
}
