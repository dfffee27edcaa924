package pimii

// AtomRef is an external strong root: as long as one is alive and
// registered with a Storage, the atom it holds (and everything
// transitively reachable from it) survives garbage collection. Every
// VM register and every piece of compiler scratch state is held this
// way (spec §3.7).
type AtomRef struct {
	atom    Atom
	storage *Storage
	id      int
}

// Get returns the atom currently held by the ref.
func (r *AtomRef) Get() Atom { return r.atom }

// Set replaces the atom held by the ref.
func (r *AtomRef) Set(a Atom) { r.atom = a }

// Release removes the ref from its Storage's root set. Once released,
// the atom it held is no longer protected from GC by this ref. Callers
// must release every AtomRef they obtain once it is no longer needed,
// or the referenced atom (and its closure) is pinned for the lifetime
// of the Storage.
func (r *AtomRef) Release() {
	if r.storage == nil {
		return
	}
	r.storage.releaseRef(r)
	r.storage = nil
}

// atomRefRegistry is the per-Storage set of live AtomRefs, enumerated
// as GC roots on every collection.
type atomRefRegistry struct {
	refs   map[int]*AtomRef
	nextID int
}

func newAtomRefRegistry() *atomRefRegistry {
	return &atomRefRegistry{refs: make(map[int]*AtomRef)}
}

func (r *atomRefRegistry) register(s *Storage, initial Atom) *AtomRef {
	ref := &AtomRef{atom: initial, storage: s, id: r.nextID}
	r.refs[ref.id] = ref
	r.nextID++
	return ref
}

func (r *atomRefRegistry) release(ref *AtomRef) {
	delete(r.refs, ref.id)
}

func (r *atomRefRegistry) count() int { return len(r.refs) }

func (r *atomRefRegistry) forEach(fn func(*AtomRef)) {
	for _, ref := range r.refs {
		fn(ref)
	}
}
