package bitstate

import "sync"

// entry is one slot in the dedup table's hash bucket chain.
type entry struct {
	state CompressedState
	id    StateID
	next  *entry
}

// StateIDMap is the deduplicating mapping CompressedState -> StateID
// described in spec.md §4.1. The map never evicts. It is safe for
// concurrent use: FindOrInsert takes an internal lock, matching §5's
// "single-writer many-reader structure" requirement for the threaded
// variant, while staying cheap and uncontended in the single-threaded
// build.
type StateIDMap struct {
	mu      sync.RWMutex
	buckets []*entry
	count   int
	nextID  StateID
}

// NewStateIDMap constructs an empty map with the given initial bucket count.
func NewStateIDMap(initialBuckets int) *StateIDMap {
	if initialBuckets < 1 {
		initialBuckets = 1024
	}
	return &StateIDMap{buckets: make([]*entry, initialBuckets)}
}

func (m *StateIDMap) bucketFor(h uint64) int {
	return int(h % uint64(len(m.buckets)))
}

// Contains reports whether s is already present.
func (m *StateIDMap) Contains(s CompressedState) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(s) != nil
}

// Get returns the id for s and whether it was found.
func (m *StateIDMap) Get(s CompressedState) (StateID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e := m.lookupLocked(s); e != nil {
		return e.id, true
	}
	return 0, false
}

func (m *StateIDMap) lookupLocked(s CompressedState) *entry {
	idx := m.bucketFor(s.Hash())
	for e := m.buckets[idx]; e != nil; e = e.next {
		if e.state.Equal(s) {
			return e
		}
	}
	return nil
}

// FindOrInsert is atomic per logical call: concurrent callers racing to
// insert the same bitvector see a single winner, the others get (winnerID,
// false). candidateID is used as the assigned id only when this call is the
// one that performs the insertion; otherwise the id already on file wins.
func (m *StateIDMap) FindOrInsert(s CompressedState, candidateID StateID) (StateID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.lookupLocked(s); e != nil {
		return e.id, false
	}

	if m.count >= len(m.buckets)*2 {
		m.growLocked()
	}

	idx := m.bucketFor(s.Hash())
	m.buckets[idx] = &entry{state: s, id: candidateID, next: m.buckets[idx]}
	m.count++
	if candidateID >= m.nextID {
		m.nextID = candidateID + 1
	}
	return candidateID, true
}

// NextCandidateID returns the next unused id, to be passed as candidateID to
// FindOrInsert by a caller that does not already have one in hand (e.g. a
// caller re-synchronizing ids after an import). Composing NextCandidateID
// with a separate FindOrInsert call is not safe for concurrent callers --
// two goroutines can both observe the same nextID before either inserts,
// then both insert distinct states under that same id. Concurrent callers
// must use InsertNew instead, which allocates and inserts under one lock.
func (m *StateIDMap) NextCandidateID() StateID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID
}

// InsertNew looks up s and, if absent, allocates the next id and inserts it,
// all under a single lock -- the atomic equivalent of NextCandidateID
// followed by FindOrInsert, safe for concurrent callers racing to discover
// the same or different new states.
func (m *StateIDMap) InsertNew(s CompressedState) (StateID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.lookupLocked(s); e != nil {
		return e.id, false
	}

	if m.count >= len(m.buckets)*2 {
		m.growLocked()
	}

	id := m.nextID
	idx := m.bucketFor(s.Hash())
	m.buckets[idx] = &entry{state: s, id: id, next: m.buckets[idx]}
	m.count++
	m.nextID++
	return id, true
}

func (m *StateIDMap) growLocked() {
	old := m.buckets
	m.buckets = make([]*entry, len(old)*2)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			idx := m.bucketFor(e.state.Hash())
			e.next = m.buckets[idx]
			m.buckets[idx] = e
			e = next
		}
	}
}

// Len returns the number of distinct states recorded.
func (m *StateIDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Each calls fn for every (state, id) pair. fn must not call back into m.
func (m *StateIDMap) Each(fn func(CompressedState, StateID)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, head := range m.buckets {
		for e := head; e != nil; e = e.next {
			fn(e.state, e.id)
		}
	}
}
