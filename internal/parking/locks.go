package parking

import "sync"

// LockTable hands out one mutex per identity ID so that token issuance
// and confirmation for the same identity serialize, while operations on
// different identities stay fully independent.
//
// Mutexes are never evicted; the table grows with the number of distinct
// identities seen, which is bounded by the registered population.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

// Acquire returns the mutex for the given identity, creating it on first
// use. The caller locks and unlocks it.
func (t *LockTable) Acquire(identityID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.locks[identityID]
	if !ok {
		m = &sync.Mutex{}
		t.locks[identityID] = m
	}
	return m
}
