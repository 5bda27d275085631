package service

import (
	"sync"

	id "pact/pkg/domain"
)

// keyedLocks serializes read-modify-write cycles per contract. Entries are
// reference-counted and removed once the last holder releases, so the map
// never grows with the contract population.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[id.ContractID]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[id.ContractID]*lockEntry)}
}

// lock acquires the lock for contractID and returns the release func.
func (k *keyedLocks) lock(contractID id.ContractID) func() {
	k.mu.Lock()
	entry, ok := k.locks[contractID]
	if !ok {
		entry = &lockEntry{}
		k.locks[contractID] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, contractID)
		}
		k.mu.Unlock()
	}
}
