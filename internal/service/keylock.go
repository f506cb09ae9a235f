package service

import (
	"sync"

	"github.com/AdirGamil/animeedit/internal/model"
)

// keyedMutex serializes operations per record id while letting operations on
// different ids run in parallel. Entries are reference counted and removed
// when the last holder unlocks.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[model.RecordID]*keyEntry
}

type keyEntry struct {
	refs int
	mu   sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[model.RecordID]*keyEntry)}
}

// Lock acquires the mutex for the given record id.
func (k *keyedMutex) Lock(id model.RecordID) {
	k.mu.Lock()
	entry, exists := k.entries[id]
	if !exists {
		entry = &keyEntry{}
		k.entries[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for the given record id.
func (k *keyedMutex) Unlock(id model.RecordID) {
	k.mu.Lock()
	entry := k.entries[id]
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, id)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
