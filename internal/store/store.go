// Package store provides the in-process memory store, the association index
// and the SQLite persistence adapter.
//
// MemoryStore and AssociationIndex are not safe for concurrent use; the
// engine serialises access to both behind a single lock.
package store

import (
	"sort"
	"time"

	"github.com/rcliao/dsam/internal/model"
)

// MemoryStore owns the set of live memories keyed by ID.
type MemoryStore struct {
	memories map[string]*model.Memory
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memories: make(map[string]*model.Memory)}
}

// Put inserts or replaces a memory.
func (s *MemoryStore) Put(m model.Memory) {
	cp := m.Clone()
	s.memories[m.ID] = &cp
}

// Get returns a copy of the memory with the given ID.
func (s *MemoryStore) Get(id string) (model.Memory, bool) {
	m, ok := s.memories[id]
	if !ok {
		return model.Memory{}, false
	}
	return m.Clone(), true
}

// Has reports whether id is stored.
func (s *MemoryStore) Has(id string) bool {
	_, ok := s.memories[id]
	return ok
}

// Delete removes a memory and returns it.
func (s *MemoryStore) Delete(id string) (model.Memory, bool) {
	m, ok := s.memories[id]
	if !ok {
		return model.Memory{}, false
	}
	delete(s.memories, id)
	return *m, true
}

// Touch sets LastAccessed on every association of the memory.
func (s *MemoryStore) Touch(id string, at time.Time) bool {
	m, ok := s.memories[id]
	if !ok {
		return false
	}
	for i := range m.Associations {
		m.Associations[i].LastAccessed = at
	}
	return true
}

// All returns copies of every memory, newest first.
func (s *MemoryStore) All() []model.Memory {
	out := make([]model.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Len returns the number of stored memories.
func (s *MemoryStore) Len() int {
	return len(s.memories)
}

// Clear drops every memory.
func (s *MemoryStore) Clear() {
	s.memories = make(map[string]*model.Memory)
}
