// Package cache implements the content-addressed incremental cache for generated
// image variants. Keys are derived from source content and job parameters only,
// never from file timestamps.
package cache

import (
	"sync"
)

// Entry is one cached variant. Entries are shared between callers and must be
// treated as read-only.
type Entry struct {
	Data         []byte `cbor:"1,keyasint"`
	Digest       string `cbor:"2,keyasint"`
	Format       string `cbor:"3,keyasint"`
	Width        int    `cbor:"4,keyasint"`
	Height       int    `cbor:"5,keyasint"`
	SourceWidth  int    `cbor:"6,keyasint"`
	SourceHeight int    `cbor:"7,keyasint"`
}

// Valid reports whether the entry's digest matches its data.
func (e *Entry) Valid() bool {
	return e != nil && e.Digest == Digest(e.Data)
}

// AspectRatio is the width/height ratio of the source the entry was rendered
// from, or 1 when unknown.
func (e *Entry) AspectRatio() float64 {
	if e.SourceHeight <= 0 {
		return 1
	}
	return float64(e.SourceWidth) / float64(e.SourceHeight)
}

// Store persists entries by key. A store may drop entries at any time; a miss is
// always recoverable by recomputation.
type Store interface {
	// Get returns the entry for key. A missing entry is (nil, false, nil).
	Get(key string) (*Entry, bool, error)
	// Put stores the entry under key, replacing any previous value.
	Put(key string, e *Entry) error
}

// Evicter is implemented by stores that can drop entries on request.
type Evicter interface {
	// Retain evicts every entry whose key is not in keep and returns the count.
	Retain(keep map[string]struct{}) int
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Get implements Store.
func (s *MemoryStore) Get(key string) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(key string, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

// Delete evicts key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Retain implements Evicter.
func (s *MemoryStore) Retain(keep map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.entries {
		if _, ok := keep[key]; !ok {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
