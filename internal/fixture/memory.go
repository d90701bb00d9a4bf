package fixture

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in memory. It backs in-process SUTs and
// tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Record
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Record)}
}

// Load implements the Store interface
func (s *MemoryStore) Load(_ context.Context, f *Fixture) error {
	collections := make(map[string][]Record, len(f.Collections))
	for _, c := range f.Collections {
		records := make([]Record, len(c.Records))
		for i, r := range c.Records {
			records[i] = clone(r).(Record)
		}
		collections[c.Name] = records
	}

	s.mu.Lock()
	s.collections = collections
	s.mu.Unlock()
	return nil
}

// Clear implements the Store interface
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.collections = make(map[string][]Record)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of a collection's records in stored order
func (s *MemoryStore) Records(collection string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.collections[collection]...)
}

// Insert appends a record to a collection
func (s *MemoryStore) Insert(collection string, record Record) {
	s.mu.Lock()
	s.collections[collection] = append(s.collections[collection], record)
	s.mu.Unlock()
}

// clone deep-copies decoded JSON so stored records never share maps with the
// fixture they were loaded from.
func clone(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = clone(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = clone(item)
		}
		return out
	}
	return v
}
