package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is the in-memory knowledge base. Every superseded revision is
// retained in history; nothing is ever deleted.
type MemStore struct {
	mu      sync.RWMutex
	current map[string]Document
	history map[string][]Document
}

// NewMemStore creates an empty in-memory knowledge base.
func NewMemStore() *MemStore {
	return &MemStore{
		current: make(map[string]Document),
		history: make(map[string][]Document),
	}
}

// Read implements Store.
func (s *MemStore) Read(_ context.Context, name string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.current[name]
	if !ok {
		return Document{}, notFound(name)
	}
	return doc, nil
}

// Write implements Store.
func (s *MemStore) Write(_ context.Context, name, content string, expectedVersion int) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual := 0
	if existing, ok := s.current[name]; ok {
		actual = existing.Version
	}
	if actual != expectedVersion {
		return Document{}, conflict(name, expectedVersion, actual)
	}

	if existing, ok := s.current[name]; ok {
		s.history[name] = append(s.history[name], existing)
	}
	doc := Document{
		Name:      name,
		Version:   expectedVersion + 1,
		Content:   content,
		UpdatedAt: time.Now().UTC(),
	}
	s.current[name] = doc
	return doc, nil
}

// Names implements Store.
func (s *MemStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.current))
	for name := range s.current {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// History returns the superseded revisions of a document, oldest first.
func (s *MemStore) History(_ context.Context, name string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, len(s.history[name]))
	copy(out, s.history[name])
	return out, nil
}

var _ Store = (*MemStore)(nil)
