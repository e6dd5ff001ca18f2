package language

import "strings"

// Store exposes the language catalog to services and HTTP handlers.
type Store interface {
	List() []Entry
	FindByCode(code string) (Entry, bool)
}

// MemoryStore implements Store with an immutable in-memory slice.
type MemoryStore struct {
	items []Entry
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied entries.
func NewMemoryStore(items []Entry) *MemoryStore {
	return &MemoryStore{items: append([]Entry(nil), items...)}
}

// List returns the catalog in its configured order.
func (s *MemoryStore) List() []Entry {
	return append([]Entry(nil), s.items...)
}

// FindByCode looks up a language by its ISO 639-1 code, ignoring case and surrounding spaces.
func (s *MemoryStore) FindByCode(code string) (Entry, bool) {
	normalized := Normalize(code)
	for _, item := range s.items {
		if item.Code == normalized {
			return item, true
		}
	}
	return Entry{}, false
}

// Normalize 统一语言代码格式。
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
