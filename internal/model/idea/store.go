package idea

// Store exposes suggestion retrieval for HTTP handlers.
type Store interface {
	List() []Idea
	FindByID(id string) (Idea, bool)
}

// MemoryStore implements Store with a fixed in-memory slice.
type MemoryStore struct {
	items []Idea
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied ideas.
func NewMemoryStore(items []Idea) *MemoryStore {
	return &MemoryStore{items: append([]Idea(nil), items...)}
}

// List returns a copy of the configured ideas.
func (s *MemoryStore) List() []Idea {
	return append([]Idea(nil), s.items...)
}

// FindByID looks up an idea by identifier.
func (s *MemoryStore) FindByID(id string) (Idea, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Idea{}, false
}
