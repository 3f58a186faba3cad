package chatbot

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetNotFound is returned by Resolve for ids absent from the registry.
	ErrTargetNotFound = errors.New("chatbot target not found")
	// ErrTargetDisabled is returned by Select for disabled targets.
	ErrTargetDisabled = errors.New("chatbot target disabled")
)

// Store exposes read-only chatbot lookups for the dispatcher and handlers.
type Store interface {
	// List returns enabled targets only.
	List() []Target
	// All returns every target, including disabled ones.
	All() []Target
	// Resolve finds a target by id, disabled or not.
	Resolve(id string) (Target, error)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Target
	index map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied targets.
// Later duplicates of an id are ignored; use Validate to reject them instead.
func NewMemoryStore(items []Target) *MemoryStore {
	s := &MemoryStore{index: make(map[string]int, len(items))}
	for _, item := range items {
		if _, dup := s.index[item.ID]; dup {
			continue
		}
		if item.Kind == "" {
			item.Kind = Kind(item.ID)
		}
		s.index[item.ID] = len(s.items)
		s.items = append(s.items, item)
	}
	return s
}

// List returns the enabled targets in registry order.
func (s *MemoryStore) List() []Target {
	result := make([]Target, 0, len(s.items))
	for _, item := range s.items {
		if item.Enabled {
			result = append(result, item)
		}
	}
	return result
}

// All returns every target in registry order.
func (s *MemoryStore) All() []Target {
	return append([]Target(nil), s.items...)
}

// Resolve looks up a target by identifier.
func (s *MemoryStore) Resolve(id string) (Target, error) {
	idx, ok := s.index[id]
	if !ok {
		return Target{}, ErrTargetNotFound
	}
	return s.items[idx], nil
}

// Select resolves ids to enabled targets. An empty list selects every
// enabled target.
func Select(store Store, ids []string) ([]Target, error) {
	if len(ids) == 0 {
		return store.List(), nil
	}

	targets := make([]Target, 0, len(ids))
	for _, id := range ids {
		target, err := store.Resolve(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		if !target.Enabled {
			return nil, fmt.Errorf("%w: %s", ErrTargetDisabled, id)
		}
		targets = append(targets, target)
	}
	return targets, nil
}
