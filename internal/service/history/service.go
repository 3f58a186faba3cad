package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/history"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
)

var ErrEntryNotFound = errors.New("history entry not found")

// Service keeps the most recent dispatches in memory.
type Service struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	entries  map[string]history.Entry
}

// NewService creates a history bounded to capacity entries.
func NewService(capacity int) *Service {
	if capacity < 1 {
		capacity = 1
	}
	return &Service{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		entries:  make(map[string]history.Entry, capacity),
	}
}

// Record stores a finished dispatch, evicting the oldest entry when full.
func (s *Service) Record(_ context.Context, req prompt.Request, bundle prompt.Bundle) history.Entry {
	entry := history.Entry{
		ID:        uuid.NewString(),
		Prompt:    req.Prompt,
		Chatbots:  append([]string(nil), req.Chatbots...),
		Bundle:    bundle,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	s.order = append(s.order, entry.ID)
	s.entries[entry.ID] = entry

	return entry
}

// Get retrieves an entry by identifier.
func (s *Service) Get(_ context.Context, id string) (history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return history.Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// List returns up to limit summaries, newest first. limit <= 0 means all.
func (s *Service) List(_ context.Context, limit int) []history.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}

	result := make([]history.Summary, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.entries[s.order[i]].Summarize())
	}
	return result
}

// Len reports how many entries are stored.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
