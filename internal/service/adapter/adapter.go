// Package adapter talks to the individual chatbot vendors. Each variant turns
// a prompt into a response string and reports failures as *Error.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
)

// Adapter is the capability every chatbot variant provides.
type Adapter interface {
	// Connect establishes the credentials a session needs.
	Connect(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error)
	// Send submits prompt using sess and returns the chatbot's answer.
	Send(ctx context.Context, prompt string, sess sessionModel.Session) (string, error)
}

// Set routes targets to the adapter registered for their kind.
type Set struct {
	mu       sync.RWMutex
	adapters map[chatbot.Kind]Adapter
}

// NewSet creates an empty adapter set.
func NewSet() *Set {
	return &Set{adapters: make(map[chatbot.Kind]Adapter)}
}

// Register binds an adapter to a kind, replacing any previous one.
func (s *Set) Register(kind chatbot.Kind, a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[kind] = a
}

// For returns the adapter for kind.
func (s *Set) For(kind chatbot.Kind) (Adapter, error) {
	s.mu.RLock()
	a, ok := s.adapters[kind]
	s.mu.RUnlock()
	if !ok {
		return nil, &Error{Kind: KindUnavailable, Message: fmt.Sprintf("no adapter registered for kind %q", kind)}
	}
	return a, nil
}

// Kinds lists the registered kinds in a stable order.
func (s *Set) Kinds() []chatbot.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]chatbot.Kind, 0, len(s.adapters))
	for k := range s.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Acquire lets the session manager connect through the matching adapter.
func (s *Set) Acquire(ctx context.Context, target chatbot.Target) (sessionModel.Grant, error) {
	a, err := s.For(target.Kind)
	if err != nil {
		return sessionModel.Grant{}, err
	}
	grant, err := a.Connect(ctx, target)
	if err != nil {
		return sessionModel.Grant{}, Classify(err)
	}
	return grant, nil
}
