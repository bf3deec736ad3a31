package chat

import (
	"context"
	"slices"
	"sync"
)

// Store persists conversations. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append adds msgs to the end of the session's log.
	Append(ctx context.Context, sessionID string, agent Agent, msgs ...Message) error

	// Conversation returns the session's log, or [ErrNotFound].
	Conversation(ctx context.Context, sessionID string) (Conversation, error)
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*Conversation)}
}

// Append implements [Store].
func (s *MemoryStore) Append(_ context.Context, sessionID string, agent Agent, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[sessionID]
	if !ok {
		c = &Conversation{SessionID: sessionID}
		s.convs[sessionID] = c
	}
	c.Agent = agent
	c.Messages = append(c.Messages, msgs...)
	return nil
}

// Conversation implements [Store]. The returned messages are a copy.
func (s *MemoryStore) Conversation(_ context.Context, sessionID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[sessionID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	out := *c
	out.Messages = slices.Clone(c.Messages)
	return out, nil
}
