package session

import (
	"context"
	"sync"

	"github.com/hupe1980/supportdesk/core"
)

type threadKey struct{ workspaceID, threadID string }

// InMemoryStore is a volatile Store keeping threads in a process local map.
// It is safe for concurrent access. Messages are cloned on the way in and
// out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	threads     map[threadKey][]core.Content
	maxMessages int
}

// InMemoryOptions configure an InMemoryStore.
type InMemoryOptions struct {
	// MaxMessages trims each thread to its most recent messages (0 = unlimited).
	MaxMessages int
}

// NewInMemoryStore constructs an empty in‑memory store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{threads: map[threadKey][]core.Content{}, maxMessages: opts.MaxMessages}
}

// Load implements Store.
func (s *InMemoryStore) Load(_ context.Context, workspaceID, threadID string) ([]core.Content, error) {
	if err := validate(workspaceID, threadID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.threads[threadKey{workspaceID, threadID}]), nil
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, workspaceID, threadID string, contents ...core.Content) error {
	if err := validate(workspaceID, threadID); err != nil {
		return err
	}
	if len(contents) == 0 {
		return nil
	}
	key := threadKey{workspaceID, threadID}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.threads[key], cloneAll(contents)...)
	s.threads[key] = trim(msgs, s.maxMessages)
	return nil
}

// Threads returns the number of known threads.
func (s *InMemoryStore) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func cloneAll(in []core.Content) []core.Content {
	out := make([]core.Content, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

var _ Store = (*InMemoryStore)(nil)
