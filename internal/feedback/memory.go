package feedback

import (
	"context"
	"sync"
)

// MemoryStore keeps responses and ratings in process memory. It backs
// tests and local development; production uses PostgresStore or FileStore.
type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]ResponseMeta
	feedback  []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{responses: make(map[string]ResponseMeta)}
}

// SaveResponse stores the metadata for a completed turn.
func (s *MemoryStore) SaveResponse(_ context.Context, meta ResponseMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[meta.ResponseID] = meta
	return nil
}

// GetResponse looks up a recorded response.
func (s *MemoryStore) GetResponse(_ context.Context, responseID string) (ResponseMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.responses[responseID]
	if !ok {
		return ResponseMeta{}, ErrResponseNotFound
	}
	return meta, nil
}

// SaveFeedback appends one rating.
func (s *MemoryStore) SaveFeedback(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, rec)
	return nil
}

// Feedback returns a snapshot of all stored ratings.
func (s *MemoryStore) Feedback() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.feedback))
	copy(out, s.feedback)
	return out
}

// ResponseCount reports how many responses have been recorded.
func (s *MemoryStore) ResponseCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responses)
}
