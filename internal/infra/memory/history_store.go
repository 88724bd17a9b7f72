package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// HistoryStore keeps finished session results per user in process.
type HistoryStore struct {
	mu      sync.RWMutex
	results map[string][]domain.SessionResult
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{results: make(map[string][]domain.SessionResult)}
}

// Save appends result for userID; a result ID already stored is ignored.
func (s *HistoryStore) Save(_ context.Context, userID string, result domain.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.results[userID] {
		if existing.ID == result.ID {
			return nil
		}
	}
	s.results[userID] = append(s.results[userID], result)
	return nil
}

// List returns the user's results in insertion order.
func (s *HistoryStore) List(_ context.Context, userID string) ([]domain.SessionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SessionResult{}, s.results[userID]...), nil
}
