package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// ScoredCandidateStore is an in-memory implementation of
// storage.ScoredCandidateStore.
type ScoredCandidateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ScoredCandidate // keyed by record ID
}

// NewScoredCandidateStore creates a new in-memory scored-candidate store.
func NewScoredCandidateStore() *ScoredCandidateStore {
	return &ScoredCandidateStore{
		data: make(map[string]*domain.ScoredCandidate),
	}
}

// Compile-time interface check.
var _ storage.ScoredCandidateStore = (*ScoredCandidateStore)(nil)

// Save persists a scored candidate and returns its record ID.
func (s *ScoredCandidateStore) Save(_ context.Context, sc *domain.ScoredCandidate) (string, error) {
	if sc == nil || sc.Candidate.Address == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := *sc
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, exists := s.data[record.ID]; exists {
		return "", storage.ErrDuplicateKey
	}

	s.data[record.ID] = &record
	return record.ID, nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *ScoredCandidateStore) GetByID(_ context.Context, id string) (*domain.ScoredCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy to prevent external mutation.
	record := *sc
	return &record, nil
}

// GetByAddress retrieves all records for a contract address, newest first.
func (s *ScoredCandidateStore) GetByAddress(_ context.Context, address string) ([]*domain.ScoredCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoredCandidate
	for _, sc := range s.data {
		if strings.EqualFold(sc.Candidate.Address, address) {
			record := *sc
			result = append(result, &record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DecidedAt.After(result[j].DecidedAt)
	})
	return result, nil
}

// GetByTimeRange retrieves records decided within [start, end] (inclusive).
func (s *ScoredCandidateStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.ScoredCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScoredCandidate
	for _, sc := range s.data {
		if !sc.DecidedAt.Before(start) && !sc.DecidedAt.After(end) {
			record := *sc
			result = append(result, &record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DecidedAt.Before(result[j].DecidedAt)
	})
	return result, nil
}

// Exists reports whether any record for the address was decided within the
// given duration before now.
func (s *ScoredCandidateStore) Exists(_ context.Context, address string, within time.Duration) (bool, error) {
	cutoff := time.Now().Add(-within)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sc := range s.data {
		if strings.EqualFold(sc.Candidate.Address, address) && sc.DecidedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
