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

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.RWMutex
	data []*domain.AlertRecord
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert adds an alert record.
func (s *AlertStore) Insert(_ context.Context, a *domain.AlertRecord) error {
	if a == nil || a.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := *a
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.data = append(s.data, &record)
	return nil
}

// LastAlertTime returns when the address last alerted.
func (s *AlertStore) LastAlertTime(_ context.Context, address string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	found := false
	for _, a := range s.data {
		if strings.EqualFold(a.Address, address) && a.SentAt.After(last) {
			last = a.SentAt
			found = true
		}
	}
	if !found {
		return time.Time{}, storage.ErrNotFound
	}
	return last, nil
}

// RecentAlerts retrieves alerts sent within the given duration, newest first.
func (s *AlertStore) RecentAlerts(_ context.Context, within time.Duration) ([]*domain.AlertRecord, error) {
	cutoff := time.Now().Add(-within)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AlertRecord
	for _, a := range s.data {
		if a.SentAt.After(cutoff) {
			record := *a
			result = append(result, &record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SentAt.After(result[j].SentAt)
	})
	return result, nil
}
