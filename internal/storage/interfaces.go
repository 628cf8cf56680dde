package storage

import (
	"context"
	"time"

	"token-sentinel/internal/domain"
)

// ScoredCandidateStore provides access to scored-candidate storage.
// Every terminal pipeline outcome (notified, suppressed, failed) lands here
// with its decision reason so operators can audit why a candidate did or
// did not alert.
type ScoredCandidateStore interface {
	// Save persists a scored candidate and returns its record ID.
	// A new UUID is assigned when sc.ID is empty.
	Save(ctx context.Context, sc *domain.ScoredCandidate) (string, error)

	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.ScoredCandidate, error)

	// GetByAddress retrieves all records for a contract address,
	// newest first.
	GetByAddress(ctx context.Context, address string) ([]*domain.ScoredCandidate, error)

	// GetByTimeRange retrieves records decided within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ScoredCandidate, error)

	// Exists reports whether any record for the address was decided
	// within the given duration before now.
	Exists(ctx context.Context, address string, within time.Duration) (bool, error)
}

// AlertStore provides access to the dispatched-alert audit trail.
type AlertStore interface {
	// Insert adds an alert record. A new UUID is assigned when a.ID is empty.
	Insert(ctx context.Context, a *domain.AlertRecord) error

	// LastAlertTime returns when the address last alerted.
	// Returns ErrNotFound if it never has.
	LastAlertTime(ctx context.Context, address string) (time.Time, error)

	// RecentAlerts retrieves alerts sent within the given duration
	// before now, newest first.
	RecentAlerts(ctx context.Context, within time.Duration) ([]*domain.AlertRecord, error)
}
