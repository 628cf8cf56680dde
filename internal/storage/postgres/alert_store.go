package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert adds an alert record.
func (s *AlertStore) Insert(ctx context.Context, a *domain.AlertRecord) error {
	if a == nil || a.Address == "" {
		return storage.ErrInvalidInput
	}

	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO alerts (id, address, symbol, score, recommendation, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		id,
		a.Address,
		a.Symbol,
		a.Score,
		string(a.Recommendation),
		a.Message,
		a.SentAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// LastAlertTime returns when the address last alerted.
// Returns ErrNotFound if the address has never alerted.
func (s *AlertStore) LastAlertTime(ctx context.Context, address string) (time.Time, error) {
	query := `
		SELECT sent_at FROM alerts
		WHERE lower(address) = lower($1)
		ORDER BY sent_at DESC
		LIMIT 1
	`

	var sentAt time.Time
	err := s.pool.QueryRow(ctx, query, address).Scan(&sentAt)
	if err != nil {
		if noRows(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get last alert time: %w", err)
	}
	return sentAt, nil
}

// RecentAlerts retrieves alerts sent within the given duration, newest first.
func (s *AlertStore) RecentAlerts(ctx context.Context, within time.Duration) ([]*domain.AlertRecord, error) {
	query := `
		SELECT id, address, symbol, score, recommendation, message, sent_at
		FROM alerts
		WHERE sent_at > $1
		ORDER BY sent_at DESC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, time.Now().Add(-within))
	if err != nil {
		return nil, fmt.Errorf("get recent alerts: %w", err)
	}
	defer rows.Close()

	var result []*domain.AlertRecord
	for rows.Next() {
		var a domain.AlertRecord
		var recStr string

		err := rows.Scan(&a.ID, &a.Address, &a.Symbol, &a.Score, &recStr, &a.Message, &a.SentAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}

		a.Recommendation = domain.Recommendation(recStr)
		result = append(result, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}

	return result, nil
}
