package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// ScoredCandidateStore implements storage.ScoredCandidateStore using PostgreSQL.
type ScoredCandidateStore struct {
	pool *Pool
}

// NewScoredCandidateStore creates a new ScoredCandidateStore.
func NewScoredCandidateStore(pool *Pool) *ScoredCandidateStore {
	return &ScoredCandidateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScoredCandidateStore = (*ScoredCandidateStore)(nil)

const scoredColumns = `
	id, address, source, first_seen_at, snippet,
	name, symbol, decimals, total_supply, liquidity_usd, holder_count,
	age_hours, price_usd, volume_24h_usd, price_change_24h, pair_address,
	fingerprint, score, confidence, recommendation, rationale,
	risks, opportunities, cost_units, scored_at, cached,
	notify, reason, decided_at
`

// Save persists a scored candidate and returns its record ID.
// Returns ErrDuplicateKey if the ID already exists.
func (s *ScoredCandidateStore) Save(ctx context.Context, sc *domain.ScoredCandidate) (string, error) {
	if sc == nil || sc.Candidate.Address == "" {
		return "", storage.ErrInvalidInput
	}

	id := sc.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO scored_candidates (
			id, address, source, first_seen_at, snippet,
			name, symbol, decimals, total_supply, liquidity_usd, holder_count,
			age_hours, price_usd, volume_24h_usd, price_change_24h, pair_address,
			fingerprint, score, confidence, recommendation, rationale,
			risks, opportunities, cost_units, scored_at, cached,
			notify, reason, decided_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26,
			$27, $28, $29
		)
	`

	m := sc.Candidate.Metadata
	_, err := s.pool.Exec(ctx, query,
		id,
		sc.Candidate.Address,
		string(sc.Candidate.Source),
		sc.Candidate.FirstSeenAt,
		sc.Candidate.Snippet,
		m.Name,
		m.Symbol,
		m.Decimals,
		m.TotalSupply,
		m.LiquidityUSD,
		m.HolderCount,
		m.AgeHours,
		m.PriceUSD,
		m.Volume24hUSD,
		m.PriceChange24h,
		m.PairAddress,
		sc.Result.Fingerprint,
		sc.Result.Score,
		sc.Result.Confidence,
		string(sc.Result.Recommendation),
		sc.Result.Rationale,
		sc.Result.Risks,
		sc.Result.Opportunities,
		sc.Result.CostUnits,
		sc.Result.ScoredAt,
		sc.Result.Cached,
		sc.Notify,
		sc.Reason,
		sc.DecidedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrDuplicateKey
		}
		return "", fmt.Errorf("insert scored candidate: %w", err)
	}
	return id, nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *ScoredCandidateStore) GetByID(ctx context.Context, id string) (*domain.ScoredCandidate, error) {
	query := `SELECT ` + scoredColumns + ` FROM scored_candidates WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	sc, err := scanScored(row)
	if err != nil {
		if noRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scored candidate by id: %w", err)
	}
	return sc, nil
}

// GetByAddress retrieves all records for a contract address, newest first.
func (s *ScoredCandidateStore) GetByAddress(ctx context.Context, address string) ([]*domain.ScoredCandidate, error) {
	query := `
		SELECT ` + scoredColumns + `
		FROM scored_candidates
		WHERE lower(address) = lower($1)
		ORDER BY decided_at DESC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get scored candidates by address: %w", err)
	}
	defer rows.Close()

	return scanScoredRows(rows)
}

// GetByTimeRange retrieves records decided within [start, end] (inclusive).
func (s *ScoredCandidateStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ScoredCandidate, error) {
	query := `
		SELECT ` + scoredColumns + `
		FROM scored_candidates
		WHERE decided_at >= $1 AND decided_at <= $2
		ORDER BY decided_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get scored candidates by time range: %w", err)
	}
	defer rows.Close()

	return scanScoredRows(rows)
}

// Exists reports whether any record for the address was decided within the
// given duration before now.
func (s *ScoredCandidateStore) Exists(ctx context.Context, address string, within time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM scored_candidates
			WHERE lower(address) = lower($1) AND decided_at > $2
		)
	`

	var exists bool
	err := s.pool.QueryRow(ctx, query, address, time.Now().Add(-within)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check scored candidate exists: %w", err)
	}
	return exists, nil
}

// scanScored scans a single row into a ScoredCandidate.
func scanScored(row pgx.Row) (*domain.ScoredCandidate, error) {
	var sc domain.ScoredCandidate
	var sourceStr, recStr string

	err := row.Scan(
		&sc.ID,
		&sc.Candidate.Address,
		&sourceStr,
		&sc.Candidate.FirstSeenAt,
		&sc.Candidate.Snippet,
		&sc.Candidate.Metadata.Name,
		&sc.Candidate.Metadata.Symbol,
		&sc.Candidate.Metadata.Decimals,
		&sc.Candidate.Metadata.TotalSupply,
		&sc.Candidate.Metadata.LiquidityUSD,
		&sc.Candidate.Metadata.HolderCount,
		&sc.Candidate.Metadata.AgeHours,
		&sc.Candidate.Metadata.PriceUSD,
		&sc.Candidate.Metadata.Volume24hUSD,
		&sc.Candidate.Metadata.PriceChange24h,
		&sc.Candidate.Metadata.PairAddress,
		&sc.Result.Fingerprint,
		&sc.Result.Score,
		&sc.Result.Confidence,
		&recStr,
		&sc.Result.Rationale,
		&sc.Result.Risks,
		&sc.Result.Opportunities,
		&sc.Result.CostUnits,
		&sc.Result.ScoredAt,
		&sc.Result.Cached,
		&sc.Notify,
		&sc.Reason,
		&sc.DecidedAt,
	)
	if err != nil {
		return nil, err
	}

	sc.Candidate.Source = domain.Source(sourceStr)
	sc.Result.Recommendation = domain.Recommendation(recStr)
	return &sc, nil
}

// scanScoredRows scans multiple rows into a slice of ScoredCandidate.
func scanScoredRows(rows pgx.Rows) ([]*domain.ScoredCandidate, error) {
	var result []*domain.ScoredCandidate

	for rows.Next() {
		sc, err := scanScored(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scored candidate row: %w", err)
		}
		result = append(result, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored candidate rows: %w", err)
	}

	return result, nil
}
