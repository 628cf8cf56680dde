package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

func makeScored(address string, decidedAt time.Time) *domain.ScoredCandidate {
	return &domain.ScoredCandidate{
		Candidate: domain.EnrichedCandidate{
			Candidate: domain.Candidate{
				Address:     address,
				Source:      domain.SourceChainStream,
				FirstSeenAt: decidedAt.Add(-time.Minute),
				Snippet:     "new pair created",
			},
			Metadata: domain.TokenMetadata{
				Name:         ptr("Pepe Classic"),
				Symbol:       ptr("PEPC"),
				Decimals:     ptr(18),
				LiquidityUSD: ptr(15000.0),
				HolderCount:  ptr(42),
			},
		},
		Result: domain.ScoreResult{
			Fingerprint:    "fp-abc",
			Score:          8.2,
			Confidence:     0.85,
			Recommendation: domain.RecommendationBuy,
			Rationale:      "strong early liquidity",
			Risks:          []string{"low holder count", "young token"},
			Opportunities:  []string{"first mover"},
			CostUnits:      1200,
			ScoredAt:       decidedAt,
		},
		Notify:    true,
		Reason:    "score 8.20 at or above threshold 7.00",
		DecidedAt: decidedAt,
	}
}

func TestScoredCandidateStore_SaveAndGetByID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScoredCandidateStore(pool)
	ctx := context.Background()

	sc := makeScored("0xAAA0000000000000000000000000000000000001", time.Now().UTC().Truncate(time.Microsecond))

	id, err := store.Save(ctx, sc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, sc.Candidate.Address, got.Candidate.Address)
	assert.Equal(t, sc.Candidate.Source, got.Candidate.Source)
	assert.Equal(t, sc.Result.Score, got.Result.Score)
	assert.Equal(t, sc.Result.Confidence, got.Result.Confidence)
	assert.Equal(t, sc.Result.Recommendation, got.Result.Recommendation)
	assert.Equal(t, sc.Result.Rationale, got.Result.Rationale)
	assert.Equal(t, sc.Result.Risks, got.Result.Risks)
	assert.Equal(t, sc.Result.Opportunities, got.Result.Opportunities)
	assert.Equal(t, sc.Result.CostUnits, got.Result.CostUnits)
	assert.Equal(t, sc.Notify, got.Notify)
	assert.Equal(t, sc.Reason, got.Reason)
	assert.Equal(t, *sc.Candidate.Metadata.Name, *got.Candidate.Metadata.Name)
	assert.Equal(t, *sc.Candidate.Metadata.LiquidityUSD, *got.Candidate.Metadata.LiquidityUSD)
	assert.True(t, sc.DecidedAt.Equal(got.DecidedAt))
}

func TestScoredCandidateStore_SaveDuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScoredCandidateStore(pool)
	ctx := context.Background()

	sc := makeScored("0xAAA0000000000000000000000000000000000001", time.Now())
	sc.ID = "fixed-id"

	_, err := store.Save(ctx, sc)
	require.NoError(t, err)

	_, err = store.Save(ctx, sc)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestScoredCandidateStore_GetByIDNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScoredCandidateStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoredCandidateStore_GetByAddress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScoredCandidateStore(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for _, offset := range []time.Duration{0, time.Hour} {
		_, err := store.Save(ctx, makeScored("0xAbC0000000000000000000000000000000000001", base.Add(offset)))
		require.NoError(t, err)
	}
	_, err := store.Save(ctx, makeScored("0xBBB0000000000000000000000000000000000002", base))
	require.NoError(t, err)

	// Mixed-case lookup must match.
	got, err := store.GetByAddress(ctx, "0xABC0000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].DecidedAt.After(got[1].DecidedAt), "newest first")
}

func TestScoredCandidateStore_GetByTimeRange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScoredCandidateStore(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for _, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		_, err := store.Save(ctx, makeScored("0xAAA0000000000000000000000000000000000001", base.Add(offset)))
		require.NoError(t, err)
	}

	got, err := store.GetByTimeRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].DecidedAt.Before(got[1].DecidedAt), "oldest first")
}

func TestScoredCandidateStore_Exists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScoredCandidateStore(pool)
	ctx := context.Background()

	_, err := store.Save(ctx, makeScored("0xAAA0000000000000000000000000000000000001", time.Now().Add(-30*time.Minute)))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "0xaaa0000000000000000000000000000000000001", time.Hour)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "0xaaa0000000000000000000000000000000000001", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
}
