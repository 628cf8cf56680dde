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

func TestAlertStore_InsertAndLastAlertTime(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAlertStore(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for _, offset := range []time.Duration{-2 * time.Hour, -time.Hour, -90 * time.Minute} {
		err := store.Insert(ctx, &domain.AlertRecord{
			Address:        "0xAAA0000000000000000000000000000000000001",
			Symbol:         "PEPC",
			Score:          8.2,
			Recommendation: domain.RecommendationBuy,
			Message:        "new token alert",
			SentAt:         base.Add(offset),
		})
		require.NoError(t, err)
	}

	// Case-insensitive address match, newest sent_at wins.
	last, err := store.LastAlertTime(ctx, "0xaaa0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.True(t, last.Equal(base.Add(-time.Hour)))
}

func TestAlertStore_LastAlertTimeNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAlertStore(pool)

	_, err := store.LastAlertTime(context.Background(), "0xBBB0000000000000000000000000000000000002")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAlertStore_RecentAlerts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAlertStore(pool)
	ctx := context.Background()

	records := []*domain.AlertRecord{
		{Address: "0xAAA0000000000000000000000000000000000001", Recommendation: domain.RecommendationBuy, SentAt: time.Now().Add(-2 * time.Hour)},
		{Address: "0xBBB0000000000000000000000000000000000002", Recommendation: domain.RecommendationHold, SentAt: time.Now().Add(-5 * time.Minute)},
	}
	for _, a := range records {
		require.NoError(t, store.Insert(ctx, a))
	}

	got, err := store.RecentAlerts(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xBBB0000000000000000000000000000000000002", got[0].Address)
}

func TestAlertStore_InsertInvalid(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAlertStore(pool)

	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.AlertRecord{}), storage.ErrInvalidInput)
}
