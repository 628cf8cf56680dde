package backend

import (
	"context"
	"time"

	"token-sentinel/internal/domain"
)

// StubScorer is a deterministic offline scorer for dry runs. It derives the
// score from the fingerprint so repeated runs produce identical output
// without touching the network.
type StubScorer struct{}

// NewStubScorer creates a stub scorer.
func NewStubScorer() *StubScorer {
	return &StubScorer{}
}

// Score returns a deterministic verdict without calling any backend.
func (s *StubScorer) Score(_ context.Context, req domain.ScoreRequest) (*domain.ScoreResult, error) {
	var sum int
	for _, b := range []byte(req.Fingerprint) {
		sum += int(b)
	}
	score := float64(sum%101) / 10.0 // 0.0 .. 10.0

	rec := domain.RecommendationAvoid
	switch {
	case score >= 7:
		rec = domain.RecommendationBuy
	case score >= 5:
		rec = domain.RecommendationHold
	}
	if len(req.Indicators) > 2 {
		rec = domain.RecommendationResearch
	}

	return &domain.ScoreResult{
		Fingerprint:    req.Fingerprint,
		Score:          score,
		Confidence:     0.5,
		Recommendation: rec,
		Rationale:      "deterministic stub verdict",
		CostUnits:      0,
		ScoredAt:       time.Now().UTC(),
	}, nil
}
