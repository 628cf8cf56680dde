package domain

import "time"

// Recommendation is the scoring backend's verdict for a candidate.
type Recommendation string

const (
	RecommendationBuy      Recommendation = "BUY"
	RecommendationHold     Recommendation = "HOLD"
	RecommendationAvoid    Recommendation = "AVOID"
	RecommendationResearch Recommendation = "RESEARCH" // insufficient data
)

// IsValid checks if the recommendation is a valid value.
func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendationBuy, RecommendationHold, RecommendationAvoid, RecommendationResearch:
		return true
	}
	return false
}

// ScoreRequest is the input contract for the scoring backend.
type ScoreRequest struct {
	Fingerprint string // stable hash of the scoring-relevant fields
	Candidate   EnrichedCandidate
	Indicators  []string // suspicious-pattern hints surfaced to the backend
}

// ScoreResult is the scoring backend's response. Cached by fingerprint.
type ScoreResult struct {
	Fingerprint    string
	Score          float64 // 0..10
	Confidence     float64 // 0..1
	Recommendation Recommendation
	Rationale      string
	Risks          []string
	Opportunities  []string
	CostUnits      int64 // backend tokens consumed; zero on cache hit
	ScoredAt       time.Time
	Cached         bool
}
