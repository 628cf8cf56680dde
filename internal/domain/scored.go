package domain

import "time"

// ScoredCandidate is the terminal record for a candidate: enrichment,
// score and the gate's decision. Persisted; immutable once created.
type ScoredCandidate struct {
	ID        string // record UUID, assigned on Save
	Candidate EnrichedCandidate
	Result    ScoreResult
	Notify    bool
	Reason    string // decision reason, e.g. "score above threshold" or "suppressed: cooldown active until ..."
	DecidedAt time.Time
}
