package domain

import "time"

// RawCandidate is an unvalidated event handed over by a source adapter.
// It is discarded after normalization.
type RawCandidate struct {
	Source     Source
	Payload    []byte // opaque source payload (JSON blob, free text, ...)
	ObservedAt time.Time
}

// Candidate is a validated, canonicalized token candidate.
// Address is the EIP-55 checksummed contract address and serves as the
// canonical identifier throughout the pipeline. Immutable once created.
type Candidate struct {
	Address     string // EIP-55 checksummed contract address
	Source      Source
	FirstSeenAt time.Time
	Snippet     string // free-text context for social sources, empty otherwise
}

// EnrichedCandidate is a Candidate plus the metadata collected by the scanner.
type EnrichedCandidate struct {
	Candidate
	Metadata TokenMetadata
}
