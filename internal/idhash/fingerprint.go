package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"token-sentinel/internal/domain"
)

// ComputeFingerprint computes a deterministic analysis fingerprint using SHA256
// over the subset of enrichment fields that influence scoring.
// Formula: SHA256(address|name|symbol|decimals|supply|holders|liquidity|age_bucket)
// Returns hex-encoded hash (64 characters).
//
// Liquidity is rounded to whole dollars and age to the hour so that jitter
// from repeated collaborator reads does not defeat the analysis cache.
func ComputeFingerprint(c *domain.EnrichedCandidate) string {
	m := &c.Metadata

	parts := []string{
		strings.ToLower(c.Address),
		strOrDash(m.Name),
		strOrDash(m.Symbol),
		intOrDash(m.Decimals),
		floatOrDash(m.TotalSupply, 0),
		intOrDash(m.HolderCount),
		floatOrDash(m.LiquidityUSD, 0),
		floatOrDash(m.AgeHours, 0),
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func floatOrDash(v *float64, decimals int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}
