package domain

import "fmt"

// TokenMetadata holds enrichment data for a candidate. Nil pointer fields
// mean the collaborator could not provide the value (timed out or errored);
// "unavailable" is an explicit state, distinct from zero.
type TokenMetadata struct {
	Name           *string
	Symbol         *string
	Decimals       *int
	TotalSupply    *float64
	LiquidityUSD   *float64
	HolderCount    *int
	AgeHours       *float64
	PriceUSD       *float64
	Volume24hUSD   *float64
	PriceChange24h *float64
	PairAddress    *string // primary DEX pair, when known
}

// Validate checks field invariants. Age and liquidity, when present,
// must be non-negative.
func (m *TokenMetadata) Validate() error {
	if m.AgeHours != nil && *m.AgeHours < 0 {
		return fmt.Errorf("token metadata: negative age %f", *m.AgeHours)
	}
	if m.LiquidityUSD != nil && *m.LiquidityUSD < 0 {
		return fmt.Errorf("token metadata: negative liquidity %f", *m.LiquidityUSD)
	}
	return nil
}

// LiquidityAvailable reports whether liquidity was resolved.
func (m *TokenMetadata) LiquidityAvailable() bool {
	return m.LiquidityUSD != nil
}

// SuspiciousIndicators returns red-flag descriptions derived from the
// metadata: oversized supply, near-empty holder set, thin liquidity
// relative to volume.
func (m *TokenMetadata) SuspiciousIndicators() []string {
	var indicators []string
	if m.TotalSupply != nil && *m.TotalSupply > 1e12 {
		indicators = append(indicators, fmt.Sprintf("total supply above 1T (%.0f)", *m.TotalSupply))
	}
	if m.HolderCount != nil && *m.HolderCount < 10 {
		indicators = append(indicators, fmt.Sprintf("fewer than 10 holders (%d)", *m.HolderCount))
	}
	if m.LiquidityUSD != nil && m.Volume24hUSD != nil && *m.LiquidityUSD > 0 {
		if *m.Volume24hUSD / *m.LiquidityUSD > 50 {
			indicators = append(indicators, "24h volume exceeds 50x liquidity")
		}
	}
	return indicators
}
