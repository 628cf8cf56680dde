package scan

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTarget means the identifier does not resolve to a token
// contract at all. This is the only hard scan failure; individual field
// groups degrade to unavailable instead.
var ErrInvalidTarget = errors.New("identifier does not resolve to a token contract")

// TokenFacts is the on-chain field group returned by the chain collaborator.
// HolderCount and DeployedAt stay unset (nil / zero time) when the
// collaborator cannot source them; absent is not the same as zero.
type TokenFacts struct {
	Name        string
	Symbol      string
	Decimals    int
	TotalSupply float64
	HolderCount *int
	DeployedAt  time.Time
}

// MarketStats is the market field group returned by the market collaborator.
type MarketStats struct {
	PriceUSD       float64
	LiquidityUSD   float64
	Volume24hUSD   float64
	PriceChange24h float64
	PairAddress    string
}

// ChainCollaborator reads token facts from chain RPC.
type ChainCollaborator interface {
	// FetchTokenFacts returns on-chain facts for a contract address.
	// Returns ErrInvalidTarget when the address is not a token contract.
	FetchTokenFacts(ctx context.Context, address string) (*TokenFacts, error)
}

// MarketCollaborator reads market stats from a market-data API.
type MarketCollaborator interface {
	// FetchMarketStats returns market stats for a contract address.
	FetchMarketStats(ctx context.Context, address string) (*MarketStats, error)
}
