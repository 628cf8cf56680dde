package domain

// Source identifies the ingestion source that produced a candidate.
type Source string

const (
	SourceChainStream Source = "CHAIN_STREAM" // on-chain event subscription
	SourceMarketScan  Source = "MARKET_SCAN"  // market-data poller (pair listings)
	SourceSocialFeed  Source = "SOCIAL_FEED"  // text-based social feeds
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	return s == SourceChainStream || s == SourceMarketScan || s == SourceSocialFeed
}
