// Package dexapi reads market stats from a Dexscreener-compatible API.
package dexapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/scan"
)

const defaultBaseURL = "https://api.dexscreener.com"

// Options configures the market data client.
type Options struct {
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string
	// Timeout bounds a single request. Defaults to 10s.
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client implements scan.MarketCollaborator.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

var _ scan.MarketCollaborator = (*Client)(nil)

// NewClient creates a market data client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    opts.HTTPClient,
		log:     opts.Logger.With().Str("component", "dexapi").Logger(),
	}
}

type pairResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	PairAddress string `json:"pairAddress"`
	PriceUSD    string `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
}

// FetchMarketStats returns stats for the deepest pair trading the token.
// A token with no listed pairs yields zero-valued stats rather than an
// error, since brand new tokens often have no indexed pair yet.
func (c *Client) FetchMarketStats(ctx context.Context, address string) (*scan.MarketStats, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pairs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pairs: unexpected status %d", resp.StatusCode)
	}

	var body pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}

	if len(body.Pairs) == 0 {
		c.log.Debug().Str("address", address).Msg("no pairs listed")
		return &scan.MarketStats{}, nil
	}

	best := body.Pairs[0]
	for _, p := range body.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	stats := &scan.MarketStats{
		LiquidityUSD:   best.Liquidity.USD,
		Volume24hUSD:   best.Volume.H24,
		PriceChange24h: best.PriceChange.H24,
		PairAddress:    best.PairAddress,
	}
	if best.PriceUSD != "" {
		price, err := strconv.ParseFloat(best.PriceUSD, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", best.PriceUSD, err)
		}
		stats.PriceUSD = price
	}
	return stats, nil
}
