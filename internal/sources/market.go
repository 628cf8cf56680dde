package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"token-sentinel/internal/domain"
)

// MarketPollerOptions configures the market-scan adapter.
type MarketPollerOptions struct {
	Endpoint     string
	PollInterval time.Duration // default 30s
	RequestRate  rate.Limit    // outbound requests per second, default 2
	Timeout      time.Duration // per-request timeout, default 10s
	// SeenLimit bounds the processed-pair set, default 10000.
	SeenLimit  int
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// MarketPollerAdapter polls a market data endpoint for freshly listed pairs
// and emits one raw candidate per pair it has not seen before. Outbound
// calls go through a circuit breaker so a flapping endpoint is backed off
// instead of hammered.
type MarketPollerAdapter struct {
	opts    MarketPollerOptions
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewMarketPollerAdapter creates a market poller.
func NewMarketPollerAdapter(opts MarketPollerOptions) (*MarketPollerAdapter, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("market poller: endpoint required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.RequestRate <= 0 {
		opts.RequestRate = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SeenLimit <= 0 {
		opts.SeenLimit = 10000
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	settings := gobreaker.Settings{
		Name:     "market_poller",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &MarketPollerAdapter{
		opts:    opts,
		client:  opts.HTTPClient,
		limiter: rate.NewLimiter(opts.RequestRate, 1),
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     opts.Logger.With().Str("component", "source_market").Logger(),
		seen:    make(map[string]struct{}),
	}, nil
}

// Name identifies the adapter.
func (a *MarketPollerAdapter) Name() string { return string(domain.SourceMarketScan) }

// pairListing mirrors the shape of the market endpoint's pair entries.
type pairListing struct {
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
	} `json:"baseToken"`
}

// marketEvent is the payload shape emitted downstream.
type marketEvent struct {
	TokenAddress string `json:"tokenAddress"`
	PairAddress  string `json:"pairAddress"`
}

// Run polls the endpoint until the context is cancelled.
func (a *MarketPollerAdapter) Run(ctx context.Context, emit EmitFunc) error {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	// First poll immediately, then on ticks.
	if err := a.poll(ctx, emit); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.poll(ctx, emit); err != nil {
				return err
			}
		}
	}
}

func (a *MarketPollerAdapter) poll(ctx context.Context, emit EmitFunc) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	result, err := a.breaker.Execute(func() (any, error) {
		return a.fetch(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			a.log.Warn().Msg("market endpoint circuit open, skipping poll")
			return nil
		}
		a.log.Warn().Err(err).Msg("market poll failed")
		return nil
	}

	pairs := result.([]pairListing)
	fresh := 0
	for _, p := range pairs {
		if p.PairAddress == "" || p.BaseToken.Address == "" {
			continue
		}
		if !a.markSeen(p.PairAddress) {
			continue
		}
		fresh++

		payload, err := json.Marshal(marketEvent{
			TokenAddress: p.BaseToken.Address,
			PairAddress:  p.PairAddress,
		})
		if err != nil {
			continue
		}

		raw := domain.RawCandidate{
			Source:     domain.SourceMarketScan,
			Payload:    payload,
			ObservedAt: time.Now().UTC(),
		}
		if err := emit(ctx, raw); err != nil {
			return err
		}
	}

	if fresh > 0 {
		a.log.Debug().Int("fresh_pairs", fresh).Int("total", len(pairs)).Msg("market poll complete")
	}
	return nil
}

func (a *MarketPollerAdapter) fetch(ctx context.Context) ([]pairListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.opts.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build market request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch market pairs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("market endpoint %d: %s", resp.StatusCode, string(b))
	}

	var body struct {
		Pairs []pairListing `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode market response: %w", err)
	}
	return body.Pairs, nil
}

// markSeen records a pair address and reports whether it was new. The set
// is bounded; oldest entries are evicted first.
func (a *MarketPollerAdapter) markSeen(pair string) bool {
	key := strings.ToLower(pair)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.seen[key]; ok {
		return false
	}
	a.seen[key] = struct{}{}
	a.order = append(a.order, key)

	if len(a.order) > a.opts.SeenLimit {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.seen, oldest)
	}
	return true
}
