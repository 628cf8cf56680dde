package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
)

type stubChain struct {
	facts *TokenFacts
	err   error
	calls atomic.Int64
}

func (s *stubChain) FetchTokenFacts(_ context.Context, _ string) (*TokenFacts, error) {
	s.calls.Add(1)
	return s.facts, s.err
}

type stubMarket struct {
	stats *MarketStats
	err   error
	calls atomic.Int64
}

func (s *stubMarket) FetchMarketStats(_ context.Context, _ string) (*MarketStats, error) {
	s.calls.Add(1)
	return s.stats, s.err
}

type flakyChain struct {
	failures int
	facts    *TokenFacts
	calls    atomic.Int64
}

func (f *flakyChain) FetchTokenFacts(_ context.Context, _ string) (*TokenFacts, error) {
	n := f.calls.Add(1)
	if int(n) <= f.failures {
		return nil, errors.New("rpc: connection reset")
	}
	return f.facts, nil
}

func intp(v int) *int { return &v }

func candidate(address string) domain.Candidate {
	return domain.Candidate{
		Address:     address,
		Source:      domain.SourceChainStream,
		FirstSeenAt: time.Now(),
	}
}

func fastOptions(chain ChainCollaborator, market MarketCollaborator) Options {
	return Options{
		Chain:          chain,
		Market:         market,
		Workers:        2,
		QueueDepth:     4,
		CallTimeout:    time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}
}

func TestScan_FullEnrichment(t *testing.T) {
	chain := &stubChain{facts: &TokenFacts{
		Name:        "Pepe Classic",
		Symbol:      "PEPC",
		Decimals:    18,
		TotalSupply: 1e9,
		HolderCount: intp(150),
		DeployedAt:  time.Now().Add(-3 * time.Hour),
	}}
	market := &stubMarket{stats: &MarketStats{
		PriceUSD:     0.0001,
		LiquidityUSD: 15000,
		Volume24hUSD: 40000,
		PairAddress:  "0xPAIR",
	}}

	s := New(fastOptions(chain, market))
	enriched, err := s.Scan(context.Background(), candidate("0xAAA0000000000000000000000000000000000001"))
	require.NoError(t, err)

	require.NotNil(t, enriched.Metadata.Name)
	assert.Equal(t, "Pepe Classic", *enriched.Metadata.Name)
	require.NotNil(t, enriched.Metadata.LiquidityUSD)
	assert.Equal(t, 15000.0, *enriched.Metadata.LiquidityUSD)
	require.NotNil(t, enriched.Metadata.AgeHours)
	assert.InDelta(t, 3.0, *enriched.Metadata.AgeHours, 0.1)
	require.NotNil(t, enriched.Metadata.HolderCount)
	assert.Equal(t, 150, *enriched.Metadata.HolderCount)
}

func TestScan_UnfetchedChainFieldsStayUnavailable(t *testing.T) {
	// An RPC-only collaborator cannot source holder counts or deployment
	// time; those fields must read as unavailable, not zero.
	chain := &stubChain{facts: &TokenFacts{
		Name:        "Tok",
		Symbol:      "TOK",
		Decimals:    18,
		TotalSupply: 1e9,
	}}
	market := &stubMarket{stats: &MarketStats{LiquidityUSD: 15000}}

	s := New(fastOptions(chain, market))
	enriched, err := s.Scan(context.Background(), candidate("0xAAA0000000000000000000000000000000000001"))
	require.NoError(t, err)

	assert.Nil(t, enriched.Metadata.HolderCount, "unfetched holder count must not read as 0")
	assert.Nil(t, enriched.Metadata.AgeHours)
	for _, ind := range enriched.Metadata.SuspiciousIndicators() {
		assert.NotContains(t, ind, "holders", "no holder indicator without holder data")
	}
}

func TestScan_MarketFailureDegradesToUnavailable(t *testing.T) {
	chain := &stubChain{facts: &TokenFacts{Name: "Tok", Symbol: "TOK"}}
	market := &stubMarket{err: errors.New("dexscreener: 503")}

	s := New(fastOptions(chain, market))
	enriched, err := s.Scan(context.Background(), candidate("0xAAA0000000000000000000000000000000000001"))
	require.NoError(t, err, "degraded field group must not fail the scan")

	assert.NotNil(t, enriched.Metadata.Name)
	assert.Nil(t, enriched.Metadata.LiquidityUSD, "liquidity must be explicitly unavailable")
	assert.False(t, enriched.Metadata.LiquidityAvailable())
	// Transient failure is retried up to the cap.
	assert.Equal(t, int64(3), market.calls.Load())
}

func TestScan_DegradeHookFires(t *testing.T) {
	chain := &stubChain{facts: &TokenFacts{Name: "Tok"}}
	market := &stubMarket{err: errors.New("dexscreener: 503")}

	var degraded []string
	opts := fastOptions(chain, market)
	opts.OnDegraded = func(group string) { degraded = append(degraded, group) }

	s := New(opts)
	_, err := s.Scan(context.Background(), candidate("0xAAA0000000000000000000000000000000000001"))
	require.NoError(t, err)
	assert.Equal(t, []string{"market"}, degraded)
}

func TestScan_InvalidTargetIsHardFailure(t *testing.T) {
	chain := &stubChain{err: ErrInvalidTarget}
	market := &stubMarket{stats: &MarketStats{LiquidityUSD: 100}}

	s := New(fastOptions(chain, market))
	_, err := s.Scan(context.Background(), candidate("0xAAA0000000000000000000000000000000000001"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	// Not retried: the target will never resolve.
	assert.Equal(t, int64(1), chain.calls.Load())
}

func TestScan_TransientChainFailureRecovers(t *testing.T) {
	chain := &flakyChain{failures: 2, facts: &TokenFacts{Name: "Tok", Symbol: "TOK"}}
	market := &stubMarket{stats: &MarketStats{LiquidityUSD: 5000}}

	s := New(fastOptions(chain, market))
	enriched, err := s.Scan(context.Background(), candidate("0xAAA0000000000000000000000000000000000001"))
	require.NoError(t, err)
	require.NotNil(t, enriched.Metadata.Name)
	assert.Equal(t, int64(3), chain.calls.Load())
}

func TestSubmit_Backpressure(t *testing.T) {
	chain := &stubChain{facts: &TokenFacts{Name: "Tok"}}
	market := &stubMarket{stats: &MarketStats{}}

	opts := fastOptions(chain, market)
	opts.QueueDepth = 2
	s := New(opts)
	// Pool not started: the queue fills and must reject, never block.

	require.NoError(t, s.Submit(candidate("0x0000000000000000000000000000000000000001")))
	require.NoError(t, s.Submit(candidate("0x0000000000000000000000000000000000000002")))

	err := s.Submit(candidate("0x0000000000000000000000000000000000000003"))
	assert.True(t, errors.Is(err, ErrBackpressure))
}

func TestSubmit_AfterClose(t *testing.T) {
	s := New(fastOptions(&stubChain{}, &stubMarket{}))
	s.Close()
	assert.True(t, errors.Is(s.Submit(candidate("0x0000000000000000000000000000000000000001")), ErrClosed))
}

func TestSubmit_ConcurrentWithClose(t *testing.T) {
	chain := &stubChain{facts: &TokenFacts{Name: "Tok"}}
	market := &stubMarket{stats: &MarketStats{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(fastOptions(chain, market))
	s.Start(ctx)
	go func() {
		for res := range s.Results() {
			_ = res
		}
	}()

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			for i := 0; ; i++ {
				err := s.Submit(candidate(fmt.Sprintf("0x%039d%d", i, g)))
				if errors.Is(err, ErrClosed) {
					return
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}(g)
	}

	time.Sleep(10 * time.Millisecond)
	s.Close()
	close(done)

	// Late submissions must be rejected, never panic on a closed channel.
	assert.True(t, errors.Is(s.Submit(candidate("0x0000000000000000000000000000000000000009")), ErrClosed))
}

func TestScanner_PoolProcessesAndDrains(t *testing.T) {
	chain := &stubChain{facts: &TokenFacts{Name: "Tok", Symbol: "TOK"}}
	market := &stubMarket{stats: &MarketStats{LiquidityUSD: 12000}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(fastOptions(chain, market))
	s.Start(ctx)

	const n = 8
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("0x%040d", i)
		require.NoError(t, s.Submit(candidate(addr)))
	}
	s.Close()

	got := 0
	for res := range s.Results() {
		require.NoError(t, res.Err)
		require.NotNil(t, res.Enriched)
		got++
	}
	assert.Equal(t, n, got)
}
