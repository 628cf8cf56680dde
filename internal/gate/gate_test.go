package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
)

type recordingNotifier struct {
	mu         sync.Mutex
	dispatched []*domain.ScoredCandidate
	err        error
	calls      atomic.Int64
}

func (n *recordingNotifier) Dispatch(_ context.Context, sc *domain.ScoredCandidate) error {
	n.calls.Add(1)
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	n.dispatched = append(n.dispatched, sc)
	n.mu.Unlock()
	return nil
}

func scored(address string, score float64, liquidity *float64) (*domain.EnrichedCandidate, *domain.ScoreResult) {
	enriched := &domain.EnrichedCandidate{
		Candidate: domain.Candidate{Address: address, Source: domain.SourceChainStream},
		Metadata:  domain.TokenMetadata{LiquidityUSD: liquidity},
	}
	result := &domain.ScoreResult{
		Score:          score,
		Confidence:     0.8,
		Recommendation: domain.RecommendationBuy,
	}
	return enriched, result
}

func f64(v float64) *float64 { return &v }

func TestDecide_NotifyWhenAllPass(t *testing.T) {
	g := New(Options{MinScore: 7.0, MinLiquidityUSD: 10000})

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 8.2, f64(15000)))
	assert.True(t, sc.Notify)
	assert.Contains(t, sc.Reason, "at or above threshold")
}

func TestDecide_ScoreBelowThreshold(t *testing.T) {
	g := New(Options{MinScore: 7.0, MinLiquidityUSD: 10000})

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 6.9, f64(15000)))
	assert.False(t, sc.Notify)
	assert.Contains(t, sc.Reason, "below threshold")
}

func TestDecide_LiquidityBoundary(t *testing.T) {
	g := New(Options{MinScore: 7.0, MinLiquidityUSD: 10000})

	// Exactly at the floor qualifies.
	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 8.0, f64(10000)))
	assert.True(t, sc.Notify)

	sc = g.Decide(scored("0xBBB0000000000000000000000000000000000002", 8.0, f64(9999.99)))
	assert.False(t, sc.Notify)
	assert.Contains(t, sc.Reason, "liquidity")
}

func TestDecide_LiquidityUnavailableFailsClosed(t *testing.T) {
	g := New(Options{MinScore: 7.0, MinLiquidityUSD: 10000})

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 9.5, nil))
	assert.False(t, sc.Notify)
	assert.Equal(t, "liquidity unavailable (fail-closed)", sc.Reason)
}

func TestDecide_CooldownSuppression(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	g := New(Options{
		MinScore:        7.0,
		MinLiquidityUSD: 10000,
		Cooldown:        time.Hour,
		now:             func() time.Time { return current },
	})

	first := g.Decide(scored("0xBBB0000000000000000000000000000000000002", 9.0, f64(20000)))
	require.True(t, first.Notify)

	// Second qualifying score 10 minutes later: suppressed.
	current = current.Add(10 * time.Minute)
	second := g.Decide(scored("0xBBB0000000000000000000000000000000000002", 9.0, f64(20000)))
	assert.False(t, second.Notify)
	assert.Contains(t, second.Reason, "suppressed: cooldown active until")

	// Past the cooldown window: may alert again.
	current = current.Add(51 * time.Minute)
	third := g.Decide(scored("0xBBB0000000000000000000000000000000000002", 9.0, f64(20000)))
	assert.True(t, third.Notify)
}

func TestDecide_ConcurrentQualifyingScoresOneNotify(t *testing.T) {
	g := New(Options{MinScore: 7.0, MinLiquidityUSD: 10000, Cooldown: time.Hour})

	const callers = 32
	var notifies atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 8.2, f64(15000)))
			if sc.Notify {
				notifies.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), notifies.Load(), "exactly one concurrent decision may notify")
}

func TestDecide_CaseInsensitiveCooldownKey(t *testing.T) {
	g := New(Options{MinScore: 7.0, MinLiquidityUSD: 10000, Cooldown: time.Hour})

	first := g.Decide(scored("0xAbCd000000000000000000000000000000000001", 8.0, f64(15000)))
	require.True(t, first.Notify)

	second := g.Decide(scored("0xABCD000000000000000000000000000000000001", 8.0, f64(15000)))
	assert.False(t, second.Notify)
}

func TestDispatch_DeliversOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	g := New(Options{Notifier: notifier, MinScore: 7.0, MinLiquidityUSD: 10000})

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 8.2, f64(15000)))
	require.True(t, sc.Notify)

	g.Dispatch(context.Background(), sc)
	g.Drain()

	delivered, deliveryErrors, _, _ := g.Stats()
	assert.Equal(t, int64(1), delivered)
	assert.Equal(t, int64(0), deliveryErrors)
	assert.Equal(t, int64(1), notifier.calls.Load())
}

func TestDispatch_FailureCountedNotRetried(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram: 502")}
	g := New(Options{Notifier: notifier, MinScore: 7.0, MinLiquidityUSD: 10000})

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 8.2, f64(15000)))
	g.Dispatch(context.Background(), sc)
	g.Drain()

	delivered, deliveryErrors, _, _ := g.Stats()
	assert.Equal(t, int64(0), delivered)
	assert.Equal(t, int64(1), deliveryErrors)
	assert.Equal(t, int64(1), notifier.calls.Load(), "delivery failures are never retried")
}

func TestDispatch_SkipsNonNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	g := New(Options{Notifier: notifier, MinScore: 7.0, MinLiquidityUSD: 10000})

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 3.0, f64(15000)))
	require.False(t, sc.Notify)

	g.Dispatch(context.Background(), sc)
	g.Drain()
	assert.Equal(t, int64(0), notifier.calls.Load())
}

func TestSeed_RehydratedCooldownSuppresses(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	g := New(Options{
		MinScore:        7.0,
		MinLiquidityUSD: 10000,
		Cooldown:        time.Hour,
		now:             func() time.Time { return current },
	})

	// As if the process restarted 20 minutes after notifying.
	g.Seed("0xAAA0000000000000000000000000000000000001", current.Add(-20*time.Minute))

	sc := g.Decide(scored("0xAAA0000000000000000000000000000000000001", 9.0, f64(50000)))
	assert.False(t, sc.Notify)
	assert.Contains(t, sc.Reason, "cooldown")
}
