// Package gate decides whether scored candidates alert, applying score and
// liquidity thresholds plus per-candidate cooldown suppression.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
)

// Notifier delivers qualifying alerts. Delivery failures are logged and
// counted but never re-enqueue the candidate.
type Notifier interface {
	Dispatch(ctx context.Context, sc *domain.ScoredCandidate) error
}

// Options configures a Gate.
type Options struct {
	Notifier Notifier

	// MinScore is the notification score threshold. Default 7.0.
	MinScore float64
	// MinLiquidityUSD is the liquidity floor. Liquidity exactly at the
	// floor qualifies; unavailable liquidity never does (fail-closed).
	MinLiquidityUSD float64
	// Cooldown is the per-candidate suppression window. Default 60m.
	Cooldown time.Duration
	// CooldownRetention is how long cooldown entries are kept. Raised to
	// Cooldown when smaller.
	CooldownRetention time.Duration
	// MaxConcurrentDispatch bounds in-flight notifier calls. Default 4.
	MaxConcurrentDispatch int
	// DispatchTimeout bounds a single notifier call. Default 15s.
	DispatchTimeout time.Duration

	Logger zerolog.Logger

	// now overrides the clock in tests.
	now func() time.Time
}

// Gate applies the notification rule and owns the cooldown map. Decide is
// atomic: the cooldown check and the mark happen under one lock, so two
// concurrent qualifying scores for the same identifier produce exactly one
// notify decision.
type Gate struct {
	opts     Options
	cooldown *cooldownMap
	logger   zerolog.Logger

	dispatchSem chan struct{}
	dispatchWG  sync.WaitGroup

	delivered      atomic.Int64
	deliveryErrors atomic.Int64
	suppressed     atomic.Int64
}

// New creates a Gate.
func New(opts Options) *Gate {
	if opts.MinScore <= 0 {
		opts.MinScore = 7.0
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Hour
	}
	if opts.MaxConcurrentDispatch <= 0 {
		opts.MaxConcurrentDispatch = 4
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 15 * time.Second
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	return &Gate{
		opts:        opts,
		cooldown:    newCooldownMap(opts.Cooldown, opts.CooldownRetention, opts.now),
		dispatchSem: make(chan struct{}, opts.MaxConcurrentDispatch),
		logger:      opts.Logger.With().Str("component", "notification_gate").Logger(),
	}
}

// Decide evaluates the notification rule for a scored candidate and, when
// it qualifies, marks the cooldown in the same critical section.
func (g *Gate) Decide(enriched *domain.EnrichedCandidate, result *domain.ScoreResult) *domain.ScoredCandidate {
	now := g.opts.now()
	sc := &domain.ScoredCandidate{
		Candidate: *enriched,
		Result:    *result,
		DecidedAt: now,
	}

	if result.Score < g.opts.MinScore {
		sc.Reason = fmt.Sprintf("score %.2f below threshold %.2f", result.Score, g.opts.MinScore)
		return sc
	}

	// Liquidity gate is fail-closed: unavailable liquidity never alerts.
	liquidity := enriched.Metadata.LiquidityUSD
	if liquidity == nil {
		sc.Reason = "liquidity unavailable (fail-closed)"
		return sc
	}
	if *liquidity < g.opts.MinLiquidityUSD {
		sc.Reason = fmt.Sprintf("liquidity %.0f below threshold %.0f", *liquidity, g.opts.MinLiquidityUSD)
		return sc
	}

	// Check-and-mark under one lock: a concurrent qualifying decision
	// for the same identifier cannot race past the check.
	key := strings.ToLower(enriched.Address)
	g.cooldown.mu.Lock()
	until, active := g.cooldown.activeUntilLocked(key, now)
	if active {
		g.cooldown.mu.Unlock()
		g.suppressed.Add(1)
		sc.Reason = fmt.Sprintf("suppressed: cooldown active until %s", until.UTC().Format(time.RFC3339))
		return sc
	}
	g.cooldown.markLocked(key, now)
	g.cooldown.mu.Unlock()

	sc.Notify = true
	sc.Reason = fmt.Sprintf("score %.2f at or above threshold %.2f", result.Score, g.opts.MinScore)
	return sc
}

// Dispatch hands a notify-decision to the external notifier asynchronously
// with bounded concurrency. Blocks only while all dispatch slots are busy.
func (g *Gate) Dispatch(ctx context.Context, sc *domain.ScoredCandidate) {
	if !sc.Notify || g.opts.Notifier == nil {
		return
	}

	select {
	case g.dispatchSem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	g.dispatchWG.Add(1)
	go func() {
		defer func() {
			<-g.dispatchSem
			g.dispatchWG.Done()
		}()

		dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.DispatchTimeout)
		defer cancel()

		if err := g.opts.Notifier.Dispatch(dispatchCtx, sc); err != nil {
			// A stale alert is worse than a missing one: log, count,
			// never retry.
			g.deliveryErrors.Add(1)
			g.logger.Error().Err(err).Str("address", sc.Candidate.Address).Msg("alert delivery failed")
			return
		}
		g.delivered.Add(1)
	}()
}

// Drain waits for in-flight dispatches to finish.
func (g *Gate) Drain() {
	g.dispatchWG.Wait()
}

// Seed marks an identifier as notified at the given time. Used to
// rehydrate the cooldown map after a restart.
func (g *Gate) Seed(identifier string, notifiedAt time.Time) {
	g.cooldown.seed(identifier, notifiedAt)
}

// Sweep evicts expired cooldown entries and returns the number removed.
func (g *Gate) Sweep() int {
	return g.cooldown.sweep()
}

// Stats reports dispatch counters and cooldown map size.
func (g *Gate) Stats() (delivered, deliveryErrors, suppressed int64, cooldownLen int) {
	return g.delivered.Load(), g.deliveryErrors.Load(), g.suppressed.Load(), g.cooldown.len()
}
