// Package analyze scores enriched candidates through a cost-bounded
// backend, with a fingerprint-keyed result cache and bounded concurrency.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/idhash"
)

var (
	// ErrCostCeilingExceeded means the rolling cost window is exhausted.
	// The backend is never invoked in this state; the candidate is
	// deferred, not discarded.
	ErrCostCeilingExceeded = errors.New("analysis cost ceiling exceeded")

	// ErrPermitTimeout means no concurrency permit became available
	// within the configured wait. The caller should treat it as
	// backpressure and retry later.
	ErrPermitTimeout = errors.New("timed out waiting for analysis permit")
)

// Scorer is the black-box scoring backend contract.
type Scorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (*domain.ScoreResult, error)
}

// Options configures an Engine.
type Options struct {
	Scorer Scorer

	// CacheCapacity bounds the result cache. Default 1000.
	CacheCapacity int
	// CacheTTL is the result cache entry lifetime. Default 1h.
	CacheTTL time.Duration
	// MaxConcurrent bounds in-flight backend requests. Default 5.
	MaxConcurrent int
	// PermitWait bounds how long Analyze blocks for a permit. Default 30s.
	PermitWait time.Duration
	// CallTimeout bounds a single backend call. Default 30s.
	CallTimeout time.Duration
	// CostCeiling is the maximum cost units per rolling hour. Zero
	// disables the ceiling.
	CostCeiling int64
	// CostWindow is the rolling window for the ceiling. Default 1h.
	CostWindow time.Duration

	Logger zerolog.Logger

	// now overrides the clock in tests.
	now func() time.Time
}

// Engine runs cost-bounded scoring analysis. Identical fingerprints within
// the cache TTL hit the backend at most once: concurrent duplicates
// coalesce onto a single in-flight call.
type Engine struct {
	opts    Options
	cache   *resultCache
	cost    *costWindow
	permits chan struct{}
	logger  zerolog.Logger

	flightMu sync.Mutex
	inFlight map[string]*flightCall
}

type flightCall struct {
	done   chan struct{}
	result *domain.ScoreResult
	err    error
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 1000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.PermitWait <= 0 {
		opts.PermitWait = 30 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.CostWindow <= 0 {
		opts.CostWindow = time.Hour
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	return &Engine{
		opts:     opts,
		cache:    newResultCache(opts.CacheCapacity, opts.CacheTTL, opts.now),
		cost:     newCostWindow(opts.CostWindow, opts.now),
		permits:  make(chan struct{}, opts.MaxConcurrent),
		inFlight: make(map[string]*flightCall),
		logger:   opts.Logger.With().Str("component", "analysis_engine").Logger(),
	}
}

// Analyze scores an enriched candidate. Cache hits return immediately with
// no cost consumed. On a miss the engine acquires a concurrency permit,
// checks the cost ceiling, and invokes the backend with one retry.
func (e *Engine) Analyze(ctx context.Context, enriched *domain.EnrichedCandidate) (*domain.ScoreResult, error) {
	fingerprint := idhash.ComputeFingerprint(enriched)

	if cached, ok := e.cache.get(fingerprint); ok {
		cached.Cached = true
		cached.CostUnits = 0
		return &cached, nil
	}

	// Coalesce concurrent duplicates onto one backend call.
	call, leader := e.joinFlight(fingerprint)
	if !leader {
		select {
		case <-call.done:
			if call.err != nil {
				return nil, call.err
			}
			shared := *call.result
			shared.Cached = true
			shared.CostUnits = 0
			return &shared, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	result, err := e.analyzeMiss(ctx, fingerprint, enriched)
	call.result, call.err = result, err
	e.leaveFlight(fingerprint, call)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CostUsed returns the cost units consumed in the current rolling window.
func (e *Engine) CostUsed() int64 {
	return e.cost.total()
}

// CacheLen returns the number of cached results.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

// InFlight returns the number of permits currently held.
func (e *Engine) InFlight() int {
	return len(e.permits)
}

func (e *Engine) analyzeMiss(ctx context.Context, fingerprint string, enriched *domain.EnrichedCandidate) (*domain.ScoreResult, error) {
	if err := e.acquirePermit(ctx); err != nil {
		return nil, err
	}
	defer e.releasePermit()

	// Consult the ceiling only after holding a permit, so a burst of
	// blocked callers cannot all pass the check at once.
	if e.opts.CostCeiling > 0 && e.cost.total() >= e.opts.CostCeiling {
		e.logger.Warn().Str("fingerprint", fingerprint).Int64("used", e.cost.total()).Msg("cost ceiling reached")
		return nil, ErrCostCeilingExceeded
	}

	req := domain.ScoreRequest{
		Fingerprint: fingerprint,
		Candidate:   *enriched,
		Indicators:  enriched.Metadata.SuspiciousIndicators(),
	}

	result, err := e.callBackend(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", enriched.Address, err)
	}

	result.Fingerprint = fingerprint
	result.ScoredAt = e.opts.now()
	result.Cached = false

	e.cost.add(result.CostUnits)
	e.cache.put(fingerprint, *result)
	return result, nil
}

// callBackend invokes the scorer with a timeout, retrying once on failure.
func (e *Engine) callBackend(ctx context.Context, req domain.ScoreRequest) (*domain.ScoreResult, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		result, err := e.opts.Scorer.Score(callCtx, req)
		cancel()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		e.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("scoring backend call failed")
	}
	return nil, lastErr
}

func (e *Engine) acquirePermit(ctx context.Context) error {
	select {
	case e.permits <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(e.opts.PermitWait)
	defer timer.Stop()
	select {
	case e.permits <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrPermitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) releasePermit() {
	<-e.permits
}

func (e *Engine) joinFlight(fingerprint string) (*flightCall, bool) {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	if call, ok := e.inFlight[fingerprint]; ok {
		return call, false
	}
	call := &flightCall{done: make(chan struct{})}
	e.inFlight[fingerprint] = call
	return call, true
}

func (e *Engine) leaveFlight(fingerprint string, call *flightCall) {
	e.flightMu.Lock()
	delete(e.inFlight, fingerprint)
	e.flightMu.Unlock()
	close(call.done)
}
