// Package scan enriches first-seen candidates with on-chain and market
// metadata through a bounded worker pool.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
)

// ErrBackpressure is returned by Submit when the scan queue is full.
// Callers must shed or delay; the scanner never queues unbounded.
var ErrBackpressure = errors.New("scan queue full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("scanner closed")

// Result pairs a candidate with its enrichment outcome.
type Result struct {
	Candidate domain.Candidate
	Enriched  *domain.EnrichedCandidate // nil when Err is a hard failure
	Err       error
}

// Options configures a Scanner.
type Options struct {
	Chain  ChainCollaborator
	Market MarketCollaborator

	// Workers is the pool width. Default 4.
	Workers int
	// QueueDepth bounds pending scans. Default 64.
	QueueDepth int
	// CallTimeout bounds each collaborator call. Default 10s.
	CallTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Default 2.
	MaxRetries int
	// RetryBaseDelay is the initial backoff delay. Default 200ms.
	RetryBaseDelay time.Duration

	// OnDegraded is invoked with the field group name ("chain" or
	// "market") whenever a collaborator fails and the scan degrades.
	OnDegraded func(fieldGroup string)

	Logger zerolog.Logger
}

// Scanner fans out scan requests to collaborators with per-call timeouts
// and capped retries. A failed field group degrades to unavailable; only
// an unresolvable target fails the whole scan.
type Scanner struct {
	opts    Options
	queue   chan domain.Candidate
	results chan Result
	logger  zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Scanner. Start must be called before Submit.
func New(opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 200 * time.Millisecond
	}

	return &Scanner{
		opts:    opts,
		queue:   make(chan domain.Candidate, opts.QueueDepth),
		results: make(chan Result, opts.Workers),
		closed:  make(chan struct{}),
		logger:  opts.Logger.With().Str("component", "scanner").Logger(),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Close is called and the queue drains.
func (s *Scanner) Start(ctx context.Context) {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	go func() {
		s.wg.Wait()
		close(s.results)
	}()
}

// Submit enqueues a candidate for scanning. Returns ErrBackpressure when
// the queue is at capacity and ErrClosed after Close. Safe to call
// concurrently with Close.
func (s *Scanner) Submit(c domain.Candidate) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	select {
	case s.queue <- c:
		return nil
	case <-s.closed:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

// Results returns the stream of scan outcomes. Closed after Close once
// in-flight work drains.
func (s *Scanner) Results() <-chan Result {
	return s.results
}

// QueueDepth returns the number of queued, unstarted scans.
func (s *Scanner) QueueDepth() int {
	return len(s.queue)
}

// Close stops accepting new work. In-flight and queued scans complete.
// The queue channel itself is never closed, so a Submit racing Close can
// never panic on a send.
func (s *Scanner) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *Scanner) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.queue:
			s.handle(ctx, c)
		case <-s.closed:
			// Drain what was queued before Close, then exit.
			for {
				select {
				case c := <-s.queue:
					s.handle(ctx, c)
				case <-ctx.Done():
					return
				default:
					return
				}
			}
		}
	}
}

func (s *Scanner) handle(ctx context.Context, c domain.Candidate) {
	enriched, err := s.Scan(ctx, c)
	res := Result{Candidate: c, Err: err}
	if err == nil {
		res.Enriched = enriched
	}
	select {
	case s.results <- res:
	case <-ctx.Done():
	}
}

func (s *Scanner) degraded(fieldGroup string) {
	if s.opts.OnDegraded != nil {
		s.opts.OnDegraded(fieldGroup)
	}
}

// Scan fetches both metadata field groups for a candidate. Safe to call
// directly, bypassing the pool.
func (s *Scanner) Scan(ctx context.Context, c domain.Candidate) (*domain.EnrichedCandidate, error) {
	enriched := &domain.EnrichedCandidate{Candidate: c}

	facts, chainErr := fetchWithRetry(ctx, s.opts, func(callCtx context.Context) (*TokenFacts, error) {
		return s.opts.Chain.FetchTokenFacts(callCtx, c.Address)
	})
	if errors.Is(chainErr, ErrInvalidTarget) {
		return nil, fmt.Errorf("scan %s: %w", c.Address, chainErr)
	}
	if chainErr != nil {
		s.degraded("chain")
		s.logger.Warn().Err(chainErr).Str("address", c.Address).Msg("on-chain facts unavailable")
	} else {
		applyTokenFacts(enriched, facts, time.Now())
	}

	stats, marketErr := fetchWithRetry(ctx, s.opts, func(callCtx context.Context) (*MarketStats, error) {
		return s.opts.Market.FetchMarketStats(callCtx, c.Address)
	})
	if marketErr != nil {
		s.degraded("market")
		s.logger.Warn().Err(marketErr).Str("address", c.Address).Msg("market stats unavailable")
	} else {
		applyMarketStats(enriched, stats)
	}

	if err := enriched.Metadata.Validate(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.Address, err)
	}
	return enriched, nil
}

// fetchWithRetry runs fn with a per-call timeout, retrying transient
// failures with exponential backoff plus jitter. ErrInvalidTarget and
// context cancellation are not retried.
func fetchWithRetry[T any](ctx context.Context, opts Options, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := opts.RetryBaseDelay
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(jittered):
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		v, err := fn(callCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrInvalidTarget) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("collaborator failed after %d attempts: %w", opts.MaxRetries+1, lastErr)
}

func applyTokenFacts(e *domain.EnrichedCandidate, facts *TokenFacts, now time.Time) {
	e.Metadata.Name = &facts.Name
	e.Metadata.Symbol = &facts.Symbol
	decimals := facts.Decimals
	e.Metadata.Decimals = &decimals
	supply := facts.TotalSupply
	e.Metadata.TotalSupply = &supply
	if facts.HolderCount != nil {
		holders := *facts.HolderCount
		e.Metadata.HolderCount = &holders
	}
	if !facts.DeployedAt.IsZero() {
		age := now.Sub(facts.DeployedAt).Hours()
		if age < 0 {
			age = 0
		}
		e.Metadata.AgeHours = &age
	}
}

func applyMarketStats(e *domain.EnrichedCandidate, stats *MarketStats) {
	price := stats.PriceUSD
	e.Metadata.PriceUSD = &price
	liquidity := stats.LiquidityUSD
	e.Metadata.LiquidityUSD = &liquidity
	volume := stats.Volume24hUSD
	e.Metadata.Volume24hUSD = &volume
	change := stats.PriceChange24h
	e.Metadata.PriceChange24h = &change
	if stats.PairAddress != "" {
		pair := stats.PairAddress
		e.Metadata.PairAddress = &pair
	}
}
