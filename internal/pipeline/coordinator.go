// Package pipeline wires the ingestion sources, normalizer, deduplicator,
// scanner, analysis engine, and notification gate into one supervised flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/analyze"
	"token-sentinel/internal/dedup"
	"token-sentinel/internal/domain"
	"token-sentinel/internal/gate"
	"token-sentinel/internal/normalize"
	"token-sentinel/internal/observability"
	"token-sentinel/internal/scan"
	"token-sentinel/internal/sources"
	"token-sentinel/internal/storage"
)

// State is the coordinator lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	}
	return "unknown"
}

// Options configures a Coordinator.
type Options struct {
	Sources    *sources.Supervisor
	Normalizer *normalize.Normalizer
	Dedup      *dedup.Deduplicator
	Scanner    *scan.Scanner
	Engine     *analyze.Engine
	Gate       *gate.Gate
	Scored     storage.ScoredCandidateStore
	Alerts     storage.AlertStore
	Metrics    *observability.Metrics

	// RehydrateWindow bounds how far back persisted decisions seed the
	// dedup window on start. Default 24h.
	RehydrateWindow time.Duration
	// CooldownWindow bounds how far back delivered alerts seed the
	// cooldown map on start. Default 1h.
	CooldownWindow time.Duration
	// DrainGrace bounds how long Stop waits for in-flight work. Default 10s.
	DrainGrace time.Duration
	// SweepInterval is the eviction cadence for dedup and cooldown state.
	// Default 5m.
	SweepInterval time.Duration

	Logger zerolog.Logger
}

// Health is a point-in-time pipeline snapshot.
type Health struct {
	State            string         `json:"state"`
	StartedAt        time.Time      `json:"started_at,omitempty"`
	ScanQueueDepth   int            `json:"scan_queue_depth"`
	CostUnitsUsed    int64          `json:"cost_units_used"`
	CacheEntries     int            `json:"cache_entries"`
	DedupEntries     int            `json:"dedup_entries"`
	CooldownEntries  int            `json:"cooldown_entries"`
	AlertsDelivered  int64          `json:"alerts_delivered"`
	AlertsSuppressed int64          `json:"alerts_suppressed"`
	DeliveryErrors   int64          `json:"delivery_errors"`
	SourceRestarts   map[string]int `json:"source_restarts,omitempty"`
}

// Coordinator owns the stage lifecycle: Stopped -> Starting -> Running ->
// Draining -> Stopped. Start and Stop are not reentrant.
type Coordinator struct {
	opts Options
	log  zerolog.Logger

	state     atomic.Int32
	startedAt time.Time

	cancelSources context.CancelFunc
	cancelProc    context.CancelFunc
	resultsDone   chan struct{}
	sweepDone     chan struct{}
}

// New creates a Coordinator. All stage dependencies are required except
// Sources and Alerts.
func New(opts Options) (*Coordinator, error) {
	if opts.Normalizer == nil || opts.Dedup == nil || opts.Scanner == nil ||
		opts.Engine == nil || opts.Gate == nil || opts.Scored == nil {
		return nil, errors.New("pipeline: missing stage dependency")
	}
	if opts.Metrics == nil {
		return nil, errors.New("pipeline: metrics required")
	}
	if opts.RehydrateWindow <= 0 {
		opts.RehydrateWindow = 24 * time.Hour
	}
	if opts.CooldownWindow <= 0 {
		opts.CooldownWindow = time.Hour
	}
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = 10 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}

	return &Coordinator{
		opts: opts,
		log:  opts.Logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Start rehydrates suppression state from storage, launches the scanner
// pool and result loop, and begins ingesting from the sources.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("pipeline: cannot start from state %s", c.State())
	}
	c.setStateMetric(StateStarting)
	c.startedAt = time.Now().UTC()

	if err := c.rehydrate(ctx); err != nil {
		c.state.Store(int32(StateStopped))
		c.setStateMetric(StateStopped)
		return fmt.Errorf("rehydrate: %w", err)
	}

	srcCtx, cancelSources := context.WithCancel(ctx)
	procCtx, cancelProc := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelSources = cancelSources
	c.cancelProc = cancelProc
	c.resultsDone = make(chan struct{})
	c.sweepDone = make(chan struct{})

	c.opts.Scanner.Start(procCtx)
	go c.resultsLoop(procCtx)
	go c.sweepLoop(procCtx)

	if c.opts.Sources != nil {
		if err := c.opts.Sources.Start(srcCtx, c.ingest); err != nil {
			cancelSources()
			cancelProc()
			c.state.Store(int32(StateStopped))
			c.setStateMetric(StateStopped)
			return err
		}
	}

	c.state.Store(int32(StateRunning))
	c.setStateMetric(StateRunning)
	c.log.Info().
		Dur("rehydrate_window", c.opts.RehydrateWindow).
		Msg("pipeline running")
	return nil
}

// Stop drains the pipeline: sources stop first, queued scans and in-flight
// analyses finish, pending dispatches flush, all within the drain grace.
func (c *Coordinator) Stop(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return fmt.Errorf("pipeline: cannot stop from state %s", c.State())
	}
	c.setStateMetric(StateDraining)
	c.log.Info().Msg("pipeline draining")

	deadline := time.NewTimer(c.opts.DrainGrace)
	defer deadline.Stop()

	c.cancelSources()
	if c.opts.Sources != nil {
		c.opts.Sources.Wait()
	}

	// No more submissions; queued scans flow through to the results loop.
	c.opts.Scanner.Close()

	drained := make(chan struct{})
	go func() {
		<-c.resultsDone
		c.opts.Gate.Drain()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-deadline.C:
		err = errors.New("pipeline: drain grace exceeded, abandoning in-flight work")
		c.log.Warn().Dur("grace", c.opts.DrainGrace).Msg("drain grace exceeded")
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.cancelProc()
	<-c.sweepDone

	c.state.Store(int32(StateStopped))
	c.setStateMetric(StateStopped)
	c.log.Info().Msg("pipeline stopped")
	return err
}

// Health reports a snapshot of every stage.
func (c *Coordinator) Health() Health {
	delivered, deliveryErrors, suppressed, cooldownLen := c.opts.Gate.Stats()

	h := Health{
		State:            c.State().String(),
		ScanQueueDepth:   c.opts.Scanner.QueueDepth(),
		CostUnitsUsed:    c.opts.Engine.CostUsed(),
		CacheEntries:     c.opts.Engine.CacheLen(),
		DedupEntries:     c.opts.Dedup.Len(),
		CooldownEntries:  cooldownLen,
		AlertsDelivered:  delivered,
		AlertsSuppressed: suppressed,
		DeliveryErrors:   deliveryErrors,
	}
	if !c.startedAt.IsZero() {
		h.StartedAt = c.startedAt
	}
	if c.opts.Sources != nil {
		h.SourceRestarts = c.opts.Sources.Restarts()
	}
	return h
}

// ingest is the EmitFunc handed to every source adapter.
func (c *Coordinator) ingest(ctx context.Context, raw domain.RawCandidate) error {
	m := c.opts.Metrics
	m.CandidatesIngested.WithLabelValues(string(raw.Source)).Inc()

	candidate, err := c.opts.Normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, normalize.ErrValidation) {
			m.NormalizeErrors.WithLabelValues(string(raw.Source)).Inc()
			c.log.Debug().
				Str("source", string(raw.Source)).
				Err(err).
				Msg("payload rejected")
			return nil
		}
		return err
	}

	decision := c.opts.Dedup.Accept(candidate.Address)
	m.DedupDecisions.WithLabelValues(decision.String()).Inc()
	if decision == dedup.Duplicate {
		return nil
	}

	if err := c.opts.Scanner.Submit(candidate); err != nil {
		switch {
		case errors.Is(err, scan.ErrBackpressure):
			m.ScanBackpressed.Inc()
			c.log.Warn().
				Str("address", candidate.Address).
				Msg("scan queue full, candidate dropped")
			return nil
		case errors.Is(err, scan.ErrClosed):
			return nil
		default:
			return err
		}
	}

	m.ScanQueueDepth.Set(float64(c.opts.Scanner.QueueDepth()))
	return nil
}

// resultsLoop consumes scan results, runs analysis, applies the gate, and
// persists every decision.
func (c *Coordinator) resultsLoop(ctx context.Context) {
	defer close(c.resultsDone)

	m := c.opts.Metrics
	for res := range c.opts.Scanner.Results() {
		m.ScanQueueDepth.Set(float64(c.opts.Scanner.QueueDepth()))

		if res.Err != nil {
			c.log.Warn().
				Str("address", res.Candidate.Address).
				Err(res.Err).
				Msg("scan failed, candidate dropped")
			continue
		}

		c.process(ctx, res.Enriched)
	}
}

func (c *Coordinator) process(ctx context.Context, enriched *domain.EnrichedCandidate) {
	m := c.opts.Metrics
	started := time.Now()

	result, err := c.opts.Engine.Analyze(ctx, enriched)
	m.AnalysisDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		if errors.Is(err, analyze.ErrCostCeilingExceeded) {
			m.CostDeferrals.Inc()
			// The candidate was deferred, not decided: release its dedup
			// slot so the next sighting after the cost window rolls is
			// analyzed instead of dropped as a duplicate.
			c.opts.Dedup.Forget(enriched.Address)
			c.persist(ctx, &domain.ScoredCandidate{
				Candidate: *enriched,
				Result:    domain.ScoreResult{Recommendation: domain.RecommendationResearch},
				Reason:    "deferred: cost ceiling reached",
				DecidedAt: time.Now().UTC(),
			})
			return
		}
		m.BackendErrors.Inc()
		c.log.Error().
			Str("address", enriched.Address).
			Err(err).
			Msg("analysis failed, candidate dropped")
		return
	}

	if result.Cached {
		m.CacheHits.Inc()
	} else {
		m.BackendCalls.Inc()
		m.CostUnitsSpent.Add(float64(result.CostUnits))
	}

	sc := c.opts.Gate.Decide(enriched, result)
	c.persist(ctx, sc)

	if sc.Notify {
		c.opts.Gate.Dispatch(ctx, sc)
	} else {
		m.AlertsSuppressed.WithLabelValues(reasonClass(sc.Reason)).Inc()
	}
}

func (c *Coordinator) persist(ctx context.Context, sc *domain.ScoredCandidate) {
	if _, err := c.opts.Scored.Save(ctx, sc); err != nil {
		c.log.Error().
			Str("address", sc.Candidate.Address).
			Err(err).
			Msg("failed to persist decision")
	}
}

// rehydrate seeds the dedup window from persisted decisions and the
// cooldown map from recently delivered alerts, so a restart does not
// re-alert on candidates already handled.
func (c *Coordinator) rehydrate(ctx context.Context) error {
	now := time.Now()

	decided, err := c.opts.Scored.GetByTimeRange(ctx, now.Add(-c.opts.RehydrateWindow), now)
	if err != nil {
		return fmt.Errorf("load recent decisions: %w", err)
	}
	for _, sc := range decided {
		c.opts.Dedup.Seed(sc.Candidate.Address, sc.DecidedAt)
	}

	var seededCooldowns int
	if c.opts.Alerts != nil {
		alerts, err := c.opts.Alerts.RecentAlerts(ctx, c.opts.CooldownWindow)
		if err != nil {
			return fmt.Errorf("load recent alerts: %w", err)
		}
		for _, a := range alerts {
			c.opts.Gate.Seed(a.Address, a.SentAt)
		}
		seededCooldowns = len(alerts)
	}

	c.log.Info().
		Int("dedup_seeded", len(decided)).
		Int("cooldowns_seeded", seededCooldowns).
		Msg("suppression state rehydrated")
	return nil
}

func (c *Coordinator) sweepLoop(ctx context.Context) {
	defer close(c.sweepDone)

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evictedDedup := c.opts.Dedup.Sweep()
			evictedCooldown := c.opts.Gate.Sweep()

			m := c.opts.Metrics
			m.UptimeSeconds.Add(c.opts.SweepInterval.Seconds())
			m.DedupEntries.Set(float64(c.opts.Dedup.Len()))
			_, _, _, cooldownLen := c.opts.Gate.Stats()
			m.CooldownEntries.Set(float64(cooldownLen))

			if evictedDedup > 0 || evictedCooldown > 0 {
				c.log.Debug().
					Int("dedup_evicted", evictedDedup).
					Int("cooldown_evicted", evictedCooldown).
					Msg("suppression state swept")
			}
		}
	}
}

func (c *Coordinator) setStateMetric(s State) {
	c.opts.Metrics.PipelineState.Set(float64(s))
}

// InstrumentNotifier wraps a notifier so deliveries and delivery failures
// feed the alert counters.
func InstrumentNotifier(inner gate.Notifier, m *observability.Metrics) gate.Notifier {
	return &instrumentedNotifier{inner: inner, metrics: m}
}

type instrumentedNotifier struct {
	inner   gate.Notifier
	metrics *observability.Metrics
}

func (n *instrumentedNotifier) Dispatch(ctx context.Context, sc *domain.ScoredCandidate) error {
	if err := n.inner.Dispatch(ctx, sc); err != nil {
		n.metrics.DeliveryErrors.Inc()
		return err
	}
	n.metrics.AlertsDelivered.Inc()
	return nil
}

// reasonClass folds decision reasons into a small label set.
func reasonClass(reason string) string {
	switch {
	case strings.HasPrefix(reason, "score"):
		return "score"
	case strings.HasPrefix(reason, "liquidity"):
		return "liquidity"
	case strings.HasPrefix(reason, "suppressed"):
		return "cooldown"
	default:
		return "other"
	}
}
