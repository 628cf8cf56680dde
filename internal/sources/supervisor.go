package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SupervisorOptions configures adapter restart behavior.
type SupervisorOptions struct {
	// RestartDelay is the initial delay before restarting a failed adapter.
	RestartDelay time.Duration // default 1s
	// MaxRestartDelay caps the exponential backoff.
	MaxRestartDelay time.Duration // default 1m
	// ResetAfter resets the backoff when an adapter has run at least
	// this long before failing.
	ResetAfter time.Duration // default 5m
	// OnRestart is invoked with the adapter name on every restart.
	OnRestart func(adapter string)
	Logger    zerolog.Logger
}

// Supervisor runs a set of adapters, isolating failures: an adapter that
// returns an error or panics is restarted with exponential backoff without
// affecting its siblings.
type Supervisor struct {
	opts     SupervisorOptions
	adapters []Adapter
	log      zerolog.Logger

	mu       sync.Mutex
	restarts map[string]int
	wg       sync.WaitGroup
	started  bool
}

// NewSupervisor creates a supervisor over the given adapters.
func NewSupervisor(opts SupervisorOptions, adapters ...Adapter) *Supervisor {
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = time.Second
	}
	if opts.MaxRestartDelay <= 0 {
		opts.MaxRestartDelay = time.Minute
	}
	if opts.ResetAfter <= 0 {
		opts.ResetAfter = 5 * time.Minute
	}

	return &Supervisor{
		opts:     opts,
		adapters: adapters,
		log:      opts.Logger.With().Str("component", "sources").Logger(),
		restarts: make(map[string]int),
	}
}

// Start launches every adapter. It returns immediately; adapters run until
// the context is cancelled.
func (s *Supervisor) Start(ctx context.Context, emit EmitFunc) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.started = true
	s.mu.Unlock()

	for _, a := range s.adapters {
		s.wg.Add(1)
		go s.supervise(ctx, a, emit)
	}
	return nil
}

// Wait blocks until all adapter goroutines have exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Restarts returns the restart count per adapter.
func (s *Supervisor) Restarts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.restarts))
	for k, v := range s.restarts {
		out[k] = v
	}
	return out
}

func (s *Supervisor) supervise(ctx context.Context, a Adapter, emit EmitFunc) {
	defer s.wg.Done()

	delay := s.opts.RestartDelay
	for {
		started := time.Now()
		err := s.runOnce(ctx, a, emit)

		if ctx.Err() != nil {
			s.log.Info().Str("adapter", a.Name()).Msg("adapter stopped")
			return
		}

		if time.Since(started) >= s.opts.ResetAfter {
			delay = s.opts.RestartDelay
		}

		s.mu.Lock()
		s.restarts[a.Name()]++
		s.mu.Unlock()

		if s.opts.OnRestart != nil {
			s.opts.OnRestart(a.Name())
		}

		s.log.Warn().
			Str("adapter", a.Name()).
			Err(err).
			Dur("restart_in", delay).
			Msg("adapter failed, restarting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.opts.MaxRestartDelay {
			delay = s.opts.MaxRestartDelay
		}
	}
}

// runOnce executes a single adapter run, converting panics into errors so a
// crashing adapter cannot take down the process.
func (s *Supervisor) runOnce(ctx context.Context, a Adapter, emit EmitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter %s panicked: %v", a.Name(), r)
		}
	}()
	return a.Run(ctx, emit)
}
