// Package dedup decides which candidates are first-seen within a rolling
// window. The seen-set is owned exclusively by the Deduplicator; all access
// goes through Accept.
package dedup

import (
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of an Accept call.
type Decision int

const (
	// First marks the candidate as first-seen within the window.
	First Decision = iota
	// Duplicate marks the candidate as already seen within the window.
	Duplicate
)

// String returns the string representation of Decision.
func (d Decision) String() string {
	if d == First {
		return "first"
	}
	return "duplicate"
}

// Deduplicator tracks candidate identifiers seen within a rolling window.
// Accept is safe under concurrent calls from multiple source adapters;
// the check-and-insert is atomic, so of N concurrent submissions of the
// same identifier exactly one is marked First.
type Deduplicator struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time // identifier -> last-seen timestamp
	lastSweep time.Time
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

// New creates a Deduplicator with the given rolling window.
func New(window time.Duration, opts ...Option) *Deduplicator {
	d := &Deduplicator{
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lastSweep = d.now()
	return d
}

// Accept records the identifier and reports whether it is first-seen within
// the window. An identifier whose previous sighting fell out of the window
// is treated as new again. Identifiers are compared case-insensitively.
func (d *Deduplicator) Accept(identifier string) Decision {
	key := strings.ToLower(identifier)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeSweepLocked(now)

	last, exists := d.seen[key]
	d.seen[key] = now

	if exists && now.Sub(last) < d.window {
		return Duplicate
	}
	return First
}

// Seed marks an identifier as already seen at the given time without
// producing a decision. Used to rehydrate state after a restart.
func (d *Deduplicator) Seed(identifier string, seenAt time.Time) {
	key := strings.ToLower(identifier)

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.seen[key]; ok && existing.After(seenAt) {
		return
	}
	d.seen[key] = seenAt
}

// Forget drops an identifier from the seen-set so its next sighting is
// treated as first-seen again. Used when a candidate's analysis was
// deferred rather than completed.
func (d *Deduplicator) Forget(identifier string) {
	key := strings.ToLower(identifier)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Sweep removes entries older than the window and returns the number evicted.
// The coordinator calls this on a periodic tick; Accept also sweeps lazily.
func (d *Deduplicator) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(d.now())
}

// Len returns the current number of tracked identifiers.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// maybeSweepLocked amortizes eviction onto inserts: a full sweep runs at
// most once per 1/16th of the window.
func (d *Deduplicator) maybeSweepLocked(now time.Time) {
	if now.Sub(d.lastSweep) < d.window/16 {
		return
	}
	d.sweepLocked(now)
}

func (d *Deduplicator) sweepLocked(now time.Time) int {
	evicted := 0
	for key, last := range d.seen {
		if now.Sub(last) >= d.window {
			delete(d.seen, key)
			evicted++
		}
	}
	d.lastSweep = now
	return evicted
}
