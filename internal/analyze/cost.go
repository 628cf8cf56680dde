package analyze

import (
	"sync"
	"time"
)

// costWindow tracks backend cost units consumed within a rolling window.
// Used to enforce the per-period cost ceiling before invoking the backend.
type costWindow struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	samples []costSample
}

type costSample struct {
	at    time.Time
	units int64
}

func newCostWindow(window time.Duration, now func() time.Time) *costWindow {
	if window <= 0 {
		window = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &costWindow{window: window, now: now}
}

// add records consumed cost units.
func (w *costWindow) add(units int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	w.samples = append(w.samples, costSample{at: w.now(), units: units})
}

// total returns the units consumed within the current window.
func (w *costWindow) total() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	var sum int64
	for _, s := range w.samples {
		sum += s.units
	}
	return sum
}

func (w *costWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.samples[:0]
	for _, s := range w.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	w.samples = kept
}
