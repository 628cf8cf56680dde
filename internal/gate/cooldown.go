package gate

import (
	"strings"
	"sync"
	"time"
)

// cooldownMap tracks last-notified timestamps per candidate identifier.
// Same bounded, window-evicted design as the dedup seen-set, but keyed and
// owned independently by the gate.
type cooldownMap struct {
	cooldown  time.Duration
	retention time.Duration
	now       func() time.Time

	mu        sync.Mutex
	notified  map[string]time.Time
	lastSweep time.Time
}

func newCooldownMap(cooldown, retention time.Duration, now func() time.Time) *cooldownMap {
	if retention < cooldown {
		retention = cooldown
	}
	if now == nil {
		now = time.Now
	}
	return &cooldownMap{
		cooldown:  cooldown,
		retention: retention,
		now:       now,
		notified:  make(map[string]time.Time),
		lastSweep: now(),
	}
}

// activeUntil reports whether the identifier is in an active cooldown and
// when it ends. Caller must hold mu.
func (m *cooldownMap) activeUntilLocked(key string, now time.Time) (time.Time, bool) {
	last, ok := m.notified[key]
	if !ok {
		return time.Time{}, false
	}
	until := last.Add(m.cooldown)
	if now.Before(until) {
		return until, true
	}
	return time.Time{}, false
}

// markLocked records a notification timestamp. Caller must hold mu.
func (m *cooldownMap) markLocked(key string, now time.Time) {
	m.notified[key] = now
	if now.Sub(m.lastSweep) >= m.retention/4 {
		m.sweepLocked(now)
	}
}

func (m *cooldownMap) seed(identifier string, notifiedAt time.Time) {
	key := strings.ToLower(identifier)
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.notified[key]; ok && existing.After(notifiedAt) {
		return
	}
	m.notified[key] = notifiedAt
}

func (m *cooldownMap) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

func (m *cooldownMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notified)
}

func (m *cooldownMap) sweepLocked(now time.Time) int {
	evicted := 0
	for key, last := range m.notified {
		if now.Sub(last) >= m.retention {
			delete(m.notified, key)
			evicted++
		}
	}
	m.lastSweep = now
	return evicted
}
