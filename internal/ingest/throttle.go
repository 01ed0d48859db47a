package ingest

import (
	"log/slog"
	"sync"
	"time"
)

// reportEvery bounds drop-summary logging to one line per window per gate.
const reportEvery = 5 * time.Second

// Throttle is the test-mode admission gate for one event kind. When enabled,
// it admits an event only if at least gap has elapsed since the last
// admission; everything else is counted and summarised in a log line at most
// once per five seconds. Disabled gates admit everything.
//
// Trade and quote gates are separate instances; within one kind the gate is
// serially consistent.
type Throttle struct {
	kind    string
	enabled bool
	gap     time.Duration

	mu         sync.Mutex
	lastAdmit  time.Time
	dropped    int64
	lastReport time.Time

	now func() time.Time // overridable for tests
}

// NewThrottle creates a gate for one event kind.
func NewThrottle(kind string, enabled bool, gap time.Duration) *Throttle {
	return &Throttle{
		kind:    kind,
		enabled: enabled,
		gap:     gap,
		now:     time.Now,
	}
}

// Admit reports whether the event passes the gate.
func (t *Throttle) Admit() bool {
	if !t.enabled {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.lastAdmit.IsZero() || now.Sub(t.lastAdmit) >= t.gap {
		t.lastAdmit = now
		return true
	}

	t.dropped++
	if t.lastReport.IsZero() {
		t.lastReport = now
	} else if now.Sub(t.lastReport) >= reportEvery {
		slog.Info("throttle dropped events", "kind", t.kind, "dropped", t.dropped)
		t.dropped = 0
		t.lastReport = now
	}
	return false
}

// Dropped returns the drop count accumulated since the last summary log.
func (t *Throttle) Dropped() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
