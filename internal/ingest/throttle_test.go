package ingest

import (
	"testing"
	"time"
)

func TestThrottle_DisabledAdmitsEverything(t *testing.T) {
	g := NewThrottle("trade", false, 200*time.Millisecond)
	for i := 0; i < 100; i++ {
		if !g.Admit() {
			t.Fatal("disabled gate must admit all")
		}
	}
}

func TestThrottle_EnforcesMinimumGap(t *testing.T) {
	g := NewThrottle("trade", true, 200*time.Millisecond)

	now := time.UnixMilli(1_000_000)
	g.now = func() time.Time { return now }

	if !g.Admit() {
		t.Fatal("first event must be admitted")
	}

	now = now.Add(100 * time.Millisecond)
	if g.Admit() {
		t.Fatal("event inside the gap must be dropped")
	}

	now = now.Add(100 * time.Millisecond) // exactly gap since last admit
	if !g.Admit() {
		t.Fatal("event at the gap boundary must be admitted")
	}

	if got := g.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestThrottle_SeparateGatesPerKind(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	trade := NewThrottle("trade", true, 200*time.Millisecond)
	quote := NewThrottle("quote", true, 200*time.Millisecond)
	trade.now = func() time.Time { return now }
	quote.now = func() time.Time { return now }

	if !trade.Admit() {
		t.Fatal("first trade must be admitted")
	}
	// A trade admission must not consume the quote gate.
	if !quote.Admit() {
		t.Fatal("first quote must be admitted")
	}
}
