package ingest

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"equity-pipeline/internal/model"
)

// SyntheticConfig configures the synthetic adapter.
type SyntheticConfig struct {
	Symbols      []string
	EmitInterval time.Duration
	StartPrice   float64 // defaults to 100
}

// Synthetic is a timer-driven adapter that emits random-walk prints and
// quotes for a fixed symbol set. Used for local runs and staging.
type Synthetic struct {
	cfg SyntheticConfig

	seq      atomic.Int64
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewSynthetic creates the adapter.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.EmitInterval <= 0 {
		cfg.EmitInterval = time.Second
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"AAPL"}
	}
	return &Synthetic{cfg: cfg, done: make(chan struct{})}
}

// Name implements Adapter.
func (s *Synthetic) Name() string { return "synthetic" }

// Start launches the generator goroutine. The returned stop function is
// idempotent and waits for the generator to cease invoking handlers.
func (s *Synthetic) Start(h Handlers) (func(), error) {
	s.wg.Add(1)
	go s.run(h)

	stop := func() {
		s.stopOnce.Do(func() { close(s.done) })
		s.wg.Wait()
	}
	return stop, nil
}

func (s *Synthetic) run(h Handlers) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.EmitInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prices := make([]float64, len(s.cfg.Symbols))
	for i := range prices {
		prices[i] = s.cfg.StartPrice * (1 + rng.Float64())
	}
	venues := []string{"Q", "N", "P", "D"}

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			for i, sym := range s.cfg.Symbols {
				prices[i] = walkPrice(prices[i], rng)
				venue := venues[rng.Intn(len(venues))]

				if h.OnTrade != nil {
					h.OnTrade(model.Print{
						UnderlyingID: sym,
						TS:           now,
						Seq:          s.seq.Add(1),
						SourceTS:     now,
						IngestTS:     now,
						Price:        prices[i],
						Size:         int64(rng.Intn(500) + 1),
						Exchange:     venue,
					})
				}
				if h.OnQuote != nil {
					spread := prices[i] * 0.0005
					h.OnQuote(model.Quote{
						UnderlyingID: sym,
						TS:           now,
						Seq:          s.seq.Add(1),
						SourceTS:     now,
						IngestTS:     now,
						Bid:          prices[i] - spread,
						Ask:          prices[i] + spread,
						Exchange:     venue,
					})
				}
			}
		}
	}
}

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64, rng *rand.Rand) float64 {
	pct := (rng.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}
