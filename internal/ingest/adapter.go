// Package ingest implements the trade/quote ingest pipeline: a pluggable
// venue adapter feeds prints and quotes through an optional throttle gate,
// schema validation, a write-through to the columnar store, and an
// at-least-once publish onto the bus.
package ingest

import (
	"fmt"
	"time"

	"equity-pipeline/config"
	"equity-pipeline/internal/model"
)

// Handlers is the callback set an adapter fires into. OnQuote is optional.
type Handlers struct {
	OnTrade func(model.Print)
	OnQuote func(model.Quote)
}

// Adapter is a pluggable event source. Start begins invoking handlers and
// returns a stop function; stop is idempotent and ceases handler invocations
// before returning.
type Adapter interface {
	Name() string
	Start(h Handlers) (stop func(), err error)
}

// NewAdapter builds the adapter selected by name.
func NewAdapter(cfg *config.Config) (Adapter, error) {
	switch cfg.IngestAdapter {
	case "synthetic":
		return NewSynthetic(SyntheticConfig{
			Symbols:      cfg.ParseSymbols(),
			EmitInterval: time.Duration(cfg.EmitIntervalMS) * time.Millisecond,
		}), nil
	case "wsfeed":
		return NewWSFeed(WSFeedConfig{URL: cfg.FeedURL})
	default:
		return nil, fmt.Errorf("unknown ingest adapter %q", cfg.IngestAdapter)
	}
}
