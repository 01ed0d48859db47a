package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"equity-pipeline/internal/bus"
	"equity-pipeline/internal/logger"
	"equity-pipeline/internal/model"
)

// sinkTimeout bounds each store write so a stalled store cannot wedge the
// adapter's handler goroutine.
const sinkTimeout = 5 * time.Second

// Publisher runs the per-event ingest pipeline: shutdown gate → throttle →
// validate → store write-through → bus publish. The store write is the
// durable record; a publish failure after a successful insert is logged and
// never retried (at-least-once into the store, at-least-once onto the bus).
type Publisher struct {
	store      model.PrintStore
	bus        model.Publisher
	tradeGate  *Throttle
	quoteGate  *Throttle
	venueNames map[string]string

	shuttingDown atomic.Bool

	// Metrics hooks (optional, set externally)
	OnTradePublished    func()
	OnQuotePublished    func()
	OnValidationFailure func(kind string)
	OnPersistFailure    func(kind string)
	OnPublishFailure    func(kind string)
}

// PublisherConfig configures the ingest publisher.
type PublisherConfig struct {
	ThrottleEnabled bool
	ThrottleGap     time.Duration
	VenueNames      map[string]string // nil falls back to the static table
}

// NewPublisher creates a Publisher over the given sinks.
func NewPublisher(store model.PrintStore, pub model.Publisher, cfg PublisherConfig) *Publisher {
	venues := cfg.VenueNames
	if venues == nil {
		venues = VenueNames()
	}
	return &Publisher{
		store:      store,
		bus:        pub,
		tradeGate:  NewThrottle("trade", cfg.ThrottleEnabled, cfg.ThrottleGap),
		quoteGate:  NewThrottle("quote", cfg.ThrottleEnabled, cfg.ThrottleGap),
		venueNames: venues,
	}
}

// Handlers returns the callback set to hand to an adapter. Errors are
// absorbed at this boundary; nothing propagates back into the adapter.
func (p *Publisher) Handlers() Handlers {
	return Handlers{
		OnTrade: p.handleTrade,
		OnQuote: p.handleQuote,
	}
}

// Shutdown flips the drop gate. Subsequent handler invocations are discarded.
func (p *Publisher) Shutdown() {
	p.shuttingDown.Store(true)
}

func (p *Publisher) handleTrade(pr model.Print) {
	if p.shuttingDown.Load() {
		return
	}
	if !p.tradeGate.Admit() {
		return
	}

	// First observation point: stamp the correlation id unless the source
	// already carries one.
	if pr.TraceID == "" {
		pr.TraceID = logger.GenerateTraceID(pr.UnderlyingID, time.Now())
	}
	if !pr.OffExchange {
		pr.OffExchange = InferOffExchange(pr.Exchange, p.venueNames)
	}
	if err := pr.Validate(); err != nil {
		if p.OnValidationFailure != nil {
			p.OnValidationFailure("trade")
		}
		slog.Warn("dropping invalid print", "symbol", pr.UnderlyingID, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := p.store.InsertPrint(ctx, pr); err != nil {
		if p.OnPersistFailure != nil {
			p.OnPersistFailure("trade")
		}
		slog.Error("print store write failed, skipping publish",
			"symbol", pr.UnderlyingID, "trace_id", pr.TraceID, "err", err)
		return
	}

	if err := p.bus.PublishJSON(bus.SubjectPrints, pr); err != nil {
		if p.OnPublishFailure != nil {
			p.OnPublishFailure("trade")
		}
		slog.Error("print publish failed", "symbol", pr.UnderlyingID, "err", err)
		return
	}
	if p.OnTradePublished != nil {
		p.OnTradePublished()
	}
}

func (p *Publisher) handleQuote(q model.Quote) {
	if p.shuttingDown.Load() {
		return
	}
	if !p.quoteGate.Admit() {
		return
	}

	if q.TraceID == "" {
		q.TraceID = logger.GenerateTraceID(q.UnderlyingID, time.Now())
	}
	if !q.OffExchange {
		q.OffExchange = InferOffExchange(q.Exchange, p.venueNames)
	}
	if err := q.Validate(); err != nil {
		if p.OnValidationFailure != nil {
			p.OnValidationFailure("quote")
		}
		slog.Warn("dropping invalid quote", "symbol", q.UnderlyingID, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := p.store.InsertQuote(ctx, q); err != nil {
		if p.OnPersistFailure != nil {
			p.OnPersistFailure("quote")
		}
		slog.Error("quote store write failed, skipping publish",
			"symbol", q.UnderlyingID, "trace_id", q.TraceID, "err", err)
		return
	}

	if err := p.bus.PublishJSON(bus.SubjectQuotes, q); err != nil {
		if p.OnPublishFailure != nil {
			p.OnPublishFailure("quote")
		}
		slog.Error("quote publish failed", "symbol", q.UnderlyingID, "err", err)
		return
	}
	if p.OnQuotePublished != nil {
		p.OnQuotePublished()
	}
}
