package candle

import (
	"context"
	"log/slog"

	"equity-pipeline/internal/bus"
	"equity-pipeline/internal/model"
)

// Emitter pushes each emitted candle through the three sinks in order:
// columnar store, bus, hot cache. Sinks degrade independently: a store
// failure abandons the candle (bus and cache are skipped), a bus failure
// still reaches the cache, and a cache failure is only warned about.
type Emitter struct {
	store model.CandleStore
	bus   model.Publisher
	cache model.CandleCache // nil when no cache client is connected

	cacheLimit int // max candles retained per (symbol, interval); 0 disables the cache

	// Metrics hooks (optional, set externally)
	OnEmitted       func(c model.Candle)
	OnPersistFailed func()
	OnPublishFailed func()
	OnCacheFailed   func()
}

// NewEmitter creates an Emitter. cache may be nil.
func NewEmitter(store model.CandleStore, pub model.Publisher, cache model.CandleCache, cacheLimit int) *Emitter {
	return &Emitter{
		store:      store,
		bus:        pub,
		cache:      cache,
		cacheLimit: cacheLimit,
	}
}

// Emit processes candles in order. Per-candle failures never stop the batch.
func (e *Emitter) Emit(ctx context.Context, candles []model.Candle) {
	for _, c := range candles {
		e.emitOne(ctx, c)
	}
}

func (e *Emitter) emitOne(ctx context.Context, c model.Candle) {
	// Outbound schema check. A failure here is a programming error in the
	// aggregator; abort the candle before it reaches any sink.
	if err := c.Validate(); err != nil {
		slog.Error("emitted candle failed validation, skipping sinks",
			"trace_id", c.TraceID, "err", err)
		return
	}

	if err := e.store.InsertCandle(ctx, c); err != nil {
		if e.OnPersistFailed != nil {
			e.OnPersistFailed()
		}
		slog.Error("candle persist failed, skipping bus and cache",
			"trace_id", c.TraceID, "err", err)
		return
	}
	if e.OnEmitted != nil {
		e.OnEmitted(c)
	}

	if err := e.bus.PublishJSON(bus.SubjectCandles, c); err != nil {
		if e.OnPublishFailed != nil {
			e.OnPublishFailed()
		}
		slog.Error("candle publish failed", "trace_id", c.TraceID, "err", err)
		// Store write is the durable record; keep going to the cache.
	}

	if e.cache == nil || e.cacheLimit <= 0 {
		return
	}
	if err := e.cache.WriteCandle(ctx, c, e.cacheLimit); err != nil {
		if e.OnCacheFailed != nil {
			e.OnCacheFailed()
		}
		slog.Warn("candle cache update failed", "trace_id", c.TraceID, "err", err)
	}
}
