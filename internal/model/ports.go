package model

import "context"

// ── Sink Port Interfaces ──
// These interfaces decouple the pipeline stages from concrete sink
// implementations (ClickHouse, NATS, Redis). Each implementation satisfies
// one or more of these interfaces; tests substitute fakes.

// PrintStore persists prints and quotes to the columnar store.
type PrintStore interface {
	// InsertPrint appends one print row.
	InsertPrint(ctx context.Context, p Print) error

	// InsertQuote appends one quote row.
	InsertQuote(ctx context.Context, q Quote) error
}

// CandleStore persists emitted candles to the columnar store.
type CandleStore interface {
	// InsertCandle appends one candle row.
	InsertCandle(ctx context.Context, c Candle) error
}

// Publisher publishes a JSON-encoded entity to a bus subject with a
// synchronous ack.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// CandleCache maintains the bounded time-sorted hot cache of candles.
type CandleCache interface {
	// WriteCandle adds the candle to its (symbol, interval) sorted set and
	// trims entries older than limit windows.
	WriteCandle(ctx context.Context, c Candle, limit int) error
}
