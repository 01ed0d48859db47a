// Package clickhouse implements the columnar store sink: three append-only
// tables for prints, quotes, and candles, with idempotent table provisioning
// and single-row inserts.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"equity-pipeline/internal/model"
)

// WriterConfig configures the ClickHouse writer.
type WriterConfig struct {
	URL      string // e.g. "http://localhost:8123"
	Database string // logical database, e.g. "default"
}

// Writer persists prints, quotes, and candles to ClickHouse.
// Safe for concurrent use; the driver pools connections.
type Writer struct {
	conn driver.Conn
	db   string
}

// New opens a connection and pings the server.
func New(ctx context.Context, cfg WriterConfig) (*Writer, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("clickhouse url %q: %w", cfg.URL, err)
	}

	opts := &clickhouse.Options{
		Addr:        []string{u.Host},
		Auth:        clickhouse.Auth{Database: cfg.Database},
		DialTimeout: 5 * time.Second,
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		opts.Protocol = clickhouse.HTTP
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	slog.Info("clickhouse connected", "addr", u.Host, "database", cfg.Database)
	return &Writer{conn: conn, db: cfg.Database}, nil
}

// EnsureTables creates the three append-only tables if absent.
func (w *Writer) EnsureTables(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS equity_prints (
			underlying_id LowCardinality(String),
			ts            Int64,
			seq           Int64,
			source_ts     Int64,
			ingest_ts     Int64,
			trace_id      String,
			price         Float64,
			size          Int64,
			exchange      LowCardinality(String),
			off_exchange  Bool
		) ENGINE = MergeTree() ORDER BY (underlying_id, ts, seq)`,

		`CREATE TABLE IF NOT EXISTS equity_quotes (
			underlying_id LowCardinality(String),
			ts            Int64,
			seq           Int64,
			source_ts     Int64,
			ingest_ts     Int64,
			trace_id      String,
			bid           Float64,
			ask           Float64,
			exchange      LowCardinality(String),
			off_exchange  Bool
		) ENGINE = MergeTree() ORDER BY (underlying_id, ts, seq)`,

		`CREATE TABLE IF NOT EXISTS equity_candles (
			underlying_id LowCardinality(String),
			interval_ms   Int64,
			ts            Int64,
			open          Float64,
			high          Float64,
			low           Float64,
			close         Float64,
			volume        Int64,
			trade_count   Int64,
			source_ts     Int64,
			ingest_ts     Int64,
			seq           Int64,
			trace_id      String
		) ENGINE = MergeTree() ORDER BY (underlying_id, interval_ms, ts)`,
	}

	for _, stmt := range ddl {
		if err := w.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse ensure tables: %w", err)
		}
	}
	return nil
}

// InsertPrint appends one print row.
func (w *Writer) InsertPrint(ctx context.Context, p model.Print) error {
	err := w.conn.Exec(ctx,
		`INSERT INTO equity_prints
			(underlying_id, ts, seq, source_ts, ingest_ts, trace_id, price, size, exchange, off_exchange)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UnderlyingID, p.TS, p.Seq, p.SourceTS, p.IngestTS, p.TraceID,
		p.Price, p.Size, p.Exchange, p.OffExchange)
	if err != nil {
		return fmt.Errorf("insert print %s: %w", p.UnderlyingID, err)
	}
	return nil
}

// InsertQuote appends one quote row.
func (w *Writer) InsertQuote(ctx context.Context, q model.Quote) error {
	err := w.conn.Exec(ctx,
		`INSERT INTO equity_quotes
			(underlying_id, ts, seq, source_ts, ingest_ts, trace_id, bid, ask, exchange, off_exchange)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.UnderlyingID, q.TS, q.Seq, q.SourceTS, q.IngestTS, q.TraceID,
		q.Bid, q.Ask, q.Exchange, q.OffExchange)
	if err != nil {
		return fmt.Errorf("insert quote %s: %w", q.UnderlyingID, err)
	}
	return nil
}

// InsertCandle appends one candle row.
func (w *Writer) InsertCandle(ctx context.Context, c model.Candle) error {
	err := w.conn.Exec(ctx,
		`INSERT INTO equity_candles
			(underlying_id, interval_ms, ts, open, high, low, close, volume, trade_count, source_ts, ingest_ts, seq, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UnderlyingID, c.IntervalMS, c.TS, c.Open, c.High, c.Low, c.Close,
		c.Volume, c.TradeCount, c.SourceTS, c.IngestTS, c.Seq, c.TraceID)
	if err != nil {
		return fmt.Errorf("insert candle %s: %w", c.TraceID, err)
	}
	return nil
}

// Ping checks connectivity for health probes.
func (w *Writer) Ping(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	return w.conn.Close()
}
