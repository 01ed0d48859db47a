// Package redis implements the hot candle cache: one time-sorted set per
// (symbol, interval) holding the most recent candles for fast tail-reads.
// The cache is advisory; readers must tolerate absence or staleness.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"equity-pipeline/internal/model"
)

// WriterConfig configures the cache writer.
type WriterConfig struct {
	URL string // e.g. "redis://localhost:6379"
}

// Writer maintains the bounded candle sorted sets.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new cache Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url %q: %w", cfg.URL, err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", opts.Addr)
	return &Writer{client: client}, nil
}

// WriteCandle adds the candle to its sorted set (score = window start) and
// trims members older than limit windows in one pipeline roundtrip.
func (w *Writer) WriteCandle(ctx context.Context, c model.Candle, limit int) error {
	key := model.CandleCacheKey(c.UnderlyingID, c.IntervalMS)

	pipe := w.client.Pipeline()
	pipe.ZAdd(ctx, key, &goredis.Z{
		Score:  float64(c.TS),
		Member: string(c.JSON()),
	})
	cutoff := c.TS - c.IntervalMS*int64(limit)
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache update %s: %w", key, err)
	}
	return nil
}

// ReadTail returns up to n most recent candles for a (symbol, interval) in
// ascending window-start order.
func (w *Writer) ReadTail(ctx context.Context, symbol string, intervalMS int64, n int) ([]model.Candle, error) {
	key := model.CandleCacheKey(symbol, intervalMS)

	members, err := w.client.ZRevRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache read %s: %w", key, err)
	}
	return decodeTail(key, members), nil
}

// decodeTail turns a ZRevRange result (newest first) into ascending candles,
// skipping entries that no longer parse.
func decodeTail(key string, members []string) []model.Candle {
	candles := make([]model.Candle, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var c model.Candle
		if err := json.Unmarshal([]byte(members[i]), &c); err != nil {
			slog.Warn("cache entry unparseable, skipping", "key", key, "err", err)
			continue
		}
		candles = append(candles, c)
	}
	return candles
}

// Ping checks connectivity for health probes.
func (w *Writer) Ping(ctx context.Context) error {
	return w.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
