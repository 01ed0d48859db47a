package model

import (
	"encoding/json"
	"strconv"
)

// Candle represents a fixed-interval OHLCV bar for a single symbol.
// TS is the window start (floor(event_ts / interval_ms) * interval_ms).
// SourceTS carries the opening print's source time, IngestTS and Seq the
// closing print's ingest time and sequence.
type Candle struct {
	UnderlyingID string  `json:"underlying_id"`
	IntervalMS   int64   `json:"interval_ms"`
	TS           int64   `json:"ts"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       int64   `json:"volume"`
	TradeCount   int64   `json:"trade_count"`
	SourceTS     int64   `json:"source_ts"`
	IngestTS     int64   `json:"ingest_ts"`
	Seq          int64   `json:"seq"`
	TraceID      string  `json:"trace_id"`
}

// CandleTraceID formats the correlation id carried by every emitted candle.
func CandleTraceID(symbol string, intervalMS, windowStart int64) string {
	return "candle:" + symbol + ":" + strconv.FormatInt(intervalMS, 10) + ":" + strconv.FormatInt(windowStart, 10)
}

// CandleCacheKey formats the hot-cache sorted-set key for a (symbol, interval).
func CandleCacheKey(symbol string, intervalMS int64) string {
	return "candles:equity:" + strconv.FormatInt(intervalMS, 10) + ":" + symbol
}

// Key returns a unique key for this candle's (symbol, interval) stream.
func (c *Candle) Key() string {
	return c.UnderlyingID + ":" + strconv.FormatInt(c.IntervalMS, 10)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Validate checks the candle against the wire schema and OHLC invariants.
func (c *Candle) Validate() error {
	if err := validSymbol("candle", c.UnderlyingID); err != nil {
		return err
	}
	if c.IntervalMS <= 0 {
		return &ValidationError{Entity: "candle", Field: "interval_ms", Reason: "must be positive"}
	}
	if c.TS < 0 || c.TS%c.IntervalMS != 0 {
		return &ValidationError{Entity: "candle", Field: "ts", Reason: "must be interval-aligned"}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return &ValidationError{Entity: "candle", Field: "ohlc", Reason: "prices must be positive"}
	}
	if c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
		return &ValidationError{Entity: "candle", Field: "ohlc", Reason: "high/low must bound open/close"}
	}
	if c.Volume <= 0 {
		return &ValidationError{Entity: "candle", Field: "volume", Reason: "must be positive"}
	}
	if c.TradeCount < 1 {
		return &ValidationError{Entity: "candle", Field: "trade_count", Reason: "must be >= 1"}
	}
	return nil
}

// DecodeCandle unmarshals and validates a candle payload.
func DecodeCandle(data []byte) (Candle, error) {
	var c Candle
	if err := json.Unmarshal(data, &c); err != nil {
		return Candle{}, &ValidationError{Entity: "candle", Field: "payload", Reason: err.Error()}
	}
	if err := c.Validate(); err != nil {
		return Candle{}, err
	}
	return c, nil
}
