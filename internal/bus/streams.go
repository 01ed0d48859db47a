// Package bus wraps the NATS JetStream client used by the pipeline: stream
// provisioning, typed JSON publish, and durable pull consumers with the
// bootstrap/reset protocol the candle service relies on at startup.
package bus

// Stream and subject names are stable identifiers shared by all services.
const (
	StreamPrints  = "EQUITY_PRINTS"
	SubjectPrints = "equity.prints"

	StreamQuotes  = "EQUITY_QUOTES"
	SubjectQuotes = "equity.quotes"

	StreamCandles  = "EQUITY_CANDLES"
	SubjectCandles = "equity.candles"
)
