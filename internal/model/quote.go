package model

import "encoding/json"

// Quote represents an NBBO-style top-of-book snapshot. Identity and temporal
// fields mirror Print.
type Quote struct {
	UnderlyingID string  `json:"underlying_id"`
	TS           int64   `json:"ts"`
	Seq          int64   `json:"seq"`
	SourceTS     int64   `json:"source_ts"`
	IngestTS     int64   `json:"ingest_ts"`
	TraceID      string  `json:"trace_id"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Exchange     string  `json:"exchange"`
	OffExchange  bool    `json:"off_exchange"`
}

// JSON returns the JSON-encoded quote (ignoring errors for hot-path usage).
func (q *Quote) JSON() []byte {
	b, _ := json.Marshal(q)
	return b
}

// Validate checks the quote against the wire schema.
func (q *Quote) Validate() error {
	if err := validSymbol("quote", q.UnderlyingID); err != nil {
		return err
	}
	if q.TS <= 0 {
		return &ValidationError{Entity: "quote", Field: "ts", Reason: "must be positive"}
	}
	if q.Seq < 0 {
		return &ValidationError{Entity: "quote", Field: "seq", Reason: "must be non-negative"}
	}
	if q.Bid <= 0 {
		return &ValidationError{Entity: "quote", Field: "bid", Reason: "must be positive"}
	}
	if q.Ask <= q.Bid {
		return &ValidationError{Entity: "quote", Field: "ask", Reason: "must exceed bid"}
	}
	return nil
}

// DecodeQuote unmarshals and validates a quote payload.
func DecodeQuote(data []byte) (Quote, error) {
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return Quote{}, &ValidationError{Entity: "quote", Field: "payload", Reason: err.Error()}
	}
	if err := q.Validate(); err != nil {
		return Quote{}, err
	}
	return q, nil
}
