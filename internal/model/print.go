package model

import "encoding/json"

// Print represents a single executed equity trade as received from a venue
// feed. Timestamps are milliseconds since epoch; TS is event time and Seq is
// the per-source tiebreaker for prints sharing the same TS.
type Print struct {
	UnderlyingID string  `json:"underlying_id"`
	TS           int64   `json:"ts"`
	Seq          int64   `json:"seq"`
	SourceTS     int64   `json:"source_ts"`
	IngestTS     int64   `json:"ingest_ts"`
	TraceID      string  `json:"trace_id"`
	Price        float64 `json:"price"`
	Size         int64   `json:"size"`
	Exchange     string  `json:"exchange"`
	OffExchange  bool    `json:"off_exchange"`
}

// Key returns a unique key for this print's instrument.
func (p *Print) Key() string {
	return p.UnderlyingID
}

// JSON returns the JSON-encoded print (ignoring errors for hot-path usage).
func (p *Print) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// Validate checks the print against the wire schema.
func (p *Print) Validate() error {
	if err := validSymbol("print", p.UnderlyingID); err != nil {
		return err
	}
	if p.TS <= 0 {
		return &ValidationError{Entity: "print", Field: "ts", Reason: "must be positive"}
	}
	if p.Seq < 0 {
		return &ValidationError{Entity: "print", Field: "seq", Reason: "must be non-negative"}
	}
	if p.Price <= 0 {
		return &ValidationError{Entity: "print", Field: "price", Reason: "must be positive"}
	}
	if p.Size <= 0 {
		return &ValidationError{Entity: "print", Field: "size", Reason: "must be positive"}
	}
	return nil
}

// DecodePrint unmarshals and validates a print payload.
func DecodePrint(data []byte) (Print, error) {
	var p Print
	if err := json.Unmarshal(data, &p); err != nil {
		return Print{}, &ValidationError{Entity: "print", Field: "payload", Reason: err.Error()}
	}
	if err := p.Validate(); err != nil {
		return Print{}, err
	}
	return p, nil
}
