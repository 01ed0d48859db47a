package model

import (
	"errors"
	"testing"
)

func validPrint() Print {
	return Print{
		UnderlyingID: "AAPL",
		TS:           1000,
		Seq:          1,
		Price:        187.5,
		Size:         100,
		Exchange:     "Q",
	}
}

func TestPrintValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Print)
		wantErr bool
		field   string
	}{
		{"valid", func(p *Print) {}, false, ""},
		{"symbol with dot", func(p *Print) { p.UnderlyingID = "BRK.B" }, false, ""},
		{"symbol with dash", func(p *Print) { p.UnderlyingID = "BF-B" }, false, ""},
		{"empty symbol", func(p *Print) { p.UnderlyingID = "" }, true, "underlying_id"},
		{"lowercase symbol", func(p *Print) { p.UnderlyingID = "aapl" }, true, "underlying_id"},
		{"zero ts", func(p *Print) { p.TS = 0 }, true, "ts"},
		{"negative seq", func(p *Print) { p.Seq = -1 }, true, "seq"},
		{"zero seq ok", func(p *Print) { p.Seq = 0 }, false, ""},
		{"zero price", func(p *Print) { p.Price = 0 }, true, "price"},
		{"negative price", func(p *Print) { p.Price = -1 }, true, "price"},
		{"zero size", func(p *Print) { p.Size = 0 }, true, "size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPrint()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error is %T, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestQuoteValidate(t *testing.T) {
	q := Quote{UnderlyingID: "AAPL", TS: 1000, Seq: 1, Bid: 187.40, Ask: 187.45, Exchange: "Q"}
	if err := q.Validate(); err != nil {
		t.Fatalf("valid quote rejected: %v", err)
	}

	crossed := q
	crossed.Ask = 187.30
	if err := crossed.Validate(); err == nil {
		t.Error("ask below bid must be rejected")
	}

	locked := q
	locked.Ask = locked.Bid
	if err := locked.Validate(); err == nil {
		t.Error("ask equal to bid must be rejected, spread must be positive")
	}
}

func TestCandleValidate(t *testing.T) {
	good := Candle{
		UnderlyingID: "AAPL",
		IntervalMS:   1000,
		TS:           5000,
		Open:         10, High: 12, Low: 9, Close: 11,
		Volume:     100,
		TradeCount: 3,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid candle rejected: %v", err)
	}

	misaligned := good
	misaligned.TS = 5500
	if err := misaligned.Validate(); err == nil {
		t.Error("window start not aligned to interval must be rejected")
	}

	badBounds := good
	badBounds.High = 10.5 // below close
	if err := badBounds.Validate(); err == nil {
		t.Error("high below close must be rejected")
	}

	noVolume := good
	noVolume.Volume = 0
	if err := noVolume.Validate(); err == nil {
		t.Error("zero volume must be rejected")
	}
}

func TestDecodePrint(t *testing.T) {
	p, err := DecodePrint([]byte(`{"underlying_id":"AAPL","ts":1000,"seq":2,"price":187.5,"size":100,"exchange":"Q"}`))
	if err != nil {
		t.Fatalf("DecodePrint: %v", err)
	}
	if p.UnderlyingID != "AAPL" || p.Seq != 2 {
		t.Errorf("decoded print = %+v", p)
	}

	if _, err := DecodePrint([]byte(`{not json`)); err == nil {
		t.Error("malformed payload must fail")
	}
	if _, err := DecodePrint([]byte(`{"underlying_id":"AAPL","ts":1000,"price":-1,"size":100}`)); err == nil {
		t.Error("schema-invalid payload must fail")
	}
}

func TestDecodeQuote(t *testing.T) {
	q, err := DecodeQuote([]byte(`{"underlying_id":"AAPL","ts":1000,"seq":3,"bid":187.40,"ask":187.45,"exchange":"Q"}`))
	if err != nil {
		t.Fatalf("DecodeQuote: %v", err)
	}
	if q.Bid != 187.40 || q.Ask != 187.45 {
		t.Errorf("decoded quote = %+v", q)
	}

	if _, err := DecodeQuote([]byte(`not json`)); err == nil {
		t.Error("malformed payload must fail")
	}
	if _, err := DecodeQuote([]byte(`{"underlying_id":"AAPL","ts":1000,"bid":10,"ask":9}`)); err == nil {
		t.Error("crossed quote must fail")
	}
}

func TestDecodeCandle(t *testing.T) {
	c, err := DecodeCandle([]byte(`{"underlying_id":"AAPL","interval_ms":1000,"ts":5000,` +
		`"open":10,"high":12,"low":9,"close":11,"volume":100,"trade_count":3,` +
		`"trace_id":"candle:AAPL:1000:5000"}`))
	if err != nil {
		t.Fatalf("DecodeCandle: %v", err)
	}
	if c.TS != 5000 || c.High != 12 {
		t.Errorf("decoded candle = %+v", c)
	}

	if _, err := DecodeCandle([]byte(`{"underlying_id":"AAPL","interval_ms":1000,"ts":5500,` +
		`"open":10,"high":12,"low":9,"close":11,"volume":100,"trade_count":3}`)); err == nil {
		t.Error("misaligned window start must fail")
	}
}

func TestCandleTraceIDAndCacheKey(t *testing.T) {
	if got := CandleTraceID("AAPL", 1000, 5000); got != "candle:AAPL:1000:5000" {
		t.Errorf("CandleTraceID = %q", got)
	}
	if got := CandleCacheKey("AAPL", 60000); got != "candles:equity:60000:AAPL" {
		t.Errorf("CandleCacheKey = %q", got)
	}
}
