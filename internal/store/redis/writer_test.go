package redis

import (
	"testing"

	"equity-pipeline/internal/model"
)

func cachedCandle(ts int64, close float64) string {
	c := model.Candle{
		UnderlyingID: "AAPL",
		IntervalMS:   1000,
		TS:           ts,
		Open:         close, High: close, Low: close, Close: close,
		Volume:     10,
		TradeCount: 1,
		TraceID:    model.CandleTraceID("AAPL", 1000, ts),
	}
	return string(c.JSON())
}

func TestDecodeTail_AscendingOrder(t *testing.T) {
	// ZRevRange yields newest first; readers get ascending window starts.
	members := []string{
		cachedCandle(3000, 12),
		cachedCandle(2000, 11),
		cachedCandle(1000, 10),
	}

	got := decodeTail("candles:equity:1000:AAPL", members)
	if len(got) != 3 {
		t.Fatalf("decoded %d candles, want 3", len(got))
	}
	wantTS := []int64{1000, 2000, 3000}
	for i, c := range got {
		if c.TS != wantTS[i] {
			t.Errorf("candle[%d].TS = %d, want %d", i, c.TS, wantTS[i])
		}
	}
	if got[2].Close != 12 {
		t.Errorf("newest close = %v, want 12", got[2].Close)
	}
}

func TestDecodeTail_SkipsUnparseableEntries(t *testing.T) {
	members := []string{
		cachedCandle(2000, 11),
		"{corrupt",
		cachedCandle(1000, 10),
	}

	got := decodeTail("candles:equity:1000:AAPL", members)
	if len(got) != 2 {
		t.Fatalf("decoded %d candles, want 2", len(got))
	}
	if got[0].TS != 1000 || got[1].TS != 2000 {
		t.Errorf("timestamps = %d,%d, want 1000,2000", got[0].TS, got[1].TS)
	}
}

func TestDecodeTail_Empty(t *testing.T) {
	if got := decodeTail("candles:equity:1000:AAPL", nil); len(got) != 0 {
		t.Errorf("decoded %d candles from empty set, want 0", len(got))
	}
}
