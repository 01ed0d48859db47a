package candle

import (
	"testing"

	"equity-pipeline/internal/model"
)

// makePrint creates a test print for AAPL. SourceTS and IngestTS mirror TS so
// candle provenance fields can be asserted directly.
func makePrint(ts int64, price float64, size, seq int64) model.Print {
	return model.Print{
		UnderlyingID: "AAPL",
		TS:           ts,
		Seq:          seq,
		SourceTS:     ts,
		IngestTS:     ts,
		Price:        price,
		Size:         size,
		Exchange:     "Q",
	}
}

func TestIngest_BasicOHLC(t *testing.T) {
	a := New([]int64{1000}, 0)

	r1 := a.Ingest(makePrint(1000, 10, 100, 1))
	r2 := a.Ingest(makePrint(1500, 12, 50, 2))
	if len(r1.Emitted) != 0 || len(r2.Emitted) != 0 {
		t.Fatalf("no candle should close before watermark passes: %v %v", r1.Emitted, r2.Emitted)
	}

	r3 := a.Ingest(makePrint(2500, 11, 10, 3))
	if len(r3.Emitted) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(r3.Emitted))
	}
	c := r3.Emitted[0]
	if c.TS != 1000 {
		t.Errorf("ts = %d, want 1000", c.TS)
	}
	if c.Open != 10 || c.High != 12 || c.Low != 10 || c.Close != 12 {
		t.Errorf("ohlc = %v/%v/%v/%v, want 10/12/10/12", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 150 {
		t.Errorf("volume = %d, want 150", c.Volume)
	}
	if c.TradeCount != 2 {
		t.Errorf("trade_count = %d, want 2", c.TradeCount)
	}
	if c.Seq != 2 {
		t.Errorf("seq = %d, want 2 (closing print)", c.Seq)
	}
	if c.SourceTS != 1000 {
		t.Errorf("source_ts = %d, want 1000 (opening print)", c.SourceTS)
	}
	if c.IngestTS != 1500 {
		t.Errorf("ingest_ts = %d, want 1500 (closing print)", c.IngestTS)
	}
	if c.TraceID != "candle:AAPL:1000:1000" {
		t.Errorf("trace_id = %q", c.TraceID)
	}
}

func TestIngest_OutOfOrderWithinAdmittedWindow(t *testing.T) {
	a := New([]int64{1000}, 2000)

	a.Ingest(makePrint(1500, 15, 10, 2))
	r := a.Ingest(makePrint(1200, 11, 20, 1))
	if len(r.Emitted) != 0 || r.DroppedLate != 0 {
		t.Fatalf("late print inside lateness bound must be admitted: %+v", r)
	}

	drained := a.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained candle, got %d", len(drained))
	}
	c := drained[0]
	if c.Open != 11 || c.Close != 15 {
		t.Errorf("open/close = %v/%v, want 11/15", c.Open, c.Close)
	}
	if c.TradeCount != 2 {
		t.Errorf("trade_count = %d, want 2", c.TradeCount)
	}
	if c.Seq != 2 {
		t.Errorf("seq = %d, want 2", c.Seq)
	}
	if c.SourceTS != 1200 {
		t.Errorf("source_ts = %d, want 1200", c.SourceTS)
	}
	if c.IngestTS != 1500 {
		t.Errorf("ingest_ts = %d, want 1500", c.IngestTS)
	}
}

func TestIngest_LateDropAfterClose(t *testing.T) {
	a := New([]int64{1000}, 0)

	a.Ingest(makePrint(1000, 10, 100, 1))
	r2 := a.Ingest(makePrint(3000, 14, 50, 2))
	if len(r2.Emitted) != 1 || r2.Emitted[0].TS != 1000 {
		t.Fatalf("expected the ts=1000 candle to close, got %+v", r2.Emitted)
	}

	r3 := a.Ingest(makePrint(1500, 9, 25, 3))
	if r3.DroppedLate != 1 {
		t.Errorf("droppedLate = %d, want 1", r3.DroppedLate)
	}
	if len(r3.Emitted) != 0 {
		t.Errorf("emitted = %v, want none", r3.Emitted)
	}
}

func TestIngest_MultiIntervalFanOut(t *testing.T) {
	a := New([]int64{1000, 5000}, 0)

	a.Ingest(makePrint(1000, 10, 1, 1))

	r2 := a.Ingest(makePrint(4500, 12, 1, 2))
	if len(r2.Emitted) != 1 {
		t.Fatalf("expected 1 candle after second print, got %d", len(r2.Emitted))
	}
	if c := r2.Emitted[0]; c.IntervalMS != 1000 || c.TS != 1000 || c.Close != 10 {
		t.Errorf("candle = %+v, want interval=1000 ts=1000 close=10", c)
	}

	r3 := a.Ingest(makePrint(6000, 8, 1, 3))
	if len(r3.Emitted) != 2 {
		t.Fatalf("expected 2 candles after third print, got %d: %+v", len(r3.Emitted), r3.Emitted)
	}
	// Intervals are processed ascending: the 1s window first, then the 5s.
	c1 := r3.Emitted[0]
	if c1.IntervalMS != 1000 || c1.TS != 4000 || c1.Close != 12 {
		t.Errorf("first candle = %+v, want interval=1000 ts=4000 close=12", c1)
	}
	c5 := r3.Emitted[1]
	if c5.IntervalMS != 5000 || c5.TS != 0 {
		t.Fatalf("second candle = %+v, want interval=5000 ts=0", c5)
	}
	if c5.Open != 10 || c5.High != 12 || c5.Low != 10 || c5.Close != 12 {
		t.Errorf("5s ohlc = %v/%v/%v/%v, want 10/12/10/12", c5.Open, c5.High, c5.Low, c5.Close)
	}
	if c5.Volume != 2 || c5.TradeCount != 2 {
		t.Errorf("5s volume/count = %d/%d, want 2/2", c5.Volume, c5.TradeCount)
	}
}

func TestIngest_TieBreakBySeq(t *testing.T) {
	orders := [][]model.Print{
		{makePrint(2000, 10, 1, 1), makePrint(2000, 20, 1, 2)},
		{makePrint(2000, 20, 1, 2), makePrint(2000, 10, 1, 1)},
	}
	for i, prints := range orders {
		a := New([]int64{1000}, 0)
		for _, p := range prints {
			a.Ingest(p)
		}
		out := a.Drain()
		if len(out) != 1 {
			t.Fatalf("order %d: expected 1 candle, got %d", i, len(out))
		}
		c := out[0]
		if c.Open != 10 || c.Close != 20 {
			t.Errorf("order %d: open/close = %v/%v, want 10/20", i, c.Open, c.Close)
		}
		if c.Seq != 2 {
			t.Errorf("order %d: seq = %d, want 2", i, c.Seq)
		}
	}
}

func TestIngest_OpenWindowKeepsAdmittingLatePrints(t *testing.T) {
	// A builder that exists stays open to late prints; only the
	// first-print-creates-builder path enforces lateness.
	a := New([]int64{1000}, 1000)

	a.Ingest(makePrint(1500, 10, 1, 1)) // opens [1000,2000)
	a.Ingest(makePrint(2900, 11, 1, 2)) // watermark = 1900, [1000,2000) stays open
	r := a.Ingest(makePrint(1100, 9, 1, 3))
	if r.DroppedLate != 0 {
		t.Fatalf("print into a still-open window must be admitted, got droppedLate=%d", r.DroppedLate)
	}

	out := a.Drain()
	var found bool
	for _, c := range out {
		if c.TS == 1000 {
			found = true
			if c.Low != 9 || c.TradeCount != 3 {
				t.Errorf("candle = %+v, want low=9 trade_count=3", c)
			}
		}
	}
	if !found {
		t.Fatal("missing candle for window 1000")
	}
}

func TestIngest_FreshWindowAheadOfWatermarkAlwaysAdmitted(t *testing.T) {
	a := New([]int64{1000}, 500)

	a.Ingest(makePrint(10000, 10, 1, 1))
	// watermark = 9500; window [9000,10000) ends exactly at 10000 > 9500.
	r := a.Ingest(makePrint(9100, 9, 1, 2))
	if r.DroppedLate != 0 {
		t.Fatalf("window_end > watermark must be admitted, got droppedLate=%d", r.DroppedLate)
	}
}

func TestDrain_Idempotent(t *testing.T) {
	a := New([]int64{1000}, 0)
	a.Ingest(makePrint(1000, 10, 1, 1))

	first := a.Drain()
	if len(first) != 1 {
		t.Fatalf("expected 1 candle from drain, got %d", len(first))
	}
	second := a.Drain()
	if len(second) != 0 {
		t.Fatalf("second drain must be empty, got %d", len(second))
	}
}

func TestEmittedTimestampsStrictlyIncrease(t *testing.T) {
	a := New([]int64{1000}, 0)

	seq := int64(0)
	var emitted []model.Candle
	for _, ts := range []int64{1000, 1100, 2500, 2600, 4100, 9000, 9100} {
		seq++
		r := a.Ingest(makePrint(ts, 10, 1, seq))
		emitted = append(emitted, r.Emitted...)
	}
	emitted = append(emitted, a.Drain()...)

	last := int64(-1)
	for _, c := range emitted {
		if c.TS <= last {
			t.Fatalf("candle ts %d not strictly after %d", c.TS, last)
		}
		last = c.TS
	}
}

func TestIngest_MultiSymbolIsolation(t *testing.T) {
	a := New([]int64{1000}, 0)

	aapl := makePrint(1000, 10, 1, 1)
	msft := makePrint(1500, 200, 1, 1)
	msft.UnderlyingID = "MSFT"

	a.Ingest(aapl)
	r := a.Ingest(msft)
	// MSFT's watermark is independent; AAPL's window must not close.
	if len(r.Emitted) != 0 {
		t.Fatalf("cross-symbol ingest closed a window: %+v", r.Emitted)
	}

	out := a.Drain()
	if len(out) != 2 {
		t.Fatalf("expected 2 drained candles, got %d", len(out))
	}
}

func TestNew_NormalisesIntervals(t *testing.T) {
	a := New([]int64{5000, 1000, 1000, -7, 0, 60000}, -100)

	got := a.Intervals()
	want := []int64{1000, 5000, 60000}
	if len(got) != len(want) {
		t.Fatalf("intervals = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("intervals = %v, want %v", got, want)
		}
	}
}

func TestIngest_AggregatePropertyCheck(t *testing.T) {
	// All prints land in one window; every aggregate must be derivable from
	// the admitted set.
	a := New([]int64{60000}, 0)

	prices := []float64{50, 49.5, 51.25, 48.75, 50.5}
	sizes := []int64{10, 20, 5, 40, 25}
	var totalSize int64
	for i := range prices {
		a.Ingest(makePrint(int64(1000+i*100), prices[i], sizes[i], int64(i+1)))
		totalSize += sizes[i]
	}

	out := a.Drain()
	if len(out) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(out))
	}
	c := out[0]
	if c.TS != 0 {
		t.Errorf("ts = %d, want 0", c.TS)
	}
	if c.Open != 50 || c.Close != 50.5 {
		t.Errorf("open/close = %v/%v, want 50/50.5", c.Open, c.Close)
	}
	if c.High != 51.25 || c.Low != 48.75 {
		t.Errorf("high/low = %v/%v, want 51.25/48.75", c.High, c.Low)
	}
	if c.Volume != totalSize {
		t.Errorf("volume = %d, want %d", c.Volume, totalSize)
	}
	if c.TradeCount != int64(len(prices)) {
		t.Errorf("trade_count = %d, want %d", c.TradeCount, len(prices))
	}
	if err := c.Validate(); err != nil {
		t.Errorf("emitted candle failed validation: %v", err)
	}
}
