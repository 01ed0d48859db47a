// Package candle implements the watermark-driven OHLCV windowing kernel and
// the multi-sink emitter that fans completed candles out to the columnar
// store, the bus, and the hot cache.
package candle

import (
	"sort"
	"sync"

	"equity-pipeline/internal/model"
)

// windowBuilder accumulates one open window for a (symbol, interval) pair.
type windowBuilder struct {
	symbol   string
	interval int64
	start    int64 // window start, ms

	open, high, low, close_ float64
	volume                  int64
	trades                  int64

	openTS, openSeq   int64 // identity of the earliest admitted print
	closeTS, closeSeq int64 // identity of the latest admitted print
	sourceTS          int64 // opening print's source_ts
	ingestTS          int64 // closing print's ingest_ts
}

// intervalState tracks one (symbol, interval) stream: the event-time frontier
// and all still-open windows keyed by window start.
type intervalState struct {
	lastTS   int64
	builders map[int64]*windowBuilder
}

type stateKey struct {
	symbol   string
	interval int64
}

// Result carries the outcome of one Ingest call.
type Result struct {
	Emitted     []model.Candle
	DroppedLate int
}

// Aggregator folds prints into fixed-interval OHLCV candles across multiple
// configured intervals, tolerating out-of-order arrivals up to maxLate ms.
// A window [start, start+interval) closes once the per-state watermark
// (lastTsSeen - maxLate) reaches its end; late prints for a closed-and-absent
// window are dropped, but a window that is still open keeps admitting late
// prints until the watermark closes it.
//
// Ingest and Drain run under mutual exclusion; the aggregator performs no I/O.
type Aggregator struct {
	mu        sync.Mutex
	intervals []int64 // normalised: positive, deduplicated, ascending
	maxLate   int64
	states    map[stateKey]*intervalState
}

// New creates an Aggregator. Intervals are coerced to positive values,
// deduplicated, and sorted ascending; maxLateMs is floored at zero.
func New(intervalsMS []int64, maxLateMS int64) *Aggregator {
	seen := make(map[int64]bool, len(intervalsMS))
	norm := make([]int64, 0, len(intervalsMS))
	for _, iv := range intervalsMS {
		if iv <= 0 || seen[iv] {
			continue
		}
		seen[iv] = true
		norm = append(norm, iv)
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i] < norm[j] })

	if maxLateMS < 0 {
		maxLateMS = 0
	}
	return &Aggregator{
		intervals: norm,
		maxLate:   maxLateMS,
		states:    make(map[stateKey]*intervalState),
	}
}

// Intervals returns the normalised interval set.
func (a *Aggregator) Intervals() []int64 {
	out := make([]int64, len(a.intervals))
	copy(out, a.intervals)
	return out
}

// Ingest folds one print into every configured interval and returns the
// candles whose windows the advancing watermark closed, in window-start order
// per interval, plus the count of prints dropped as late.
func (a *Aggregator) Ingest(p model.Print) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res Result
	for _, interval := range a.intervals {
		key := stateKey{symbol: p.UnderlyingID, interval: interval}
		st, ok := a.states[key]
		if !ok {
			st = &intervalState{builders: make(map[int64]*windowBuilder)}
			a.states[key] = st
		}

		if p.TS > st.lastTS {
			st.lastTS = p.TS
		}
		watermark := st.lastTS - a.maxLate
		if watermark < 0 {
			watermark = 0
		}

		start := p.TS - p.TS%interval
		b, open := st.builders[start]
		if !open && start+interval <= watermark {
			// The window already closed and was emitted (or never opened);
			// it never re-opens.
			res.DroppedLate++
		} else if open {
			b.fold(p)
		} else {
			st.builders[start] = seed(p, interval, start)
		}

		res.Emitted = append(res.Emitted, closeWindows(st, interval, watermark)...)
	}
	return res
}

// Drain emits every remaining open window across all states, bypassing the
// watermark, and clears all state. A second Drain returns nothing.
func (a *Aggregator) Drain() []model.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]stateKey, 0, len(a.states))
	for k := range a.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return keys[i].interval < keys[j].interval
	})

	var out []model.Candle
	for _, k := range keys {
		st := a.states[k]
		starts := make([]int64, 0, len(st.builders))
		for s := range st.builders {
			starts = append(starts, s)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
		for _, s := range starts {
			out = append(out, st.builders[s].candle())
		}
	}
	a.states = make(map[stateKey]*intervalState)
	return out
}

// closeWindows removes and materialises every builder the watermark has
// passed, in window-start order.
func closeWindows(st *intervalState, interval, watermark int64) []model.Candle {
	var starts []int64
	for s := range st.builders {
		if s+interval <= watermark {
			starts = append(starts, s)
		}
	}
	if len(starts) == 0 {
		return nil
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	out := make([]model.Candle, 0, len(starts))
	for _, s := range starts {
		out = append(out, st.builders[s].candle())
		delete(st.builders, s)
	}
	return out
}

// seed opens a window with its first admitted print.
func seed(p model.Print, interval, start int64) *windowBuilder {
	return &windowBuilder{
		symbol:   p.UnderlyingID,
		interval: interval,
		start:    start,
		open:     p.Price,
		high:     p.Price,
		low:      p.Price,
		close_:   p.Price,
		volume:   p.Size,
		trades:   1,
		openTS:   p.TS,
		openSeq:  p.Seq,
		closeTS:  p.TS,
		closeSeq: p.Seq,
		sourceTS: p.SourceTS,
		ingestTS: p.IngestTS,
	}
}

// fold admits one more print into an open window. Open/close identity is the
// min/max of (ts, seq); ties in ts break by seq.
func (b *windowBuilder) fold(p model.Print) {
	b.volume += p.Size
	b.trades++
	if p.Price > b.high {
		b.high = p.Price
	}
	if p.Price < b.low {
		b.low = p.Price
	}
	if p.TS < b.openTS || (p.TS == b.openTS && p.Seq < b.openSeq) {
		b.open = p.Price
		b.openTS = p.TS
		b.openSeq = p.Seq
		b.sourceTS = p.SourceTS
	}
	if p.TS > b.closeTS || (p.TS == b.closeTS && p.Seq > b.closeSeq) {
		b.close_ = p.Price
		b.closeTS = p.TS
		b.closeSeq = p.Seq
		b.ingestTS = p.IngestTS
	}
}

// candle materialises the builder as an immutable Candle.
func (b *windowBuilder) candle() model.Candle {
	return model.Candle{
		UnderlyingID: b.symbol,
		IntervalMS:   b.interval,
		TS:           b.start,
		Open:         b.open,
		High:         b.high,
		Low:          b.low,
		Close:        b.close_,
		Volume:       b.volume,
		TradeCount:   b.trades,
		SourceTS:     b.sourceTS,
		IngestTS:     b.ingestTS,
		Seq:          b.closeSeq,
		TraceID:      model.CandleTraceID(b.symbol, b.interval, b.start),
	}
}
