package kline

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point factor of bar prices: 8 decimal places. Bars are
// compared and summed many times, so prices are kept as integers.
const Scale = int64(100_000_000)

// Trade is the aggregator input, one execution of one instrument.
type Trade struct {
	Ticker string
	Price  float64
	Qty    int64
	TsMs   int64
}

// Bar is one OHLCV candle covering [StartMs, EndMs). Prices are fixed point
// (Scale), Volume is in shares. Count is the number of trades for 1s bars and
// the number of child bars for rolled-up ones.
type Bar struct {
	Ticker   string        `json:"ticker"`
	TF       string        `json:"tf"`
	Interval time.Duration `json:"-"`
	StartMs  int64         `json:"start_ms"`
	EndMs    int64         `json:"end_ms"`

	Open  int64 `json:"open"`
	High  int64 `json:"high"`
	Low   int64 `json:"low"`
	Close int64 `json:"close"`

	Volume int64 `json:"volume"`
	Count  int64 `json:"count"`
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %s [%d,%d) O=%s H=%s L=%s C=%s V=%d n=%d",
		b.Ticker, b.TF, b.StartMs, b.EndMs,
		FormatFixed(b.Open), FormatFixed(b.High), FormatFixed(b.Low), FormatFixed(b.Close),
		b.Volume, b.Count,
	)
}

// TF names an interval the way topics and storage spell it.
func TF(d time.Duration) string {
	switch d {
	case time.Second:
		return "1s"
	case time.Minute:
		return "1m"
	case time.Hour:
		return "1h"
	case 24 * time.Hour:
		return "1d"
	default:
		return d.String()
	}
}

// TradeAgg builds bars from trades, one open set of bars per ticker. A bar
// is emitted once the ticker's watermark (newest trade time minus the reorder
// window) passes its end. Trades for a bar that can no longer change are
// dropped and counted.
type TradeAgg struct {
	intervalMs      int64
	offsetMs        int64 // bucket alignment, 0 for UTC
	reorderWindowMs int64
	tf              string

	tickers map[string]*tickerState
	emit    func(Bar)

	lateDrops int64
}

type tickerState struct {
	latestTsMs int64
	bars       map[int64]*Bar // by bucket start
}

func NewTradeAgg(interval, tzOffset time.Duration, emit func(Bar)) *TradeAgg {
	return NewTradeAggReorder(interval, tzOffset, 0, emit)
}

func NewTradeAggReorder(interval, tzOffset, reorderWindow time.Duration, emit func(Bar)) *TradeAgg {
	return &TradeAgg{
		intervalMs:      interval.Milliseconds(),
		offsetMs:        tzOffset.Milliseconds(),
		reorderWindowMs: reorderWindow.Milliseconds(),
		tf:              TF(interval),
		tickers:         make(map[string]*tickerState, 16),
		emit:            emit,
	}
}

func (a *TradeAgg) LateDrops() int64 { return a.lateDrops }

func (a *TradeAgg) OfferTrade(t Trade) {
	price := FromFloat(t.Price)

	st := a.tickers[t.Ticker]
	if st == nil {
		st = &tickerState{bars: make(map[int64]*Bar, 4)}
		a.tickers[t.Ticker] = st
	}
	if t.TsMs > st.latestTsMs {
		st.latestTsMs = t.TsMs
	}
	watermark := st.latestTsMs - a.reorderWindowMs

	bs := bucketStartMs(t.TsMs, a.intervalMs, a.offsetMs)
	be := bs + a.intervalMs
	b := st.bars[bs]
	switch {
	case b == nil && be <= watermark:
		a.lateDrops++
	case b == nil:
		st.bars[bs] = &Bar{
			Ticker:   t.Ticker,
			TF:       a.tf,
			Interval: time.Duration(a.intervalMs) * time.Millisecond,
			StartMs:  bs,
			EndMs:    be,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   t.Qty,
			Count:    1,
		}
	default:
		b.High = max(b.High, price)
		b.Low = min(b.Low, price)
		b.Close = price
		b.Volume += t.Qty
		b.Count++
	}
	a.emitReady(st, watermark)
}

// emitReady emits, oldest first, every bar that ends at or before watermark.
func (a *TradeAgg) emitReady(st *tickerState, watermarkMs int64) {
	var ready []int64
	for start, b := range st.bars {
		if b.EndMs <= watermarkMs {
			ready = append(ready, start)
		}
	}
	a.emitSorted(st, ready)
}

func (a *TradeAgg) emitSorted(st *tickerState, starts []int64) {
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	for _, start := range starts {
		a.emit(*st.bars[start])
		delete(st.bars, start)
	}
}

// Flush emits every open bar, for shutdown and tests.
func (a *TradeAgg) Flush() {
	for _, st := range a.tickers {
		starts := make([]int64, 0, len(st.bars))
		for start := range st.bars {
			starts = append(starts, start)
		}
		a.emitSorted(st, starts)
	}
}

// RollupAgg merges child bars into a longer interval: open of the first
// child, close of the last, extreme high and low, summed volume. With gap
// filling, buckets skipped between two children are emitted as flat bars at
// the previous close with zero volume.
type RollupAgg struct {
	intervalMs int64
	offsetMs   int64
	tf         string
	cur        map[string]*Bar
	emit       func(Bar)
	fillGaps   bool
}

func NewRollupAgg(interval, tzOffset time.Duration, emit func(Bar)) *RollupAgg {
	return NewRollupAggFill(interval, tzOffset, false, emit)
}

func NewRollupAggFill(interval, tzOffset time.Duration, fillGaps bool, emit func(Bar)) *RollupAgg {
	return &RollupAgg{
		intervalMs: interval.Milliseconds(),
		offsetMs:   tzOffset.Milliseconds(),
		tf:         TF(interval),
		cur:        make(map[string]*Bar, 16),
		emit:       emit,
		fillGaps:   fillGaps,
	}
}

func (a *RollupAgg) open(child Bar, bs int64) Bar {
	return Bar{
		Ticker:   child.Ticker,
		TF:       a.tf,
		Interval: time.Duration(a.intervalMs) * time.Millisecond,
		StartMs:  bs,
		EndMs:    bs + a.intervalMs,
		Open:     child.Open,
		High:     child.High,
		Low:      child.Low,
		Close:    child.Close,
		Volume:   child.Volume,
		Count:    1,
	}
}

func (a *RollupAgg) OfferBar(child Bar) {
	bs := bucketStartMs(child.StartMs, a.intervalMs, a.offsetMs)

	cb := a.cur[child.Ticker]
	if cb == nil {
		b := a.open(child, bs)
		a.cur[child.Ticker] = &b
		return
	}

	switch {
	case bs > cb.StartMs:
		a.emit(*cb)
		if a.fillGaps {
			for next := cb.EndMs; next < bs; next += a.intervalMs {
				a.emit(Bar{
					Ticker:   child.Ticker,
					TF:       a.tf,
					Interval: cb.Interval,
					StartMs:  next,
					EndMs:    next + a.intervalMs,
					Open:     cb.Close,
					High:     cb.Close,
					Low:      cb.Close,
					Close:    cb.Close,
				})
			}
		}
		*cb = a.open(child, bs)
	case bs < cb.StartMs:
		// the bucket was already emitted
		return
	default:
		cb.High = max(cb.High, child.High)
		cb.Low = min(cb.Low, child.Low)
		cb.Close = child.Close
		cb.Volume += child.Volume
		cb.Count++
	}
}

func (a *RollupAgg) Flush() {
	for ticker, cb := range a.cur {
		a.emit(*cb)
		delete(a.cur, ticker)
	}
}

// bucketStartMs aligns ts to its interval bucket, shifted by offsetMs so that
// for example daily bars can start at local midnight.
func bucketStartMs(tsMs, intervalMs, offsetMs int64) int64 {
	x := tsMs + offsetMs
	start := (x / intervalMs) * intervalMs
	if x < 0 && x%intervalMs != 0 {
		start -= intervalMs
	}
	return start - offsetMs
}

// FromFloat converts a price to fixed point, rounding to 8 decimals.
func FromFloat(f float64) int64 {
	return decimal.NewFromFloat(f).Shift(8).Round(0).IntPart()
}

// ParseFixed parses a decimal string, truncating past 8 decimals.
func ParseFixed(s string) (int64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.Shift(8).Truncate(0).IntPart(), true
}

// FormatFixed renders a fixed-point value with all 8 decimals.
func FormatFixed(v int64) string {
	return decimal.New(v, -8).StringFixed(8)
}

// Decimal returns v as a decimal for display.
func Decimal(v int64) decimal.Decimal { return decimal.New(v, -8) }
