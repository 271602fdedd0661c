package kline

import (
	"testing"
	"time"
)

func TestFixedPoint(t *testing.T) {
	if got := FromFloat(3052.18); got != 305218000000 {
		t.Fatalf("FromFloat=%d", got)
	}
	if got := FromFloat(0.1); got != 10000000 {
		t.Fatalf("FromFloat(0.1)=%d", got)
	}
	got, ok := ParseFixed("1.123456789")
	if !ok || got != Scale+12345678 {
		t.Fatalf("ParseFixed truncation: %d %v", got, ok)
	}
	if _, ok := ParseFixed("abc"); ok {
		t.Fatalf("ParseFixed accepted garbage")
	}
	if s := FormatFixed(31000000); s != "0.31000000" {
		t.Fatalf("FormatFixed=%q", s)
	}
	if s := FormatFixed(-Scale); s != "-1.00000000" {
		t.Fatalf("FormatFixed negative=%q", s)
	}
}

func TestBucketStartMs(t *testing.T) {
	hour := time.Hour.Milliseconds()
	off := (30 * time.Minute).Milliseconds()
	cases := []struct {
		ts, want int64
	}{
		{0, -off},
		{(31 * time.Minute).Milliseconds(), off},
		{-1, -off},
	}
	for _, c := range cases {
		if got := bucketStartMs(c.ts, hour, off); got != c.want {
			t.Fatalf("bucketStartMs(%d)=%d want %d", c.ts, got, c.want)
		}
	}
	if got := bucketStartMs(-1, 1000, 0); got != -1000 {
		t.Fatalf("negative ts bucket=%d", got)
	}
}

func collect() (*[]Bar, func(Bar)) {
	var out []Bar
	return &out, func(b Bar) { out = append(out, b) }
}

func TestTradeAggSameBucket(t *testing.T) {
	bars, emit := collect()
	agg := NewTradeAgg(time.Second, 0, emit)

	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 100, Qty: 1, TsMs: 1500})
	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 101, Qty: 2, TsMs: 1999})
	if len(*bars) != 0 {
		t.Fatalf("emitted before the bucket closed: %v", *bars)
	}

	agg.Flush()
	if len(*bars) != 1 {
		t.Fatalf("flush emitted %d bars", len(*bars))
	}
	b := (*bars)[0]
	if b.StartMs != 1000 || b.EndMs != 2000 || b.TF != "1s" {
		t.Fatalf("bar=%v", b)
	}
	if b.Open != 100*Scale || b.High != 101*Scale || b.Low != 100*Scale || b.Close != 101*Scale {
		t.Fatalf("OHLC=%v", b)
	}
	if b.Volume != 3 || b.Count != 2 {
		t.Fatalf("volume=%d count=%d", b.Volume, b.Count)
	}
}

func TestTradeAggNewBucketEmitsPrevious(t *testing.T) {
	bars, emit := collect()
	agg := NewTradeAgg(time.Second, 0, emit)

	agg.OfferTrade(Trade{Ticker: "MSFT", Price: 10, Qty: 1, TsMs: 1500})
	agg.OfferTrade(Trade{Ticker: "MSFT", Price: 11, Qty: 1, TsMs: 2500})
	if len(*bars) != 1 || (*bars)[0].StartMs != 1000 {
		t.Fatalf("bars=%v", *bars)
	}
	agg.Flush()
	if len(*bars) != 2 || (*bars)[1].StartMs != 2000 {
		t.Fatalf("bars=%v", *bars)
	}
}

func TestTradeAggDropsLateTrade(t *testing.T) {
	bars, emit := collect()
	agg := NewTradeAgg(time.Second, 0, emit)

	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 100, Qty: 1, TsMs: 2500})
	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 1, Qty: 1, TsMs: 1500})
	agg.Flush()

	if len(*bars) != 1 || (*bars)[0].Low != 100*Scale {
		t.Fatalf("late trade leaked: %v", *bars)
	}
	if agg.LateDrops() != 1 {
		t.Fatalf("late drops=%d", agg.LateDrops())
	}
}

func TestTradeAggReorderWindow(t *testing.T) {
	bars, emit := collect()
	agg := NewTradeAggReorder(time.Second, 0, 2*time.Second, emit)

	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 100, Qty: 1, TsMs: 2500})
	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 90, Qty: 1, TsMs: 1500}) // within the window
	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 95, Qty: 1, TsMs: 4100}) // watermark 2100
	if len(*bars) != 1 || (*bars)[0].StartMs != 1000 || (*bars)[0].Open != 90*Scale {
		t.Fatalf("bars=%v", *bars)
	}
	agg.OfferTrade(Trade{Ticker: "AAPL", Price: 1, Qty: 1, TsMs: 1200}) // bucket already out
	agg.Flush()

	if len(*bars) != 3 {
		t.Fatalf("bars=%v", *bars)
	}
	for i := 1; i < len(*bars); i++ {
		if (*bars)[i].StartMs <= (*bars)[i-1].StartMs {
			t.Fatalf("bars out of order: %v", *bars)
		}
	}
	if agg.LateDrops() != 1 {
		t.Fatalf("late drops=%d", agg.LateDrops())
	}
}

func TestRollupMinuteFromSeconds(t *testing.T) {
	bars, emit := collect()
	agg := NewRollupAgg(time.Minute, 0, emit)

	child := func(start, o, h, l, c, v int64) Bar {
		return Bar{Ticker: "AAPL", TF: "1s", StartMs: start, EndMs: start + 1000,
			Open: o * Scale, High: h * Scale, Low: l * Scale, Close: c * Scale, Volume: v, Count: 1}
	}
	agg.OfferBar(child(0, 100, 101, 99, 100, 1))
	agg.OfferBar(child(1000, 100, 105, 98, 104, 2))
	if len(*bars) != 0 {
		t.Fatalf("emitted early: %v", *bars)
	}
	agg.OfferBar(child(60000, 200, 200, 200, 200, 1))
	if len(*bars) != 1 {
		t.Fatalf("bars=%v", *bars)
	}
	b := (*bars)[0]
	if b.TF != "1m" || b.StartMs != 0 || b.EndMs != 60000 {
		t.Fatalf("range=%v", b)
	}
	if b.Open != 100*Scale || b.Close != 104*Scale || b.High != 105*Scale || b.Low != 98*Scale {
		t.Fatalf("OHLC=%v", b)
	}
	if b.Volume != 3 || b.Count != 2 {
		t.Fatalf("volume=%d count=%d", b.Volume, b.Count)
	}

	agg.OfferBar(child(30000, 1, 1, 1, 1, 1)) // emitted minute, ignored
	agg.Flush()
	if len(*bars) != 2 || (*bars)[1].StartMs != 60000 || (*bars)[1].Volume != 1 {
		t.Fatalf("bars=%v", *bars)
	}
}

func TestRollupFillsGaps(t *testing.T) {
	bars, emit := collect()
	agg := NewRollupAggFill(time.Minute, 0, true, emit)

	agg.OfferBar(Bar{Ticker: "AAPL", StartMs: 500, Open: 7, High: 9, Low: 6, Close: 8, Volume: 4})
	agg.OfferBar(Bar{Ticker: "AAPL", StartMs: 180_500, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1})
	agg.Flush()

	if len(*bars) != 4 {
		t.Fatalf("want 4 bars, got %v", *bars)
	}
	for i, gap := range (*bars)[1:3] {
		want := int64(60_000 * (i + 1))
		if gap.StartMs != want || gap.Open != 8 || gap.Close != 8 || gap.Volume != 0 || gap.Count != 0 {
			t.Fatalf("gap bar %d=%v", i, gap)
		}
	}
	if (*bars)[3].StartMs != 180_000 {
		t.Fatalf("last bar=%v", (*bars)[3])
	}
}
