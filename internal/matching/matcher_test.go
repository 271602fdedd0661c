package matching

import (
	"math"
	"testing"
	"time"
)

func newAAPL(t *testing.T) *Exchange {
	t.Helper()
	x := NewExchange(nil, nil)
	if err := x.List("AAPL"); err != nil {
		t.Fatalf("list: %v", err)
	}
	return x
}

func mustLimit(t *testing.T, x *Exchange, owner string, side Side, price float64, qty int64) (*Order, []Trade) {
	t.Helper()
	o, trades, err := x.SubmitLimit(owner, "AAPL", side, price, qty)
	if err != nil {
		t.Fatalf("submit limit: %v", err)
	}
	return o, trades
}

func mustMarket(t *testing.T, x *Exchange, owner string, side Side, qty int64) (*Order, []Trade) {
	t.Helper()
	o, trades, err := x.SubmitMarket(owner, "AAPL", side, qty)
	if err != nil {
		t.Fatalf("submit market: %v", err)
	}
	return o, trades
}

func TestFullCross(t *testing.T) {
	x := newAAPL(t)
	buy, _ := mustLimit(t, x, "alice", Buy, 10, 10)
	sell, trades := mustLimit(t, x, "bob", Sell, 10, 10)

	if len(trades) != 1 {
		t.Fatalf("trades=%d want 1", len(trades))
	}
	tr := trades[0]
	if tr.Price != 10 || tr.Qty != 10 {
		t.Fatalf("trade=%+v", tr)
	}
	if tr.Buyer != "alice" || tr.Seller != "bob" {
		t.Fatalf("buyer=%s seller=%s", tr.Buyer, tr.Seller)
	}
	if tr.BuyOrderID != buy.ID || tr.SellOrderID != sell.ID {
		t.Fatalf("order ids %d/%d", tr.BuyOrderID, tr.SellOrderID)
	}
	if !buy.IsFilled() || !sell.IsFilled() {
		t.Fatalf("buy=%s sell=%s", buy, sell)
	}
	b := x.Book("AAPL")
	if b.BidLen() != 0 || b.AskLen() != 0 {
		t.Fatalf("book not empty: bids=%d asks=%d", b.BidLen(), b.AskLen())
	}
	if p, ok := x.LastPrice("AAPL"); !ok || p != 10 {
		t.Fatalf("last=%v ok=%v", p, ok)
	}
}

func TestPartialFillStaysAtHead(t *testing.T) {
	x := newAAPL(t)
	buy, _ := mustLimit(t, x, "alice", Buy, 10, 10)
	_, trades := mustLimit(t, x, "bob", Sell, 10, 5)

	if len(trades) != 1 || trades[0].Qty != 5 || trades[0].Price != 10 {
		t.Fatalf("trades=%+v", trades)
	}
	if got := x.BestBid("AAPL"); got != buy {
		t.Fatalf("best bid=%v want %v", got, buy)
	}
	if buy.Filled() != 5 || buy.Status() != Partial {
		t.Fatalf("buy=%s", buy)
	}
	if x.BestAsk("AAPL") != nil {
		t.Fatalf("ask side should be empty")
	}
}

func TestMarketSellSweepsBestBidsFirst(t *testing.T) {
	x := newAAPL(t)
	b10, _ := mustLimit(t, x, "alice", Buy, 10, 10)
	b11, _ := mustLimit(t, x, "carol", Buy, 11, 5)
	sell, trades := mustMarket(t, x, "bob", Sell, 6)

	if len(trades) != 2 {
		t.Fatalf("trades=%d want 2", len(trades))
	}
	if trades[0].Price != 11 || trades[0].Qty != 5 || trades[0].BuyOrderID != b11.ID {
		t.Fatalf("first trade=%+v", trades[0])
	}
	if trades[1].Price != 10 || trades[1].Qty != 1 || trades[1].BuyOrderID != b10.ID {
		t.Fatalf("second trade=%+v", trades[1])
	}
	if !sell.IsFilled() || !b11.IsFilled() {
		t.Fatalf("sell=%s b11=%s", sell, b11)
	}
	b := x.Book("AAPL")
	if b.BidLen() != 1 || b.BestBid() != b10 || b10.Filled() != 1 {
		t.Fatalf("bids=%d head=%v", b.BidLen(), b.BestBid())
	}
}

func TestUnmatchedMarketOrderRests(t *testing.T) {
	x := newAAPL(t)
	o, trades := mustMarket(t, x, "alice", Buy, 10)

	if len(trades) != 0 {
		t.Fatalf("unexpected trades %+v", trades)
	}
	if o.Filled() != 0 || o.Status() != Pending {
		t.Fatalf("order=%s", o)
	}
	b := x.Book("AAPL")
	if b.MarketBuyLen() != 1 || b.MarketOrders(Buy)[0] != o {
		t.Fatalf("market buys=%d", b.MarketBuyLen())
	}
}

func TestLimitCrossesAtRestingPrice(t *testing.T) {
	x := newAAPL(t)
	mustLimit(t, x, "bob", Sell, 9.5, 3)
	_, trades := mustLimit(t, x, "alice", Buy, 12, 3)
	if len(trades) != 1 || trades[0].Price != 9.5 {
		t.Fatalf("trades=%+v", trades)
	}

	mustLimit(t, x, "alice", Buy, 20, 3)
	_, trades = mustLimit(t, x, "bob", Sell, 15, 3)
	if len(trades) != 1 || trades[0].Price != 20 {
		t.Fatalf("trades=%+v", trades)
	}
}

func TestFIFOAtEqualPrice(t *testing.T) {
	x := newAAPL(t)
	first, _ := mustLimit(t, x, "first", Sell, 10, 4)
	second, _ := mustLimit(t, x, "second", Sell, 10, 4)

	_, trades := mustLimit(t, x, "buyer", Buy, 10, 6)
	if len(trades) != 2 {
		t.Fatalf("trades=%d", len(trades))
	}
	if trades[0].Seller != "first" || trades[0].Qty != 4 {
		t.Fatalf("first trade=%+v", trades[0])
	}
	if trades[1].Seller != "second" || trades[1].Qty != 2 {
		t.Fatalf("second trade=%+v", trades[1])
	}
	if !first.IsFilled() || second.Filled() != 2 {
		t.Fatalf("first=%s second=%s", first, second)
	}
}

func TestMarketNeverMeetsMarket(t *testing.T) {
	x := newAAPL(t)
	buy, _ := mustMarket(t, x, "alice", Buy, 5)
	sell, trades := mustMarket(t, x, "bob", Sell, 5)

	if len(trades) != 0 {
		t.Fatalf("market orders traded: %+v", trades)
	}
	b := x.Book("AAPL")
	if b.MarketBuyLen() != 1 || b.MarketSellLen() != 1 {
		t.Fatalf("market buys=%d sells=%d", b.MarketBuyLen(), b.MarketSellLen())
	}
	if buy.Filled() != 0 || sell.Filled() != 0 {
		t.Fatalf("buy=%s sell=%s", buy, sell)
	}
}

func TestLimitTakesRestingMarketFirst(t *testing.T) {
	x := newAAPL(t)
	mustLimit(t, x, "carol", Buy, 9, 5)
	mkt, _ := mustMarket(t, x, "alice", Sell, 4)
	// carol's bid absorbs the market sell on arrival
	if !mkt.IsFilled() {
		t.Fatalf("market sell=%s", mkt)
	}

	rest, _ := mustMarket(t, x, "alice", Buy, 10)
	if rest.IsFilled() {
		t.Fatalf("market buy should rest, got %s", rest)
	}
	mustLimit(t, x, "dave", Sell, 30, 1) // trades at its own limit against the market buy

	if rest.Filled() != 1 {
		t.Fatalf("market buy filled=%d want 1", rest.Filled())
	}
	tr := x.Trades("AAPL")
	last := tr[len(tr)-1]
	if last.Price != 30 || last.Buyer != "alice" || last.Seller != "dave" {
		t.Fatalf("last trade=%+v", last)
	}
	if x.BestAsk("AAPL") != nil {
		t.Fatalf("limit sell should not rest while market buys wait")
	}
}

func TestLimitRestsWhenNotCrossing(t *testing.T) {
	x := newAAPL(t)
	ask, _ := mustLimit(t, x, "bob", Sell, 12, 5)
	bid, trades := mustLimit(t, x, "alice", Buy, 10, 5)
	if len(trades) != 0 {
		t.Fatalf("unexpected trades %+v", trades)
	}
	q := x.Quote("AAPL")
	if q.Bid != bid || q.Ask != ask || q.HasLast {
		t.Fatalf("quote=%+v", q)
	}
	if got := q.String(); got != "AAPL BID: $10.00 ASK: $12.00 LAST: $0.00" {
		t.Fatalf("quote line %q", got)
	}
}

func TestSelfTradeAllowed(t *testing.T) {
	x := newAAPL(t)
	mustLimit(t, x, "alice", Buy, 10, 2)
	_, trades := mustLimit(t, x, "alice", Sell, 10, 2)
	if len(trades) != 1 || trades[0].Buyer != "alice" || trades[0].Seller != "alice" {
		t.Fatalf("trades=%+v", trades)
	}
}

func TestEmptyQuote(t *testing.T) {
	x := newAAPL(t)
	bid, ask := x.BestBidAsk("AAPL")
	if bid != nil || ask != nil {
		t.Fatalf("bid=%v ask=%v", bid, ask)
	}
	if p, ok := x.LastPrice("AAPL"); ok || p != 0 {
		t.Fatalf("last=%v ok=%v", p, ok)
	}
	if got := x.Quote("AAPL").String(); got != "AAPL BID: $0.00 ASK: $0.00 LAST: $0.00" {
		t.Fatalf("quote line %q", got)
	}
}

func TestResolveFilledOrderIsNoop(t *testing.T) {
	m := NewInstrument("AAPL", nil)
	o, _ := NewLimitOrder(1, "alice", "AAPL", Buy, 10, 3)
	o.Fill(3)
	if trades := m.Resolve(o); len(trades) != 0 {
		t.Fatalf("trades=%+v", trades)
	}
	if m.Book().BidLen() != 0 {
		t.Fatalf("filled order was inserted")
	}
}

func TestResolveWrongTickerPanics(t *testing.T) {
	m := NewInstrument("AAPL", nil)
	o, _ := NewLimitOrder(1, "alice", "MSFT", Buy, 10, 3)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	m.Resolve(o)
}

func TestUnlistedTickerPanics(t *testing.T) {
	x := newAAPL(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	x.Quote("MSFT")
}

func TestListTwice(t *testing.T) {
	x := newAAPL(t)
	if err := x.List("AAPL"); err == nil {
		t.Fatalf("expected error")
	}
	if got := x.Tickers(); len(got) != 1 || got[0] != "AAPL" {
		t.Fatalf("tickers=%v", got)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	x := newAAPL(t)
	for _, p := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, _, err := x.SubmitLimit("a", "AAPL", Buy, p, 1); err != ErrInvalidPrice {
			t.Fatalf("price %v: err=%v", p, err)
		}
	}
	if _, _, err := x.SubmitLimit("a", "AAPL", Buy, 1, 0); err != ErrInvalidQty {
		t.Fatalf("err=%v", err)
	}
	if _, _, err := x.SubmitMarket("a", "AAPL", Side(9), 1); err != ErrInvalidSide {
		t.Fatalf("err=%v", err)
	}
}

type recordingSettlement struct {
	cash   map[string]float64
	shares map[string]int64
}

func newRecordingSettlement() *recordingSettlement {
	return &recordingSettlement{cash: map[string]float64{}, shares: map[string]int64{}}
}

func (r *recordingSettlement) OnBuyFill(owner, _ string, qty int64, price float64) {
	r.cash[owner] -= price * float64(qty)
	r.shares[owner] += qty
}

func (r *recordingSettlement) OnSellFill(owner, _ string, qty int64, price float64) {
	r.cash[owner] += price * float64(qty)
	r.shares[owner] -= qty
}

type recordingHistory map[string][]*Order

func (h recordingHistory) Record(o *Order) { h[o.Owner] = append(h[o.Owner], o) }

func TestSettlementAndHistory(t *testing.T) {
	s := newRecordingSettlement()
	h := recordingHistory{}
	x := NewExchange(s, h)
	if err := x.List("AAPL"); err != nil {
		t.Fatal(err)
	}
	x.SubmitLimit("alice", "AAPL", Buy, 10, 10)
	x.SubmitLimit("bob", "AAPL", Sell, 10, 4)
	x.SubmitMarket("bob", "AAPL", Sell, 1)

	if s.cash["alice"] != -50 || s.shares["alice"] != 5 {
		t.Fatalf("alice cash=%v shares=%d", s.cash["alice"], s.shares["alice"])
	}
	if s.cash["bob"] != 50 || s.shares["bob"] != -5 {
		t.Fatalf("bob cash=%v shares=%d", s.cash["bob"], s.shares["bob"])
	}
	if len(h["alice"]) != 1 || len(h["bob"]) != 2 {
		t.Fatalf("history alice=%d bob=%d", len(h["alice"]), len(h["bob"]))
	}
}

func TestTradeTimestampAndString(t *testing.T) {
	m := NewInstrument("AAPL", nil)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m.SetClock(func() time.Time { return at })

	sell, _ := NewLimitOrder(1, "bob", "AAPL", Sell, 10.5, 2)
	buy, _ := NewLimitOrder(2, "alice", "AAPL", Buy, 11, 2)
	m.Resolve(sell)
	trades := m.Resolve(buy)
	if len(trades) != 1 {
		t.Fatalf("trades=%d", len(trades))
	}
	tr := trades[0]
	if !tr.Time.Equal(at) || tr.Seq != 1 || tr.Ticker != "AAPL" {
		t.Fatalf("trade=%+v", tr)
	}
	if got := tr.String(); got != "alice bought 2 shares from bob at $10.50 each." {
		t.Fatalf("trade line %q", got)
	}
}

func BenchmarkResolveSweep(b *testing.B) {
	const resting = 10_000
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		m := NewInstrument("AAPL", nil)
		for j := 0; j < resting; j++ {
			o, _ := NewLimitOrder(uint64(j+1), "maker", "AAPL", Sell, float64(100+j%50), 1)
			m.Resolve(o)
		}
		taker, _ := NewMarketOrder(resting+1, "taker", "AAPL", Buy, resting)
		b.StartTimer()

		if trades := m.Resolve(taker); len(trades) != resting {
			b.Fatalf("trades=%d", len(trades))
		}
	}
}
