package matching

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Random order flow over one instrument; after every submission the book and
// the ledger must agree with the orders' fill counters.
func TestProperty_FillsAgreeWithLedger(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := newRecordingSettlement()
		x := NewExchange(s, nil)
		if err := x.List("AAPL"); err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(1, 80).Draw(t, "n")
		var orders []*Order
		for i := 0; i < n; i++ {
			owner := fmt.Sprintf("u%d", rapid.IntRange(0, 4).Draw(t, "owner"))
			side := Side(rapid.IntRange(1, 2).Draw(t, "side"))
			qty := rapid.Int64Range(1, 50).Draw(t, "qty")

			var (
				o   *Order
				err error
			)
			if rapid.IntRange(0, 9).Draw(t, "kind") == 0 {
				o, _, err = x.SubmitMarket(owner, "AAPL", side, qty)
			} else {
				price := float64(rapid.IntRange(1, 20).Draw(t, "price"))
				o, _, err = x.SubmitLimit(owner, "AAPL", side, price, qty)
			}
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			orders = append(orders, o)
			checkBook(t, x.Book("AAPL"))
		}

		byOrder := map[uint64]int64{}
		var volume int64
		for _, tr := range x.Trades("AAPL") {
			byOrder[tr.BuyOrderID] += tr.Qty
			byOrder[tr.SellOrderID] += tr.Qty
			volume += tr.Qty
		}

		var buys, sells int64
		for _, o := range orders {
			if f := o.Filled(); f < 0 || f > o.Qty {
				t.Fatalf("order %d filled=%d qty=%d", o.ID, f, o.Qty)
			}
			if byOrder[o.ID] != o.Filled() {
				t.Fatalf("order %d ledger=%d filled=%d", o.ID, byOrder[o.ID], o.Filled())
			}
			if o.Side == Buy {
				buys += o.Filled()
			} else {
				sells += o.Filled()
			}
		}
		if buys != volume || sells != volume {
			t.Fatalf("buys=%d sells=%d volume=%d", buys, sells, volume)
		}

		var cash float64
		var shares int64
		for owner := range s.cash {
			cash += s.cash[owner]
			shares += s.shares[owner]
		}
		if cash != 0 || shares != 0 {
			t.Fatalf("settlement leaked cash=%v shares=%d", cash, shares)
		}
	})
}

func checkBook(t *rapid.T, b *Book) {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid != nil && ask != nil && bid.Price >= ask.Price {
		t.Fatalf("crossed book: bid %.2f ask %.2f", bid.Price, ask.Price)
	}
	if b.MarketBuyLen() > 0 && ask != nil {
		t.Fatalf("asks rest while market buys wait")
	}
	if b.MarketSellLen() > 0 && bid != nil {
		t.Fatalf("bids rest while market sells wait")
	}
	for _, side := range [][]*Order{b.Bids(), b.Asks(), b.MarketOrders(Buy), b.MarketOrders(Sell)} {
		for _, o := range side {
			if o.IsFilled() {
				t.Fatalf("filled order %d still resting", o.ID)
			}
		}
	}
}
