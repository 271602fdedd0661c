package matching

import (
	"fmt"
	"time"
)

// Matcher resolves incoming orders against one instrument's book. It is not
// safe for concurrent use; callers serialise access per instrument.
type Matcher struct {
	book   *Book
	ledger *Ledger
	settle Settlement
	now    func() time.Time
}

func NewMatcher(book *Book, ledger *Ledger, settle Settlement) *Matcher {
	if settle == nil {
		settle = NopSettlement{}
	}
	return &Matcher{book: book, ledger: ledger, settle: settle, now: time.Now}
}

// NewInstrument builds a matcher with a fresh book and ledger.
func NewInstrument(ticker string, settle Settlement) *Matcher {
	return NewMatcher(NewBook(ticker), NewLedger(ticker), settle)
}

func (m *Matcher) Book() *Book     { return m.book }
func (m *Matcher) Ledger() *Ledger { return m.ledger }
func (m *Matcher) Quote() Quote    { return QuoteOf(m.book, m.ledger) }

// SetClock overrides the trade timestamp source.
func (m *Matcher) SetClock(now func() time.Time) { m.now = now }

// Resolve matches o against the opposite side until it is filled or no
// counterparty is left, then rests the remainder on its own side. It returns
// the trades generated, in order. A filled order is returned untouched.
func (m *Matcher) Resolve(o *Order) []Trade {
	if o.Ticker != m.book.ticker {
		panic(fmt.Sprintf("matching: order %d for %q resolved on %q", o.ID, o.Ticker, m.book.ticker))
	}
	var trades []Trade
	for !o.IsFilled() {
		opp := o.Side.Opposite()

		// A limit order only crosses limit liquidity at its price or better.
		// A resting opposite market order takes any limit price.
		if o.Kind == Limit && !m.book.hasMarket(opp) {
			if best := m.book.limits(opp).peek(); best != nil && !crosses(o, best) {
				m.book.InsertLimit(o)
				return trades
			}
		}

		cp := m.book.PeekOpposite(o)
		if cp == nil {
			m.book.insert(o)
			return trades
		}
		if cp.Kind == Market && o.Kind == Market {
			panic(fmt.Sprintf("matching: market order %d matched against market order %d", o.ID, cp.ID))
		}
		if cp.Side == o.Side {
			panic(fmt.Sprintf("matching: order %d matched against same-side order %d", o.ID, cp.ID))
		}

		price := cp.Price
		if cp.Kind == Market {
			price = o.Price
		}
		qty := cp.Fill(o.Remaining())
		o.Fill(qty)

		buy, sell := o, cp
		if o.Side == Sell {
			buy, sell = cp, o
		}
		t := m.ledger.Append(Trade{
			Buyer:       buy.Owner,
			Seller:      sell.Owner,
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Price:       price,
			Qty:         qty,
			Time:        m.now(),
		})
		m.settle.OnBuyFill(buy.Owner, m.book.ticker, qty, price)
		m.settle.OnSellFill(sell.Owner, m.book.ticker, qty, price)
		trades = append(trades, t)

		if cp.IsFilled() {
			if popped := m.book.PopOpposite(o); popped != cp {
				panic(fmt.Sprintf("matching: popped order %d, expected %d", popped.ID, cp.ID))
			}
		}
	}
	return trades
}

// crosses reports whether a limit order accepts the resting limit's price.
func crosses(o, resting *Order) bool {
	if o.Side == Buy {
		return resting.Price <= o.Price
	}
	return resting.Price >= o.Price
}
