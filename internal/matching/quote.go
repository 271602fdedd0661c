package matching

import "fmt"

// Quote is the current best bid, best ask and last trade of an instrument.
// Bid and Ask are the head orders themselves, nil when the side is empty.
type Quote struct {
	Ticker  string
	Bid     *Order
	Ask     *Order
	Last    float64
	HasLast bool
}

func QuoteOf(b *Book, l *Ledger) Quote {
	last, ok := l.LastPrice()
	return Quote{
		Ticker:  b.Ticker(),
		Bid:     b.BestBid(),
		Ask:     b.BestAsk(),
		Last:    last,
		HasLast: ok,
	}
}

func (q Quote) BidPrice() float64 {
	if q.Bid == nil {
		return 0
	}
	return q.Bid.Price
}

func (q Quote) AskPrice() float64 {
	if q.Ask == nil {
		return 0
	}
	return q.Ask.Price
}

// String renders absent prices as zero.
func (q Quote) String() string {
	return fmt.Sprintf("%s BID: $%.2f ASK: $%.2f LAST: $%.2f", q.Ticker, q.BidPrice(), q.AskPrice(), q.Last)
}
