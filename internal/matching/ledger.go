package matching

import (
	"fmt"
	"time"
)

// Trade is one match event. Buyer and seller follow each order's side, not
// which order was incoming.
type Trade struct {
	Seq         uint64    `json:"seq"`
	Ticker      string    `json:"ticker"`
	Buyer       string    `json:"buyer"`
	Seller      string    `json:"seller"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Price       float64   `json:"price"`
	Qty         int64     `json:"qty"`
	Time        time.Time `json:"time"`
}

func (t Trade) String() string {
	return fmt.Sprintf("%s bought %d shares from %s at $%.2f each.", t.Buyer, t.Qty, t.Seller, t.Price)
}

// Ledger is the append-only trade history of one instrument.
type Ledger struct {
	ticker string
	trades []Trade
}

func NewLedger(ticker string) *Ledger {
	return &Ledger{ticker: ticker, trades: make([]Trade, 0, 256)}
}

// Append stamps the trade with the next ledger sequence and stores it.
func (l *Ledger) Append(t Trade) Trade {
	t.Seq = uint64(len(l.trades)) + 1
	t.Ticker = l.ticker
	l.trades = append(l.trades, t)
	return t
}

func (l *Ledger) Len() int { return len(l.trades) }

func (l *Ledger) Last() (Trade, bool) {
	if len(l.trades) == 0 {
		return Trade{}, false
	}
	return l.trades[len(l.trades)-1], true
}

// LastPrice returns the price of the latest trade, or (0, false) before the
// first trade.
func (l *Ledger) LastPrice() (float64, bool) {
	t, ok := l.Last()
	return t.Price, ok
}

// Trades returns a copy of the history, oldest first.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Volume is the total quantity traded.
func (l *Ledger) Volume() int64 {
	var v int64
	for i := range l.trades {
		v += l.trades[i].Qty
	}
	return v
}
