package matching

import "fmt"

// Level aggregates the open quantity resting at one limit price.
type Level struct {
	Price  float64
	Qty    int64
	Orders int
}

// Book is the order book of one instrument: a limit priority structure and a
// market FIFO per side. Only unfilled or partially filled orders rest here;
// an order leaves its queue the moment it is fully filled.
type Book struct {
	ticker string

	bids *limitSide
	asks *limitSide

	buys  *orderQueue // resting market buys
	sells *orderQueue // resting market sells

	seq uint64
}

func NewBook(ticker string) *Book {
	return &Book{
		ticker: ticker,
		bids:   newLimitSide(Buy),
		asks:   newLimitSide(Sell),
		buys:   &orderQueue{},
		sells:  &orderQueue{},
	}
}

func (b *Book) Ticker() string { return b.ticker }

// BestBid returns the head of the bid queue, nil when empty.
func (b *Book) BestBid() *Order { return b.bids.peek() }

// BestAsk returns the head of the ask queue, nil when empty.
func (b *Book) BestAsk() *Order { return b.asks.peek() }

func (b *Book) limits(side Side) *limitSide {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) markets(side Side) *orderQueue {
	if side == Buy {
		return b.buys
	}
	return b.sells
}

func (b *Book) checkOwn(o *Order) {
	if o.Ticker != b.ticker {
		panic(fmt.Sprintf("matching: order %d for %q routed to book %q", o.ID, o.Ticker, b.ticker))
	}
	if !o.Side.Valid() {
		panic(fmt.Sprintf("matching: order %d has invalid side %d", o.ID, o.Side))
	}
}

// InsertLimit rests a limit order on its own side, O(log n) in the number of
// distinct prices.
func (b *Book) InsertLimit(o *Order) {
	b.checkOwn(o)
	if o.Kind != Limit {
		panic(fmt.Sprintf("matching: order %d is not a limit order", o.ID))
	}
	b.seq++
	o.Seq = b.seq
	b.limits(o.Side).push(o)
}

// InsertMarket appends a market order to its side's FIFO, O(1).
func (b *Book) InsertMarket(o *Order) {
	b.checkOwn(o)
	if o.Kind != Market {
		panic(fmt.Sprintf("matching: order %d is not a market order", o.ID))
	}
	b.seq++
	o.Seq = b.seq
	b.markets(o.Side).pushBack(o)
}

func (b *Book) insert(o *Order) {
	if o.Kind == Market {
		b.InsertMarket(o)
		return
	}
	b.InsertLimit(o)
}

// PeekOpposite returns the resting order the incoming order would match
// next. A resting market order outranks a resting limit order, but only an
// incoming limit order may take it: market never meets market.
func (b *Book) PeekOpposite(incoming *Order) *Order {
	opp := incoming.Side.Opposite()
	if incoming.Kind == Limit {
		if o := b.markets(opp).front(); o != nil {
			return o
		}
	}
	return b.limits(opp).peek()
}

// PopOpposite removes and returns the order PeekOpposite would return.
func (b *Book) PopOpposite(incoming *Order) *Order {
	opp := incoming.Side.Opposite()
	if incoming.Kind == Limit && !b.markets(opp).empty() {
		return b.markets(opp).popFront()
	}
	return b.limits(opp).pop()
}

func (b *Book) hasMarket(side Side) bool { return !b.markets(side).empty() }

func (b *Book) BidLen() int        { return b.bids.len() }
func (b *Book) AskLen() int        { return b.asks.len() }
func (b *Book) MarketBuyLen() int  { return b.buys.size }
func (b *Book) MarketSellLen() int { return b.sells.size }

// Bids returns resting bids in match priority.
func (b *Book) Bids() []*Order { return b.bids.orders() }

// Asks returns resting asks in match priority.
func (b *Book) Asks() []*Order { return b.asks.orders() }

// MarketOrders returns resting market orders of one side in arrival order.
func (b *Book) MarketOrders(side Side) []*Order {
	q := b.markets(side)
	out := make([]*Order, 0, q.size)
	q.each(func(o *Order) { out = append(out, o) })
	return out
}

// Depth returns aggregated bid and ask levels, best first.
func (b *Book) Depth() (bids, asks []Level) {
	return b.bids.depth(), b.asks.depth()
}
