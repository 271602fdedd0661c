package matching

import (
	"errors"
	"fmt"
	"sort"
)

var ErrAlreadyListed = errors.New("matching: instrument already listed")

// Exchange is the single-threaded multi-instrument core: one matcher per
// listed ticker sharing one settlement collaborator and one order history.
// Touching an unlisted ticker is a programming error and panics.
type Exchange struct {
	settle  Settlement
	history History
	books   map[string]*Matcher
	nextID  uint64
}

func NewExchange(settle Settlement, history History) *Exchange {
	if settle == nil {
		settle = NopSettlement{}
	}
	if history == nil {
		history = NopHistory{}
	}
	return &Exchange{
		settle:  settle,
		history: history,
		books:   make(map[string]*Matcher, 8),
	}
}

func (x *Exchange) List(ticker string) error {
	if _, ok := x.books[ticker]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyListed, ticker)
	}
	x.books[ticker] = NewInstrument(ticker, x.settle)
	return nil
}

func (x *Exchange) Listed(ticker string) bool {
	_, ok := x.books[ticker]
	return ok
}

// Tickers returns the listed instruments in lexical order.
func (x *Exchange) Tickers() []string {
	out := make([]string, 0, len(x.books))
	for t := range x.books {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (x *Exchange) matcher(ticker string) *Matcher {
	m, ok := x.books[ticker]
	if !ok {
		panic(fmt.Sprintf("matching: instrument %q is not listed", ticker))
	}
	return m
}

// SubmitLimit creates a limit order, records it in the owner's history and
// resolves it. The returned order reflects the fills applied so far.
func (x *Exchange) SubmitLimit(owner, ticker string, side Side, price float64, qty int64) (*Order, []Trade, error) {
	m := x.matcher(ticker)
	o, err := NewLimitOrder(x.nextID+1, owner, ticker, side, price, qty)
	if err != nil {
		return nil, nil, err
	}
	x.nextID++
	x.history.Record(o)
	return o, m.Resolve(o), nil
}

func (x *Exchange) SubmitMarket(owner, ticker string, side Side, qty int64) (*Order, []Trade, error) {
	m := x.matcher(ticker)
	o, err := NewMarketOrder(x.nextID+1, owner, ticker, side, qty)
	if err != nil {
		return nil, nil, err
	}
	x.nextID++
	x.history.Record(o)
	return o, m.Resolve(o), nil
}

func (x *Exchange) BestBid(ticker string) *Order { return x.matcher(ticker).book.BestBid() }
func (x *Exchange) BestAsk(ticker string) *Order { return x.matcher(ticker).book.BestAsk() }

func (x *Exchange) BestBidAsk(ticker string) (bid, ask *Order) {
	b := x.matcher(ticker).book
	return b.BestBid(), b.BestAsk()
}

func (x *Exchange) LastPrice(ticker string) (float64, bool) {
	return x.matcher(ticker).ledger.LastPrice()
}

func (x *Exchange) Quote(ticker string) Quote { return x.matcher(ticker).Quote() }

func (x *Exchange) Trades(ticker string) []Trade { return x.matcher(ticker).ledger.Trades() }

func (x *Exchange) Book(ticker string) *Book { return x.matcher(ticker).book }
