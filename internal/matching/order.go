package matching

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// Opposite returns the side an incoming order of side s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

type Kind uint8

const (
	Limit Kind = iota + 1
	Market
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "LMT"
	case Market:
		return "MKT"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

type Status uint8

const (
	Pending Status = iota
	Partial
	Filled
)

func (s Status) String() string {
	switch s {
	case Filled:
		return "FILLED"
	case Partial:
		return "PARTIAL"
	default:
		return "PENDING"
	}
}

var (
	ErrInvalidSide  = errors.New("matching: invalid side")
	ErrInvalidPrice = errors.New("matching: limit price must be positive and finite")
	ErrInvalidQty   = errors.New("matching: quantity must be positive")
)

// Order is a resting or incoming instruction. Everything except the fill
// counter is fixed at creation; the fill counter is written only by the
// goroutine that owns the order's book and may be read from anywhere.
type Order struct {
	ID     uint64
	Owner  string
	Ticker string
	Side   Side
	Kind   Kind
	Price  float64 // zero for market orders
	Qty    int64
	Seq    uint64 // arrival sequence, stamped by the book on insert

	filled atomic.Int64
}

// ValidPrice reports whether p can be a limit price.
func ValidPrice(p float64) bool { return p > 0 && !math.IsInf(p, 0) }

func NewLimitOrder(id uint64, owner, ticker string, side Side, price float64, qty int64) (*Order, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if !ValidPrice(price) {
		return nil, ErrInvalidPrice
	}
	if qty <= 0 {
		return nil, ErrInvalidQty
	}
	return &Order{ID: id, Owner: owner, Ticker: ticker, Side: side, Kind: Limit, Price: price, Qty: qty}, nil
}

func NewMarketOrder(id uint64, owner, ticker string, side Side, qty int64) (*Order, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if qty <= 0 {
		return nil, ErrInvalidQty
	}
	return &Order{ID: id, Owner: owner, Ticker: ticker, Side: side, Kind: Market, Qty: qty}, nil
}

func (o *Order) Filled() int64    { return o.filled.Load() }
func (o *Order) Remaining() int64 { return o.Qty - o.filled.Load() }
func (o *Order) IsFilled() bool   { return o.filled.Load() == o.Qty }

func (o *Order) Status() Status {
	f := o.filled.Load()
	switch {
	case f == o.Qty:
		return Filled
	case f > 0:
		return Partial
	default:
		return Pending
	}
}

// Fill applies up to q units and returns how many were applied. The order
// never fills past its quantity.
func (o *Order) Fill(q int64) int64 {
	if q <= 0 {
		return 0
	}
	if rem := o.Remaining(); q > rem {
		q = rem
	}
	o.filled.Add(q)
	return q
}

func (o *Order) String() string {
	if o.Kind == Market {
		return fmt.Sprintf("%s MKT %s %d/%d %s", o.Ticker, o.Side, o.Filled(), o.Qty, o.Status())
	}
	return fmt.Sprintf("%s LMT %s $%.2f %d/%d %s", o.Ticker, o.Side, o.Price, o.Filled(), o.Qty, o.Status())
}
