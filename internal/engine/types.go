package engine

import (
	"errors"

	"tinyex.com/internal/matching"
)

type CmdType uint8

const (
	CmdSubmitLimit CmdType = iota + 1
	CmdSubmitMarket
	CmdQuote
	CmdTrades
	CmdDepth
)

func (t CmdType) String() string {
	switch t {
	case CmdSubmitLimit:
		return "submit_limit"
	case CmdSubmitMarket:
		return "submit_market"
	case CmdQuote:
		return "quote"
	case CmdTrades:
		return "trades"
	case CmdDepth:
		return "depth"
	default:
		return "unknown"
	}
}

// mutates reports whether the command changes the book and so is journaled.
func (t CmdType) mutates() bool { return t == CmdSubmitLimit || t == CmdSubmitMarket }

// Command is one instruction for an instrument's actor. Submit commands are
// journaled as-is, so every field a replay needs lives here.
type Command struct {
	Type     CmdType       `json:"type"`
	ReqID    string        `json:"req_id,omitempty"`
	ClientTs int64         `json:"ts,omitempty"` // unix nanos, becomes the trade time
	OrderID  uint64        `json:"order_id,omitempty"`
	Owner    string        `json:"owner,omitempty"`
	Side     matching.Side `json:"side,omitempty"`
	Price    float64       `json:"price,omitempty"`
	Qty      int64         `json:"qty,omitempty"`
	Limit    int           `json:"limit,omitempty"` // CmdTrades: newest N, 0 for all
}

// Reply is what an actor hands back for one command.
type Reply struct {
	Order  *matching.Order
	Trades []matching.Trade
	Quote  matching.Quote
	Bids   []matching.Level
	Asks   []matching.Level
	Err    error
}

// SubmitResult is the outcome of a submission. Order's fill counter keeps
// moving as later orders match against it; read it through its accessors.
type SubmitResult struct {
	Order  *matching.Order
	Trades []matching.Trade
}

type EventType uint8

const (
	EvAccepted EventType = iota + 1 // order entered the matcher
	EvTrade                         // one match
	EvRested                        // remainder rests in the book
	EvQuote                         // top of book after a submission
)

func (t EventType) String() string {
	switch t {
	case EvAccepted:
		return "accepted"
	case EvTrade:
		return "trade"
	case EvRested:
		return "rested"
	case EvQuote:
		return "quote"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType

	// Seq is the journal sequence of the command that caused the event and
	// increases monotonically per instrument. Idx orders events of one Seq.
	Seq    uint64
	Idx    uint16
	Ticker string
	ReqID  string

	OrderID uint64
	Owner   string

	// EvTrade
	Trade matching.Trade

	// EvQuote; zero when the side is empty or nothing traded yet
	Bid  float64
	Ask  float64
	Last float64
}

var (
	ErrEngineBusy        = errors.New("engine busy: mailbox full")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrInstrumentListed  = errors.New("instrument already listed")
	ErrBadCommand        = errors.New("bad command")
	ErrStopped           = errors.New("engine stopped")
	ErrJournal           = errors.New("journal write failed")
)
