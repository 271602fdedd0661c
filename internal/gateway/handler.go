package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"tinyex.com/internal/account"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/matching"
	"tinyex.com/pkg/common"
	"tinyex.com/pkg/xerr"
)

// Engine is the read side of the matching engine the API serves.
type Engine interface {
	Instruments() []string
	Quote(ctx context.Context, ticker string) (matching.Quote, error)
	Trades(ctx context.Context, ticker string, limit int) ([]matching.Trade, error)
	Depth(ctx context.Context, ticker string) (bids, asks []matching.Level, err error)
}

type Accounts interface {
	Lookup(name string) (*account.Account, bool)
}

type Handler struct {
	eng    Engine
	accts  Accounts
	quotes singleflight.Group // concurrent quote reads of one ticker share a round trip
}

func NewHandler(eng Engine, accts Accounts) *Handler {
	return &Handler{eng: eng, accts: accts}
}

type QuoteView struct {
	Ticker  string `json:"ticker"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Last    string `json:"last"`
	HasLast bool   `json:"has_last"`
}

type TradeView struct {
	Seq    uint64    `json:"seq"`
	Price  string    `json:"price"`
	Qty    int64     `json:"qty"`
	Buyer  string    `json:"buyer"`
	Seller string    `json:"seller"`
	Time   time.Time `json:"time"`
}

type LevelView struct {
	Price  string `json:"price"`
	Qty    int64  `json:"qty"`
	Orders int    `json:"orders"`
}

type DepthView struct {
	Ticker string      `json:"ticker"`
	Bids   []LevelView `json:"bids"`
	Asks   []LevelView `json:"asks"`
}

func money(p float64) string { return decimal.NewFromFloat(p).StringFixed(2) }

func (h *Handler) Instruments(c *gin.Context) {
	common.Success(c, h.eng.Instruments())
}

func (h *Handler) Quote(c *gin.Context) {
	ticker := c.Param("ticker")
	v, err, _ := h.quotes.Do(ticker, func() (interface{}, error) {
		return h.eng.Quote(c.Request.Context(), ticker)
	})
	if err != nil {
		common.FailErr(c, engineErr(err, ticker))
		return
	}
	q := v.(matching.Quote)
	common.Success(c, QuoteView{
		Ticker:  q.Ticker,
		Bid:     money(q.BidPrice()),
		Ask:     money(q.AskPrice()),
		Last:    money(q.Last),
		HasLast: q.HasLast,
	})
}

func (h *Handler) Trades(c *gin.Context) {
	ticker := c.Param("ticker")
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			common.FailErr(c, xerr.New(xerr.BadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	trades, err := h.eng.Trades(c.Request.Context(), ticker, limit)
	if err != nil {
		common.FailErr(c, engineErr(err, ticker))
		return
	}
	out := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeView{Seq: t.Seq, Price: money(t.Price), Qty: t.Qty, Buyer: t.Buyer, Seller: t.Seller, Time: t.Time})
	}
	common.Success(c, out)
}

func (h *Handler) Depth(c *gin.Context) {
	ticker := c.Param("ticker")
	bids, asks, err := h.eng.Depth(c.Request.Context(), ticker)
	if err != nil {
		common.FailErr(c, engineErr(err, ticker))
		return
	}
	common.Success(c, DepthView{Ticker: ticker, Bids: levels(bids), Asks: levels(asks)})
}

func levels(ls []matching.Level) []LevelView {
	out := make([]LevelView, 0, len(ls))
	for _, l := range ls {
		out = append(out, LevelView{Price: money(l.Price), Qty: l.Qty, Orders: l.Orders})
	}
	return out
}

func (h *Handler) Account(c *gin.Context) {
	owner := c.Param("owner")
	a, ok := h.accts.Lookup(owner)
	if !ok {
		common.FailErr(c, xerr.Newf(xerr.UnknownInstrument, "unknown trader %s", owner))
		return
	}
	common.Success(c, a.Snapshot())
}

func engineErr(err error, ticker string) error {
	switch {
	case errors.Is(err, engine.ErrUnknownInstrument):
		return xerr.Newf(xerr.UnknownInstrument, "unknown ticker %s", ticker)
	case errors.Is(err, engine.ErrEngineBusy):
		return xerr.NewErrCode(xerr.EngineBusy)
	default:
		return err
	}
}
