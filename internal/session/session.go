package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"tinyex.com/internal/account"
	"tinyex.com/internal/command"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/matching"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/xerr"
)

type Engine interface {
	SubmitLimit(ctx context.Context, owner, ticker string, side matching.Side, price float64, qty int64) (engine.SubmitResult, error)
	SubmitMarket(ctx context.Context, owner, ticker string, side matching.Side, qty int64) (engine.SubmitResult, error)
	Quote(ctx context.Context, ticker string) (matching.Quote, error)
}

type Accounts interface {
	ViewOrders(owner string) []string
	CanBuy(owner string, cost float64) error
	CanSell(owner, ticker string, qty int64) error
}

type Options struct {
	EnforceFunds bool
	Timeout      time.Duration // per action, 0 for none
}

// Session executes one trader's actions.
type Session struct {
	user string
	eng  Engine
	acct Accounts
	opts Options
}

func New(user string, eng Engine, acct Accounts, opts Options) *Session {
	return &Session{user: user, eng: eng, acct: acct, opts: opts}
}

func (s *Session) User() string { return s.user }

type Result struct {
	Action command.Action
	Lines  []string
	Order  *matching.Order // submissions only
	Trades []matching.Trade
	Quit   bool
}

// Execute parses and runs line. Errors are *xerr.CodeError; an unknown
// ticker is one of them, not a failure of the session.
func (s *Session) Execute(ctx context.Context, line string) (Result, error) {
	a, err := command.Parse(line)
	if err != nil {
		return Result{}, err
	}
	return s.Run(ctx, a)
}

func (s *Session) Run(ctx context.Context, a command.Action) (Result, error) {
	if logger.ReqID(ctx) == "" {
		ctx = logger.WithReqID(ctx, uuid.NewString())
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	res := Result{Action: a}
	switch a.Kind {
	case command.Quit:
		res.Quit = true
		return res, nil

	case command.ViewOrders:
		res.Lines = s.acct.ViewOrders(s.user)
		return res, nil

	case command.Quote:
		q, err := s.eng.Quote(ctx, a.Ticker)
		if err != nil {
			return res, s.fail(ctx, a, err)
		}
		res.Lines = []string{q.String()}
		return res, nil

	case command.Limit, command.Market:
		if err := s.checkFunds(ctx, a); err != nil {
			return res, s.fail(ctx, a, err)
		}
		var sr engine.SubmitResult
		var err error
		if a.Kind == command.Limit {
			sr, err = s.eng.SubmitLimit(ctx, s.user, a.Ticker, a.Side, a.Price, a.Qty)
		} else {
			sr, err = s.eng.SubmitMarket(ctx, s.user, a.Ticker, a.Side, a.Qty)
		}
		if err != nil {
			return res, s.fail(ctx, a, err)
		}
		res.Order, res.Trades = sr.Order, sr.Trades
		res.Lines = []string{placed(a)}
		logger.Debug(ctx, "order placed",
			zap.String("user", s.user), zap.String("action", a.String()),
			zap.Uint64("order_id", sr.Order.ID), zap.Int("trades", len(sr.Trades)))
		return res, nil

	default:
		return res, xerr.NewErrCode(xerr.BadRequest)
	}
}

func placed(a command.Action) string {
	if a.Kind == command.Limit {
		return fmt.Sprintf("You have placed a limit %s order for %d %s shares at $%.2f each.",
			strings.ToLower(a.Side.String()), a.Qty, a.Ticker, a.Price)
	}
	return fmt.Sprintf("You have placed a market order for %d %s shares.", a.Qty, a.Ticker)
}

// checkFunds applies the optional cash and holdings pre-check. A market buy
// is priced at the current best ask; with no ask it is not checked.
func (s *Session) checkFunds(ctx context.Context, a command.Action) error {
	if !s.opts.EnforceFunds {
		return nil
	}
	if a.Side == matching.Sell {
		return s.acct.CanSell(s.user, a.Ticker, a.Qty)
	}
	price := a.Price
	if a.Kind == command.Market {
		q, err := s.eng.Quote(ctx, a.Ticker)
		if err != nil {
			return err
		}
		if price = q.AskPrice(); price == 0 {
			return nil
		}
	}
	return s.acct.CanBuy(s.user, price*float64(a.Qty))
}

// fail maps engine and account errors onto trader-facing codes.
func (s *Session) fail(ctx context.Context, a command.Action, err error) error {
	var out error
	switch {
	case errors.Is(err, engine.ErrUnknownInstrument):
		out = xerr.Newf(xerr.UnknownInstrument, "unknown ticker %s", a.Ticker)
	case errors.Is(err, engine.ErrBadCommand):
		out = xerr.New(xerr.BadRequest, err.Error())
	case errors.Is(err, engine.ErrEngineBusy):
		out = xerr.NewErrCode(xerr.EngineBusy)
	case errors.Is(err, account.ErrInsufficientFunds):
		out = xerr.New(xerr.InsufficientFunds, err.Error())
	case errors.Is(err, account.ErrInsufficientShares):
		out = xerr.New(xerr.InsufficientShares, err.Error())
	default:
		logger.Error(ctx, "action failed", zap.String("user", s.user), zap.String("action", a.String()), zap.Error(err))
		return fmt.Errorf("%w: %w", xerr.NewErrCode(xerr.Internal), err)
	}
	logger.Debug(ctx, "action rejected", zap.String("user", s.user), zap.String("action", a.String()), zap.Error(err))
	return out
}
