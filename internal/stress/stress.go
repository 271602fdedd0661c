// Package stress drives an engine with random traders and writes what
// happened to text files.
package stress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"tinyex.com/internal/account"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/session"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/xerr"
)

const (
	OrdersFile = "orders.txt"
	TradesFile = "trades.txt"
	PricesFile = "prices.txt"
)

type Config struct {
	Tickers     []string
	Users       int
	Actions     int
	Workers     int
	Rate        float64 // actions per second, 0 unlimited
	Burst       int
	LimitWeight float64 // share of orders that are limit orders
	MaxPrice    int
	MaxQty      int
	Seed        uint64
}

// Step is one generated action.
type Step struct {
	User    string
	Line    string
	IsOrder bool
}

// Generate makes the users and the action script. The same seed gives the
// same script.
func Generate(cfg Config) ([]string, []Step) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	users := make([]string, cfg.Users)
	for i := range users {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			id = uuid.New()
		}
		users[i] = "trader-" + id.String()[:8]
	}

	options := []string{"BUY", "SELL", "QUOTE", "VIEW ORDERS"}
	steps := make([]Step, 0, cfg.Actions)
	for range cfg.Actions {
		st := Step{User: users[rng.Intn(len(users))]}
		switch opt := options[rng.Intn(len(options))]; opt {
		case "BUY", "SELL":
			ticker := cfg.Tickers[rng.Intn(len(cfg.Tickers))]
			qty := 1 + rng.Intn(cfg.MaxQty)
			if rng.Float64() < cfg.LimitWeight {
				st.Line = fmt.Sprintf("%s %s LMT $%d %d", opt, ticker, 1+rng.Intn(cfg.MaxPrice), qty)
			} else {
				st.Line = fmt.Sprintf("%s %s MKT %d", opt, ticker, qty)
			}
			st.IsOrder = true
		case "QUOTE":
			st.Line = "QUOTE " + cfg.Tickers[rng.Intn(len(cfg.Tickers))]
		default:
			st.Line = opt
		}
		steps = append(steps, st)
	}
	return users, steps
}

type Report struct {
	Orders   []string // "<user>: <action>", in script order
	Executed int64
	Rejected int64
	Elapsed  time.Duration
}

// Run executes the script over cfg.Workers goroutines. Step i goes to worker
// i % Workers, so each worker keeps its share in script order. Rejected
// actions are counted; an internal error stops the run.
func Run(ctx context.Context, cfg Config, eng *engine.Engine, accts *account.Registry, opts session.Options) (Report, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if len(cfg.Tickers) == 0 || cfg.Users <= 0 || cfg.MaxPrice <= 0 || cfg.MaxQty <= 0 {
		return Report{}, errors.New("stress: tickers, users, max price and max qty are required")
	}
	users, steps := Generate(cfg)

	sessions := make(map[string]*session.Session, len(users))
	for _, u := range users {
		sessions[u] = session.New(u, eng, accts, opts)
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, max(cfg.Burst, 1))

	var executed, rejected atomic.Int64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.Workers {
		g.Go(func() error {
			for i := w; i < len(steps); i += cfg.Workers {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				st := steps[i]
				_, err := sessions[st.User].Execute(gctx, st.Line)
				switch {
				case err == nil:
					executed.Add(1)
				case xerr.CodeOf(err) == xerr.Internal:
					return fmt.Errorf("%s: %s: %w", st.User, st.Line, err)
				default:
					rejected.Add(1)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	rep := Report{Executed: executed.Load(), Rejected: rejected.Load(), Elapsed: time.Since(start)}
	for _, st := range steps {
		if st.IsOrder {
			rep.Orders = append(rep.Orders, st.User+": "+st.Line)
		}
	}
	logger.Info(ctx, "stress run finished",
		zap.Int("actions", len(steps)),
		zap.Int64("executed", rep.Executed),
		zap.Int64("rejected", rep.Rejected),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, err
}

// WriteResults writes the order script, every trade per ticker and the
// closing quote of each ticker into dir.
func WriteResults(ctx context.Context, dir string, tickers []string, rep Report, eng *engine.Engine) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, OrdersFile), []byte(strings.Join(rep.Orders, "\n")), 0o644); err != nil {
		return err
	}

	var trades, prices strings.Builder
	for _, t := range tickers {
		ts, err := eng.Trades(ctx, t, 0)
		if err != nil {
			return fmt.Errorf("trades %s: %w", t, err)
		}
		trades.WriteString(t + "\n")
		for _, tr := range ts {
			trades.WriteString(tr.String() + "\n")
		}

		q, err := eng.Quote(ctx, t)
		if err != nil {
			return fmt.Errorf("quote %s: %w", t, err)
		}
		prices.WriteString(q.String() + "\n")
	}
	if err := os.WriteFile(filepath.Join(dir, TradesFile), []byte(trades.String()), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, PricesFile), []byte(prices.String()), 0o644)
}
