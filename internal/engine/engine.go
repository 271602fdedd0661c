package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"tinyex.com/internal/matching"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/safe"
	"tinyex.com/pkg/wal"
)

type Config struct {
	Actor        ActorConfig
	EventBusSize int
	WALDir       string // one <ticker>.wal per instrument
	EnableWAL    bool
	WALBufSize   int
	Codec        CmdCodec
}

// Engine routes commands to one actor per listed instrument. Actors share the
// settlement and history collaborators, which must be safe for concurrent use.
type Engine struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     Config
	settle  matching.Settlement
	history matching.History
	bus     *ChanBus

	mu     sync.RWMutex
	actors map[string]*SymbolActor
	wg     sync.WaitGroup
	nextID atomic.Uint64
}

func New(cfg Config, settle matching.Settlement, history matching.History) *Engine {
	if cfg.Codec == nil {
		cfg.Codec = JSONCmdCodec{}
	}
	if settle == nil {
		settle = matching.NopSettlement{}
	}
	if history == nil {
		history = matching.NopHistory{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		settle:  settle,
		history: history,
		bus:     NewChanBus(cfg.EventBusSize),
		actors:  make(map[string]*SymbolActor, 8),
	}
}

func (e *Engine) Events() <-chan Event  { return e.bus.C() }
func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

// ListInstrument creates the book and ledger of ticker and starts its actor.
// With the journal enabled the instrument is first rebuilt from <ticker>.wal.
func (e *Engine) ListInstrument(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("%w: empty ticker", ErrBadCommand)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.actors[ticker]; ok {
		return fmt.Errorf("%w: %s", ErrInstrumentListed, ticker)
	}

	var w journal
	a := NewSymbolActor(ticker, e.settle, e.history, e.cfg.Actor, nil, e.cfg.Codec, e.bus)
	if e.cfg.EnableWAL {
		if e.cfg.WALDir == "" {
			return fmt.Errorf("engine: journal enabled without a directory")
		}
		if err := os.MkdirAll(e.cfg.WALDir, 0o755); err != nil {
			return err
		}
		path := walPath(e.cfg.WALDir, ticker)
		if err := e.replay(a, path); err != nil {
			return fmt.Errorf("engine: replay %s: %w", path, err)
		}
		ww, err := wal.OpenWriter(path, e.cfg.WALBufSize)
		if err != nil {
			return err
		}
		w = ww
	}
	a.wal = w
	e.actors[ticker] = a

	logger.Info(e.ctx, "instrument listed",
		zap.String("ticker", ticker), zap.Uint64("seq", a.seq), zap.Int("trades", a.m.Ledger().Len()))

	e.wg.Add(1)
	safe.GoCtx(e.ctx, func(ctx context.Context) {
		defer e.wg.Done()
		a.Run(ctx)
	})
	return nil
}

// replay applies every journaled submit to a before it starts. A torn last
// record is cut off so new appends follow the last good one.
func (e *Engine) replay(a *SymbolActor, path string) error {
	a.replay = true
	defer func() { a.replay = false }()

	st, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		seq, cmd, err := a.codec.Decode(payload)
		if err != nil {
			return err
		}
		if seq != a.seq+1 {
			return fmt.Errorf("sequence gap: have %d, next record %d", a.seq, seq)
		}
		a.seq = seq
		// ids are unique per run; a late listing must not reuse issued ones
		cmd.OrderID = e.nextID.Add(1)
		if rep := a.apply(seq, cmd); rep.Err != nil {
			logger.Warn(e.ctx, "journaled command rejected on replay",
				zap.String("ticker", a.ticker), zap.Uint64("seq", seq), zap.Error(rep.Err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if st.TruncatedTail {
		logger.Warn(e.ctx, "journal has a torn tail, truncating",
			zap.String("path", path), zap.Int64("offset", st.LastGoodOffset))
		if err := wal.TruncateTo(path, st.LastGoodOffset); err != nil {
			return err
		}
	}
	if st.Records > 0 {
		logger.Info(e.ctx, "journal replayed",
			zap.String("ticker", a.ticker), zap.Int("records", st.Records))
	}
	return nil
}

func (e *Engine) actor(ticker string) (*SymbolActor, error) {
	e.mu.RLock()
	a := e.actors[ticker]
	e.mu.RUnlock()
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, ticker)
	}
	return a, nil
}

func (e *Engine) Listed(ticker string) bool {
	_, err := e.actor(ticker)
	return err == nil
}

// Instruments returns the listed tickers in lexical order.
func (e *Engine) Instruments() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.actors))
	for t := range e.actors {
		out = append(out, t)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (e *Engine) SubmitLimit(ctx context.Context, owner, ticker string, side matching.Side, price float64, qty int64) (SubmitResult, error) {
	if !matching.ValidPrice(price) {
		return SubmitResult{}, fmt.Errorf("%w: price %v must be positive and finite", ErrBadCommand, price)
	}
	return e.submit(ctx, ticker, Command{Type: CmdSubmitLimit, Owner: owner, Side: side, Price: price, Qty: qty})
}

func (e *Engine) SubmitMarket(ctx context.Context, owner, ticker string, side matching.Side, qty int64) (SubmitResult, error) {
	return e.submit(ctx, ticker, Command{Type: CmdSubmitMarket, Owner: owner, Side: side, Qty: qty})
}

func (e *Engine) submit(ctx context.Context, ticker string, cmd Command) (SubmitResult, error) {
	switch {
	case cmd.Owner == "":
		return SubmitResult{}, fmt.Errorf("%w: empty owner", ErrBadCommand)
	case !cmd.Side.Valid():
		return SubmitResult{}, fmt.Errorf("%w: side %d", ErrBadCommand, cmd.Side)
	case cmd.Qty <= 0:
		return SubmitResult{}, fmt.Errorf("%w: quantity must be positive", ErrBadCommand)
	}
	a, err := e.actor(ticker)
	if err != nil {
		return SubmitResult{}, err
	}
	cmd.OrderID = e.nextID.Add(1)
	cmd.ClientTs = time.Now().UnixNano()
	cmd.ReqID = logger.ReqID(ctx)

	rep, err := a.Do(ctx, cmd)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Order: rep.Order, Trades: rep.Trades}, nil
}

func (e *Engine) query(ctx context.Context, ticker string, cmd Command) (Reply, error) {
	a, err := e.actor(ticker)
	if err != nil {
		return Reply{}, err
	}
	cmd.ReqID = logger.ReqID(ctx)
	return a.Do(ctx, cmd)
}

func (e *Engine) Quote(ctx context.Context, ticker string) (matching.Quote, error) {
	rep, err := e.query(ctx, ticker, Command{Type: CmdQuote})
	return rep.Quote, err
}

func (e *Engine) BestBidAsk(ctx context.Context, ticker string) (bid, ask *matching.Order, err error) {
	q, err := e.Quote(ctx, ticker)
	return q.Bid, q.Ask, err
}

// LastPrice reports false until the instrument has traded.
func (e *Engine) LastPrice(ctx context.Context, ticker string) (float64, bool, error) {
	q, err := e.Quote(ctx, ticker)
	return q.Last, q.HasLast, err
}

// Trades returns the newest limit trades, oldest first, or all of them when
// limit is not positive.
func (e *Engine) Trades(ctx context.Context, ticker string, limit int) ([]matching.Trade, error) {
	rep, err := e.query(ctx, ticker, Command{Type: CmdTrades, Limit: limit})
	return rep.Trades, err
}

func (e *Engine) Depth(ctx context.Context, ticker string) (bids, asks []matching.Level, err error) {
	rep, err := e.query(ctx, ticker, Command{Type: CmdDepth})
	return rep.Bids, rep.Asks, err
}

// Stop cancels every actor and waits for them to close their journals.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// walPath escapes ticker one to one, so distinct tickers never share a file.
func walPath(dir, ticker string) string {
	return filepath.Join(dir, url.PathEscape(ticker)+".wal")
}
