package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"tinyex.com/internal/matching"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/metrics"
)

type ActorConfig struct {
	MailboxSize int // queued requests before ErrEngineBusy
	BatchMax    int // requests drained per journal flush
}

type request struct {
	cmd  Command
	resp chan Reply // buffered 1
}

// SymbolActor owns one instrument. Its goroutine is the only one that touches
// the matcher, so book and ledger need no locks.
type SymbolActor struct {
	ticker  string
	m       *matching.Matcher
	history matching.History
	in      chan request
	done    chan struct{}
	cfg     ActorConfig

	seq     uint64 // last journaled command
	now     time.Time
	replay  bool
	wal     journal
	codec   CmdCodec
	out     EventSink
	scratch []byte

	mailboxFull atomic.Uint64
}

func NewSymbolActor(ticker string, settle matching.Settlement, history matching.History,
	cfg ActorConfig, wal journal, codec CmdCodec, out EventSink,
) *SymbolActor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	if history == nil {
		history = matching.NopHistory{}
	}
	if codec == nil {
		codec = JSONCmdCodec{}
	}
	a := &SymbolActor{
		ticker:  ticker,
		m:       matching.NewInstrument(ticker, settle),
		history: history,
		in:      make(chan request, cfg.MailboxSize),
		done:    make(chan struct{}),
		cfg:     cfg,
		wal:     wal,
		codec:   codec,
		out:     out,
		scratch: make([]byte, 0, 256),
	}
	a.m.SetClock(func() time.Time { return a.now })
	return a
}

func (a *SymbolActor) Ticker() string      { return a.ticker }
func (a *SymbolActor) Seq() uint64         { return a.seq }
func (a *SymbolActor) MailboxFull() uint64 { return a.mailboxFull.Load() }

// Done is closed once Run has returned.
func (a *SymbolActor) Done() <-chan struct{} { return a.done }

// tryEnqueue queues a request without blocking.
func (a *SymbolActor) tryEnqueue(r request) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.in <- r:
		return nil
	default:
		a.mailboxFull.Add(1)
		metrics.MailboxFullTotal.WithLabelValues(a.ticker).Inc()
		return ErrEngineBusy
	}
}

// Do enqueues cmd and waits for its reply. A caller that gives up through
// ctx does not cancel the command: once queued it is journaled and applied.
func (a *SymbolActor) Do(ctx context.Context, cmd Command) (Reply, error) {
	r := request{cmd: cmd, resp: make(chan Reply, 1)}
	if err := a.tryEnqueue(r); err != nil {
		return Reply{}, err
	}
	select {
	case rep := <-r.resp:
		return rep, rep.Err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-a.done:
		// the reply may have been sent just before the actor exited
		select {
		case rep := <-r.resp:
			return rep, rep.Err
		default:
			return Reply{}, ErrStopped
		}
	}
}

// Run drains the mailbox in batches: journal every submit of the batch,
// flush once, then apply and reply in arrival order.
func (a *SymbolActor) Run(ctx context.Context) {
	defer close(a.done)
	if a.wal != nil {
		defer func() {
			if err := a.wal.Close(); err != nil {
				logger.Error(ctx, "journal close failed", zap.String("ticker", a.ticker), zap.Error(err))
			}
		}()
	}

	batch := make([]request, 0, a.cfg.BatchMax)
	for {
		var first request
		select {
		case <-ctx.Done():
			return
		case first = <-a.in:
		}

		batch = append(batch[:0], first)
	fill:
		for len(batch) < a.cfg.BatchMax {
			select {
			case r := <-a.in:
				batch = append(batch, r)
			default:
				break fill
			}
		}

		seqs, rejected, err := a.journal(batch)
		if err != nil {
			logger.Error(ctx, "journal write failed, stopping instrument",
				zap.String("ticker", a.ticker), zap.Uint64("seq", a.seq), zap.Error(err))
			for _, r := range batch {
				r.resp <- Reply{Err: fmt.Errorf("%w: %v", ErrJournal, err)}
			}
			return
		}
		for i, r := range batch {
			if rejected[i] != nil {
				r.resp <- Reply{Err: fmt.Errorf("%w: %v", ErrBadCommand, rejected[i])}
				continue
			}
			r.resp <- a.apply(seqs[i], r.cmd)
		}
	}
}

// journal assigns sequence numbers to the submits of a batch and makes them
// durable. Queries get the current sequence and are not written. A submit the
// codec cannot encode is rejected alone and takes no sequence number; only a
// journal write error is fatal.
func (a *SymbolActor) journal(batch []request) ([]uint64, []error, error) {
	seqs := make([]uint64, len(batch))
	rejected := make([]error, len(batch))
	appended := false
	for i := range batch {
		if !batch[i].cmd.Type.mutates() {
			seqs[i] = a.seq
			continue
		}
		if a.wal == nil {
			a.seq++
			seqs[i] = a.seq
			continue
		}
		payload, err := a.codec.Encode(a.scratch[:0], a.seq+1, batch[i].cmd)
		if err != nil {
			rejected[i] = err
			continue
		}
		if err := a.wal.Append(payload); err != nil {
			return nil, nil, err
		}
		a.seq++
		seqs[i] = a.seq
		appended = true
	}
	if appended {
		if err := a.wal.Flush(); err != nil {
			return nil, nil, err
		}
	}
	return seqs, rejected, nil
}

func (a *SymbolActor) apply(seq uint64, cmd Command) Reply {
	switch cmd.Type {
	case CmdSubmitLimit, CmdSubmitMarket:
		return a.submit(seq, cmd)
	case CmdQuote:
		return Reply{Quote: a.m.Quote()}
	case CmdTrades:
		trades := a.m.Ledger().Trades()
		if cmd.Limit > 0 && len(trades) > cmd.Limit {
			trades = trades[len(trades)-cmd.Limit:]
		}
		return Reply{Trades: trades}
	case CmdDepth:
		bids, asks := a.m.Book().Depth()
		return Reply{Bids: bids, Asks: asks}
	default:
		return Reply{Err: fmt.Errorf("%w: type %d", ErrBadCommand, cmd.Type)}
	}
}

func (a *SymbolActor) submit(seq uint64, cmd Command) Reply {
	var (
		o   *matching.Order
		err error
	)
	if cmd.Type == CmdSubmitLimit {
		o, err = matching.NewLimitOrder(cmd.OrderID, cmd.Owner, a.ticker, cmd.Side, cmd.Price, cmd.Qty)
	} else {
		o, err = matching.NewMarketOrder(cmd.OrderID, cmd.Owner, a.ticker, cmd.Side, cmd.Qty)
	}
	if err != nil {
		return Reply{Err: fmt.Errorf("%w: %v", ErrBadCommand, err)}
	}

	a.now = time.Unix(0, cmd.ClientTs)
	if cmd.ClientTs == 0 {
		a.now = time.Now()
	}
	start := time.Now()
	a.history.Record(o)
	trades := a.m.Resolve(o)

	if !a.replay {
		metrics.ObserveOrder(a.ticker, o.Kind.String(), o.Side.String(), time.Since(start))
		for _, t := range trades {
			metrics.ObserveTrade(a.ticker, t.Qty)
		}
		b := a.m.Book()
		metrics.SetResting(a.ticker, b.BidLen(), b.AskLen(), b.MarketBuyLen(), b.MarketSellLen())
		a.emit(seq, cmd, o, trades)
	}
	return Reply{Order: o, Trades: trades}
}

func (a *SymbolActor) emit(seq uint64, cmd Command, o *matching.Order, trades []matching.Trade) {
	if a.out == nil {
		return
	}
	var idx uint16
	pub := func(ev Event) {
		ev.Seq, ev.Idx, ev.Ticker, ev.ReqID = seq, idx, a.ticker, cmd.ReqID
		idx++
		a.out.TryPublish(ev)
	}

	pub(Event{Type: EvAccepted, OrderID: o.ID, Owner: o.Owner})
	for _, t := range trades {
		logger.Debug(context.Background(), "trade",
			zap.String("ticker", a.ticker), zap.String("buyer", t.Buyer), zap.String("seller", t.Seller),
			zap.Float64("price", t.Price), zap.Int64("qty", t.Qty))
		pub(Event{Type: EvTrade, OrderID: o.ID, Owner: o.Owner, Trade: t})
	}
	if !o.IsFilled() {
		pub(Event{Type: EvRested, OrderID: o.ID, Owner: o.Owner})
	}
	q := a.m.Quote()
	pub(Event{Type: EvQuote, Bid: q.BidPrice(), Ask: q.AskPrice(), Last: q.Last})
}
