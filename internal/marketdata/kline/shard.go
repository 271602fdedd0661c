package kline

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"tinyex.com/pkg/metrics"
	"tinyex.com/pkg/safe"
)

type ShardedAggConfig struct {
	Shards        int
	ReorderWindow time.Duration
	TZOffset      time.Duration

	// flat bars for quiet buckets; 1s bars are never filled
	FillGaps1m bool
	FillGaps1h bool
	FillGaps1d bool

	InboxSize    int
	DropWhenFull bool
	OutSize      int
}

// ShardedAggregator spreads tickers over shard goroutines by hash. Each shard
// owns a 1s -> 1m -> 1h -> 1d chain whose maps only its goroutine touches.
// Every closed bar of every interval is sent to Out.
type ShardedAggregator struct {
	cfg    ShardedAggConfig
	out    chan Bar
	shards []shard
	wg     sync.WaitGroup
}

type shard struct {
	inbox chan Trade
	sAgg  *TradeAgg
	mAgg  *RollupAgg
	hAgg  *RollupAgg
	dAgg  *RollupAgg
}

func NewShardedAggregator(cfg ShardedAggConfig) (*ShardedAggregator, error) {
	if cfg.Shards <= 0 {
		return nil, errors.New("kline: shards must be > 0")
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 8192
	}
	if cfg.OutSize <= 0 {
		cfg.OutSize = 1 << 16
	}
	a := &ShardedAggregator{
		cfg:    cfg,
		out:    make(chan Bar, cfg.OutSize),
		shards: make([]shard, cfg.Shards),
	}
	for i := range a.shards {
		sh := &a.shards[i]
		sh.inbox = make(chan Trade, cfg.InboxSize)
		sh.dAgg = NewRollupAggFill(24*time.Hour, cfg.TZOffset, cfg.FillGaps1d, func(b Bar) {
			a.out <- b
		})
		sh.hAgg = NewRollupAggFill(time.Hour, cfg.TZOffset, cfg.FillGaps1h, func(b Bar) {
			a.out <- b
			sh.dAgg.OfferBar(b)
		})
		sh.mAgg = NewRollupAggFill(time.Minute, cfg.TZOffset, cfg.FillGaps1m, func(b Bar) {
			a.out <- b
			sh.hAgg.OfferBar(b)
		})
		sh.sAgg = NewTradeAggReorder(time.Second, cfg.TZOffset, cfg.ReorderWindow, func(b Bar) {
			a.out <- b
			sh.mAgg.OfferBar(b)
		})
	}
	return a, nil
}

func (a *ShardedAggregator) Out() <-chan Bar { return a.out }

// Run starts one worker per shard. On ctx cancel each worker flushes its open
// bars and exits; call Close afterwards.
func (a *ShardedAggregator) Run(ctx context.Context) {
	for i := range a.shards {
		sh := &a.shards[i]
		a.wg.Add(1)
		safe.GoCtx(ctx, func(ctx context.Context) {
			defer a.wg.Done()
			for {
				select {
				case <-ctx.Done():
					sh.drain()
					sh.sAgg.Flush()
					sh.mAgg.Flush()
					sh.hAgg.Flush()
					sh.dAgg.Flush()
					return
				case t := <-sh.inbox:
					sh.sAgg.OfferTrade(t)
				}
			}
		})
	}
}

// drain feeds trades already queued when the shard was told to stop.
func (sh *shard) drain() {
	for {
		select {
		case t := <-sh.inbox:
			sh.sAgg.OfferTrade(t)
		default:
			return
		}
	}
}

// Close waits for the workers and closes Out.
func (a *ShardedAggregator) Close() {
	a.wg.Wait()
	close(a.out)
}

// OfferTrade routes t to its shard. With DropWhenFull a full inbox drops the
// trade and returns false.
func (a *ShardedAggregator) OfferTrade(t Trade) bool {
	sh := &a.shards[shardIndex(t.Ticker, len(a.shards))]
	if !a.cfg.DropWhenFull {
		sh.inbox <- t
		return true
	}
	select {
	case sh.inbox <- t:
		return true
	default:
		metrics.DroppedTotal.WithLabelValues("kline").Inc()
		return false
	}
}

// LateDrops sums trades discarded as too late across shards. Only valid
// after Close.
func (a *ShardedAggregator) LateDrops() int64 {
	var n int64
	for i := range a.shards {
		n += a.shards[i].sAgg.LateDrops()
	}
	return n
}

func shardIndex(ticker string, shards int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	return int(h.Sum64() % uint64(shards))
}
