// Package app assembles the exchange process: engine, accounts, market-data
// feed, HTTP gateway and metrics endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"tinyex.com/internal/account"
	"tinyex.com/internal/conf"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/gateway"
	"tinyex.com/internal/marketdata"
	"tinyex.com/internal/marketdata/broker"
	"tinyex.com/internal/marketdata/influxsink"
	"tinyex.com/internal/marketdata/kline"
	"tinyex.com/internal/marketdata/ws"
	"tinyex.com/internal/matching"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/metrics"
	"tinyex.com/pkg/safe"
)

type App struct {
	cfg   *conf.Config
	accts *account.Registry
	eng   *engine.Engine

	broker broker.Broker
	agg    *kline.ShardedAggregator
	feed   *marketdata.Feed
	sink   *influxsink.Sink
	hub    *ws.Hub

	feedCh chan engine.Event
	trades chan matching.Trade

	servers []*http.Server

	cancel   context.CancelFunc
	stopAgg  context.CancelFunc
	wg       sync.WaitGroup
	barsDone chan struct{}
}

func New(cfg *conf.Config) (*App, error) {
	a := &App{
		cfg:      cfg,
		accts:    account.NewRegistry(account.Config{InitialCash: cfg.Accounts.InitialCash, InitialShares: cfg.Accounts.InitialShares}),
		hub:      ws.NewHub(),
		feedCh:   make(chan engine.Event, 1<<14),
		trades:   make(chan matching.Trade, 1024),
		barsDone: make(chan struct{}),
	}
	a.eng = engine.New(cfg.Engine.Engine(), a.accts, a.accts)

	br, err := newBroker(cfg.Feed)
	if err != nil {
		return nil, err
	}
	a.broker = br

	a.agg, err = kline.NewShardedAggregator(kline.ShardedAggConfig{
		Shards:        cfg.Feed.Shards,
		ReorderWindow: cfg.Feed.ReorderWindow,
		FillGaps1m:    cfg.Feed.FillGaps,
		FillGaps1h:    cfg.Feed.FillGaps,
		FillGaps1d:    cfg.Feed.FillGaps,
		DropWhenFull:  true,
	})
	if err != nil {
		_ = br.Close()
		return nil, err
	}

	var sink marketdata.BarSink
	if in := cfg.Feed.Influx; in.URL != "" {
		a.sink = influxsink.New(influxsink.Config{URL: in.URL, Token: in.Token, Org: in.Org, Bucket: in.Bucket})
		sink = a.sink
	}
	a.feed = marketdata.NewFeed(a.broker, a.agg, sink)
	return a, nil
}

func newBroker(cfg conf.FeedConfig) (broker.Broker, error) {
	switch cfg.Broker {
	case "", "mem":
		return broker.NewMemBroker(0), nil
	case "nats":
		nb, err := broker.NewNatsBroker(cfg.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", cfg.NatsURL, err)
		}
		return broker.NewBreaker("nats", nb, broker.BreakerRule{}), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

func (a *App) Engine() *engine.Engine        { return a.eng }
func (a *App) Accounts() *account.Registry   { return a.accts }
func (a *App) Hub() *ws.Hub                  { return a.hub }
func (a *App) Trades() <-chan matching.Trade { return a.trades }

// Start lists the instruments, starts the market-data pipeline and the
// configured listeners. Listener errors after startup are logged.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	for _, t := range a.cfg.Instruments {
		if err := a.eng.ListInstrument(t); err != nil {
			return fmt.Errorf("list %s: %w", t, err)
		}
	}

	if err := marketdata.NewGateway(a.hub, a.broker).Start(ctx, marketdata.Topics(a.cfg.Instruments)); err != nil {
		return fmt.Errorf("market data gateway: %w", err)
	}

	var aggCtx context.Context
	aggCtx, a.stopAgg = context.WithCancel(context.Background())
	a.agg.Run(aggCtx)
	safe.Go(func() {
		defer close(a.barsDone)
		a.feed.RunBars(ctx)
	})
	// the feed ends when fanOut closes feedCh, so nothing queued is lost
	a.goCtx(ctx, func(ctx context.Context) { _ = a.feed.Run(context.WithoutCancel(ctx), a.feedCh) })
	a.goCtx(ctx, a.fanOut)

	if addr := a.cfg.HTTP.Addr; addr != "" {
		h := gateway.NewHandler(a.eng, a.accts)
		r := gateway.NewRouter(ctx, h, ws.NewServer(ctx, a.hub), gateway.Config{
			Rate:    a.cfg.HTTP.Rate,
			Burst:   a.cfg.HTTP.Burst,
			Metrics: true,
		})
		a.serve(ctx, "http", gateway.NewServer(addr, r))
	}
	metrics.MustRegister()
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.serve(ctx, "metrics", &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}
	logger.Info(ctx, "exchange started",
		zap.Strings("instruments", a.cfg.Instruments),
		zap.String("broker", a.cfg.Feed.Broker),
		zap.String("http", a.cfg.HTTP.Addr),
	)
	return nil
}

func (a *App) goCtx(ctx context.Context, fn func(ctx context.Context)) {
	a.wg.Add(1)
	safe.GoCtx(ctx, func(ctx context.Context) {
		defer a.wg.Done()
		fn(ctx)
	})
}

func (a *App) serve(ctx context.Context, name string, srv *http.Server) {
	a.servers = append(a.servers, srv)
	safe.Go(func() {
		logger.Info(ctx, "listening", zap.String("server", name), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "listener failed", zap.String("server", name), zap.Error(err))
		}
	})
}

// fanOut copies engine events to the feed and trades to the console. Both
// copies drop when their reader falls behind. On ctx done it forwards what
// the bus still holds and closes the feed channel.
func (a *App) fanOut(ctx context.Context) {
	defer close(a.feedCh)
	events := a.eng.Events()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-events:
					a.forward(ev)
				default:
					return
				}
			}
		case ev := <-events:
			a.forward(ev)
		}
	}
}

func (a *App) forward(ev engine.Event) {
	select {
	case a.feedCh <- ev:
	default:
		metrics.DroppedTotal.WithLabelValues("feed").Inc()
	}
	if ev.Type != engine.EvTrade {
		return
	}
	select {
	case a.trades <- ev.Trade:
	default:
		metrics.DroppedTotal.WithLabelValues("console").Inc()
	}
}

// Close stops listeners, the engine and the feed, flushing open bars to the
// broker and storage. It must be called once after Start.
func (a *App) Close(ctx context.Context) {
	for _, srv := range a.servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	a.eng.Stop()
	a.cancel()
	a.wg.Wait()

	a.stopAgg()
	a.agg.Close()
	<-a.barsDone
	if n := a.agg.LateDrops(); n > 0 {
		logger.Info(ctx, "late trades dropped by the bar aggregator", zap.Int64("count", n))
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if err := a.broker.Close(); err != nil {
		logger.Warn(ctx, "broker close", zap.Error(err))
	}
	logger.Info(ctx, "exchange stopped", zap.Uint64("dropped_events", a.eng.DroppedEvents()))
}
