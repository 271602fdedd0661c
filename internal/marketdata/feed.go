package marketdata

import (
	"context"

	"go.uber.org/zap"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/marketdata/broker"
	"tinyex.com/internal/marketdata/kline"
	"tinyex.com/pkg/logger"
)

// BarSink stores closed bars, e.g. the influx sink.
type BarSink interface {
	WriteBar(b kline.Bar)
}

// Feed turns engine events into market-data topics: trades and quotes are
// published as they happen, trades also feed the bar aggregator and closed
// bars are published and stored.
type Feed struct {
	broker broker.Broker
	agg    *kline.ShardedAggregator
	sink   BarSink // nil to skip storage
}

func NewFeed(b broker.Broker, agg *kline.ShardedAggregator, sink BarSink) *Feed {
	return &Feed{broker: b, agg: agg, sink: sink}
}

// Run consumes events until ctx is done or events is closed.
func (f *Feed) Run(ctx context.Context, events <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			f.handle(ctx, ev)
		}
	}
}

func (f *Feed) handle(ctx context.Context, ev engine.Event) {
	switch ev.Type {
	case engine.EvTrade:
		topic, b, err := EncodeTrade(ev.Trade)
		f.publish(ctx, topic, b, err)
		if f.agg != nil {
			f.agg.OfferTrade(kline.Trade{
				Ticker: ev.Trade.Ticker,
				Price:  ev.Trade.Price,
				Qty:    ev.Trade.Qty,
				TsMs:   ev.Trade.Time.UnixMilli(),
			})
		}
	case engine.EvQuote:
		topic, b, err := EncodeQuote(ev)
		f.publish(ctx, topic, b, err)
	}
}

// RunBars publishes and stores closed bars until the aggregator's output is
// closed. Bars flushed at shutdown are still delivered.
func (f *Feed) RunBars(ctx context.Context) {
	if f.agg == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for b := range f.agg.Out() {
		topic, payload, err := EncodeBar(b)
		f.publish(ctx, topic, payload, err)
		if f.sink != nil {
			f.sink.WriteBar(b)
		}
	}
}

func (f *Feed) publish(ctx context.Context, topic string, payload []byte, err error) {
	if err != nil {
		logger.Error(ctx, "encode market data failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := f.broker.Publish(ctx, topic, payload); err != nil {
		logger.Warn(ctx, "broker publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
