package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinyex.com/internal/account"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/marketdata/broker"
	"tinyex.com/internal/marketdata/kline"
	"tinyex.com/internal/marketdata/ws"
	"tinyex.com/internal/matching"
)

type barRecorder struct {
	mu   sync.Mutex
	bars []kline.Bar
}

func (r *barRecorder) WriteBar(b kline.Bar) {
	r.mu.Lock()
	r.bars = append(r.bars, b)
	r.mu.Unlock()
}

func (r *barRecorder) intervals() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for _, b := range r.bars {
		out[b.TF] += b.Volume
	}
	return out
}

func lastOf[T any](t *testing.T, hub *ws.Hub, topic string, ok func(T) bool) T {
	t.Helper()
	var msg T
	require.Eventually(t, func() bool {
		b := hub.Last(topic)
		if b == nil || json.Unmarshal(b, &msg) != nil {
			return false
		}
		return ok(msg)
	}, 2*time.Second, 5*time.Millisecond, topic)
	return msg
}

func TestFeedToHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := broker.NewMemBroker(256)
	hub := ws.NewHub()
	require.NoError(t, NewGateway(hub, br).Start(ctx, Topics([]string{"AAPL"})))

	accts := account.NewRegistry(account.Config{})
	eng := engine.New(engine.Config{}, accts, accts)
	require.NoError(t, eng.ListInstrument("AAPL"))
	defer eng.Stop()

	agg, err := kline.NewShardedAggregator(kline.ShardedAggConfig{Shards: 2})
	require.NoError(t, err)
	aggCtx, stopAgg := context.WithCancel(ctx)
	agg.Run(aggCtx)

	sink := &barRecorder{}
	feed := NewFeed(br, agg, sink)
	go func() { _ = feed.Run(ctx, eng.Events()) }()
	barsDone := make(chan struct{})
	go func() {
		feed.RunBars(ctx)
		close(barsDone)
	}()

	_, err = eng.SubmitLimit(ctx, "John", "AAPL", matching.Buy, 10, 10)
	require.NoError(t, err)
	_, err = eng.SubmitMarket(ctx, "Jane", "AAPL", matching.Sell, 4)
	require.NoError(t, err)

	tr := lastOf(t, hub, TradeTopic("AAPL"), func(m TradeMsg) bool { return m.Qty == 4 })
	assert.Equal(t, "10.00", tr.Price)
	assert.Equal(t, "John", tr.Buyer)
	assert.Equal(t, "Jane", tr.Seller)

	q := lastOf(t, hub, QuoteTopic("AAPL"), func(m QuoteMsg) bool { return m.Last == "10.00" })
	assert.Equal(t, "10.00", q.Bid)
	assert.Equal(t, "0.00", q.Ask)

	// the trade reached the aggregator before its quote was published
	stopAgg()
	agg.Close()
	<-barsDone

	bar := lastOf(t, hub, BarTopic("1s", "AAPL"), func(m BarMsg) bool { return m.Bar.Volume > 0 })
	assert.Equal(t, "10.00000000", bar.Bar.Close)
	assert.Equal(t, int64(4), bar.Bar.Volume)
	assert.Equal(t, map[string]int64{"1s": 4, "1m": 4, "1h": 4, "1d": 4}, sink.intervals())
}

func TestTopics(t *testing.T) {
	got := Topics([]string{"AAPL"})
	assert.Equal(t, []string{
		"trade:AAPL", "quote:AAPL",
		"kline:1s:AAPL", "kline:1m:AAPL", "kline:1h:AAPL", "kline:1d:AAPL",
	}, got)
}

func TestEncodeQuoteEmptyBook(t *testing.T) {
	topic, b, err := EncodeQuote(engine.Event{Type: engine.EvQuote, Ticker: "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, "quote:MSFT", topic)
	assert.JSONEq(t, `{"type":"quote","topic":"quote:MSFT","ticker":"MSFT","bid":"0.00","ask":"0.00","last":"0.00"}`, string(b))
}
