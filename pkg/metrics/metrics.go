package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tinyex"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders accepted by the engine.",
		},
		[]string{"ticker", "kind", "side"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		},
		[]string{"ticker"},
	)

	TradedQtyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Shares exchanged.",
		},
		[]string{"ticker"},
	)

	MailboxFullTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_full_total",
			Help:      "Submissions rejected because an instrument mailbox was full.",
		},
		[]string{"ticker"},
	)

	ResolveSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolve_seconds",
		Help:      "Time spent matching one incoming order.",
		Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12), // 1us ~ 4s
	})

	RestingOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders resting in a book, per queue.",
		},
		[]string{"ticker", "queue"}, // queue: bid/ask/market_buy/market_sell
	)

	WSConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_conns",
		Help:      "Active market-data websocket connections.",
	})

	WSMsgsOutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_msgs_out_total",
		Help:      "Market-data messages written to websocket clients.",
	})

	DroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_total",
		Help:      "Messages dropped by a full queue.",
	}, []string{"where"}) // event_bus/feed/console/broker/ws/kline
)

var once sync.Once

// MustRegister registers every collector with the default registry. Safe to
// call more than once.
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			OrdersTotal, TradesTotal, TradedQtyTotal, MailboxFullTotal,
			ResolveSeconds, RestingOrders,
			WSConns, WSMsgsOutTotal, DroppedTotal,
		)
	})
}

func ObserveOrder(ticker, kind, side string, took time.Duration) {
	OrdersTotal.WithLabelValues(ticker, kind, side).Inc()
	ResolveSeconds.Observe(took.Seconds())
}

func ObserveTrade(ticker string, qty int64) {
	TradesTotal.WithLabelValues(ticker).Inc()
	TradedQtyTotal.WithLabelValues(ticker).Add(float64(qty))
}

func SetResting(ticker string, bids, asks, mktBuys, mktSells int) {
	RestingOrders.WithLabelValues(ticker, "bid").Set(float64(bids))
	RestingOrders.WithLabelValues(ticker, "ask").Set(float64(asks))
	RestingOrders.WithLabelValues(ticker, "market_buy").Set(float64(mktBuys))
	RestingOrders.WithLabelValues(ticker, "market_sell").Set(float64(mktSells))
}
