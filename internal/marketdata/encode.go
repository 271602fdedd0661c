package marketdata

import (
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/marketdata/kline"
	"tinyex.com/internal/matching"
)

// Intervals are the bar intervals published per instrument.
var Intervals = []string{"1s", "1m", "1h", "1d"}

func TradeTopic(ticker string) string   { return "trade:" + ticker }
func QuoteTopic(ticker string) string   { return "quote:" + ticker }
func BarTopic(tf, ticker string) string { return "kline:" + tf + ":" + ticker }

// Topics lists every topic the feed publishes for the given instruments.
func Topics(tickers []string) []string {
	out := make([]string, 0, len(tickers)*(2+len(Intervals)))
	for _, t := range tickers {
		out = append(out, TradeTopic(t), QuoteTopic(t))
		for _, tf := range Intervals {
			out = append(out, BarTopic(tf, t))
		}
	}
	return out
}

// Prices travel as decimal strings so clients never see float noise.
func money(p float64) string { return decimal.NewFromFloat(p).StringFixed(2) }

type TradeMsg struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Ticker string `json:"ticker"`
	Seq    uint64 `json:"seq"`
	Price  string `json:"price"`
	Qty    int64  `json:"qty"`
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
	TsMs   int64  `json:"ts"`
}

type QuoteMsg struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Ticker string `json:"ticker"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Last   string `json:"last"`
}

type BarMsg struct {
	Type  string  `json:"type"`
	Topic string  `json:"topic"`
	Bar   BarJSON `json:"bar"`
}

type BarJSON struct {
	Ticker  string `json:"ticker"`
	TF      string `json:"tf"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Open    string `json:"o"`
	High    string `json:"h"`
	Low     string `json:"l"`
	Close   string `json:"c"`
	Volume  int64  `json:"v"`
	Count   int64  `json:"n"`
}

func EncodeTrade(t matching.Trade) (string, []byte, error) {
	topic := TradeTopic(t.Ticker)
	b, err := json.Marshal(TradeMsg{
		Type:   "trade",
		Topic:  topic,
		Ticker: t.Ticker,
		Seq:    t.Seq,
		Price:  money(t.Price),
		Qty:    t.Qty,
		Buyer:  t.Buyer,
		Seller: t.Seller,
		TsMs:   t.Time.UnixMilli(),
	})
	return topic, b, err
}

func EncodeQuote(ev engine.Event) (string, []byte, error) {
	topic := QuoteTopic(ev.Ticker)
	b, err := json.Marshal(QuoteMsg{
		Type:   "quote",
		Topic:  topic,
		Ticker: ev.Ticker,
		Bid:    money(ev.Bid),
		Ask:    money(ev.Ask),
		Last:   money(ev.Last),
	})
	return topic, b, err
}

func EncodeBar(bar kline.Bar) (string, []byte, error) {
	topic := BarTopic(bar.TF, bar.Ticker)
	b, err := json.Marshal(BarMsg{
		Type:  "kline",
		Topic: topic,
		Bar: BarJSON{
			Ticker:  bar.Ticker,
			TF:      bar.TF,
			StartMs: bar.StartMs,
			EndMs:   bar.EndMs,
			Open:    kline.FormatFixed(bar.Open),
			High:    kline.FormatFixed(bar.High),
			Low:     kline.FormatFixed(bar.Low),
			Close:   kline.FormatFixed(bar.Close),
			Volume:  bar.Volume,
			Count:   bar.Count,
		},
	})
	return topic, b, err
}
