package influxsink

import (
	"context"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinyex.com/internal/marketdata/kline"
)

type fakeWriter struct {
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) { f.points = append(f.points, p) }
func (f *fakeWriter) Flush()                    { f.flushes++ }

func TestPointFromBar(t *testing.T) {
	b := kline.Bar{Ticker: "AAPL", TF: "1m", StartMs: 60_000, EndMs: 120_000,
		Open: 10 * kline.Scale, High: 12 * kline.Scale, Low: 9 * kline.Scale, Close: 11 * kline.Scale,
		Volume: 40, Count: 3}
	p := Point(b)

	assert.Equal(t, "kline", p.Name())
	assert.Equal(t, time.UnixMilli(60_000).UTC(), p.Time())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"ticker": "AAPL", "interval": "1m"}, tags)
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 12.0, fields["h"])
	assert.Equal(t, int64(40), fields["v"])
}

func TestRunWritesUntilClosed(t *testing.T) {
	fw := &fakeWriter{}
	s := newWithWriter(fw)
	in := make(chan kline.Bar, 2)
	in <- kline.Bar{Ticker: "AAPL", TF: "1s"}
	in <- kline.Bar{Ticker: "MSFT", TF: "1s"}
	close(in)

	require.NoError(t, s.Run(context.Background(), in))
	assert.Len(t, fw.points, 2)
	assert.Equal(t, uint64(2), s.Written())

	s.Close()
	assert.Equal(t, 1, fw.flushes)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newWithWriter(&fakeWriter{}).Run(ctx, make(chan kline.Bar))
	assert.ErrorIs(t, err, context.Canceled)
}
