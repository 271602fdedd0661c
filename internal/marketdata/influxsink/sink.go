package influxsink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
	"tinyex.com/internal/marketdata/kline"
	"tinyex.com/pkg/logger"
	"tinyex.com/pkg/safe"
)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	BatchSize     uint
	FlushInterval time.Duration
	UseGzip       bool
}

func (cfg Config) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}

// pointWriter is the part of the influx async write API the sink uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Sink stores closed bars in the "kline" measurement, tagged by ticker and
// interval. Writes are batched and asynchronous.
type Sink struct {
	w       pointWriter
	closeFn func()
	written uint64
}

func New(cfg Config) *Sink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	w := c.WriteAPI(cfg.Org, cfg.Bucket)

	// the error channel must be drained or the writer stalls
	errs := w.Errors()
	safe.Go(func() {
		for err := range errs {
			logger.Warn(context.Background(), "influx write failed", zap.Error(err))
		}
	})
	logger.Info(context.Background(), "influx sink ready", zap.Stringer("cfg", cfg))
	return &Sink{w: w, closeFn: c.Close}
}

func newWithWriter(w pointWriter) *Sink {
	return &Sink{w: w, closeFn: w.Flush}
}

// Point converts a bar to its influx point.
func Point(b kline.Bar) *write.Point {
	tags := map[string]string{
		"ticker":   b.Ticker,
		"interval": b.TF,
	}
	fields := map[string]interface{}{
		"o": kline.Decimal(b.Open).InexactFloat64(),
		"h": kline.Decimal(b.High).InexactFloat64(),
		"l": kline.Decimal(b.Low).InexactFloat64(),
		"c": kline.Decimal(b.Close).InexactFloat64(),
		"v": b.Volume,
		"n": b.Count,
	}
	return write.NewPoint("kline", tags, fields, time.UnixMilli(b.StartMs).UTC())
}

func (s *Sink) WriteBar(b kline.Bar) {
	s.w.WritePoint(Point(b))
	s.written++
}

// Run writes bars from in until it is closed or ctx is done.
func (s *Sink) Run(ctx context.Context, in <-chan kline.Bar) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-in:
			if !ok {
				return nil
			}
			s.WriteBar(b)
		}
	}
}

func (s *Sink) Written() uint64 { return s.written }

// Close flushes buffered points.
func (s *Sink) Close() { s.closeFn() }
