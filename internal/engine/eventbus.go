package engine

import (
	"context"
	"sync/atomic"

	"tinyex.com/pkg/metrics"
)

// ChanBus is a bounded event channel. Publishers never block on a full bus;
// the event is dropped and counted.
type ChanBus struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewChanBus(size int) *ChanBus {
	if size <= 0 {
		size = 1 << 16
	}
	return &ChanBus{ch: make(chan Event, size)}
}

func (b *ChanBus) TryPublish(ev Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		b.dropped.Add(1)
		metrics.DroppedTotal.WithLabelValues("event_bus").Inc()
		return false
	}
}

// Publish blocks until the event is queued or ctx is done.
func (b *ChanBus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChanBus) C() <-chan Event { return b.ch }
func (b *ChanBus) Dropped() uint64 { return b.dropped.Load() }
