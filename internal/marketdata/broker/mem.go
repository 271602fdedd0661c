package broker

import (
	"context"
	"sync"

	"tinyex.com/pkg/metrics"
	"tinyex.com/pkg/safe"
)

// MemBroker fans messages out inside one process.
type MemBroker struct {
	mu      sync.RWMutex
	subs    map[string][]chan Message
	bufSize int
}

func NewMemBroker(bufSize int) *MemBroker {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &MemBroker{subs: make(map[string][]chan Message), bufSize: bufSize}
}

func (b *MemBroker) Publish(_ context.Context, topic string, payload []byte) error {
	msg := Message{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			metrics.DroppedTotal.WithLabelValues("broker").Inc()
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	ch := make(chan Message, b.bufSize)
	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()

	safe.Go(func() {
		<-ctx.Done()
		b.mu.Lock()
		for _, t := range topics {
			b.subs[t] = remove(b.subs[t], ch)
			if len(b.subs[t]) == 0 {
				delete(b.subs, t)
			}
		}
		b.mu.Unlock()
		close(ch)
	})
	return ch, nil
}

func remove(list []chan Message, ch chan Message) []chan Message {
	out := list[:0]
	for _, c := range list {
		if c != ch {
			out = append(out, c)
		}
	}
	return out
}

func (b *MemBroker) Close() error { return nil }
