package ws

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"tinyex.com/pkg/metrics"
)

// Conn is one websocket client. Pending payloads are kept latest-only per
// topic: a newer payload replaces one the writer has not sent yet.
type Conn struct {
	id     string
	ws     *websocket.Conn
	mu     sync.Mutex
	latest map[string][]byte
	order  []string       // topics in first-pending order
	notify chan struct{} // buffered 1
	done   chan struct{} // closed when the reader exits
	closed atomic.Bool
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     id,
		ws:     ws,
		latest: make(map[string][]byte, 16),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Offer queues payload for topic and wakes the writer. It never blocks.
func (c *Conn) Offer(topic string, payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	if _, pending := c.latest[topic]; pending {
		metrics.DroppedTotal.WithLabelValues("ws").Inc()
	} else {
		c.order = append(c.order, topic)
	}
	c.latest[topic] = payload
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// take removes up to max pending payloads, oldest topic first.
func (c *Conn) take(max int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := min(len(c.order), max)
	if n == 0 {
		return nil
	}
	out := make([][]byte, 0, n)
	for _, t := range c.order[:n] {
		out = append(out, c.latest[t])
		delete(c.latest, t)
	}
	c.order = append(c.order[:0], c.order[n:]...)
	if len(c.order) > 0 {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return out
}
