package ws

import (
	"sync"
)

// Hub routes topic payloads to subscribed connections and keeps the last
// payload of every topic as a snapshot for new subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{}
	last map[string][]byte
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 256),
		last: make(map[string][]byte, 256),
	}
}

type snapshot struct {
	topic string
	data  []byte
}

// Subscribe registers c and replays the current snapshot of each topic to it.
func (h *Hub) Subscribe(c *Conn, topics []string) {
	snaps := make([]snapshot, 0, len(topics))
	h.mu.Lock()
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 8)
			h.subs[t] = set
		}
		set[c] = struct{}{}
		if b := h.last[t]; b != nil {
			snaps = append(snaps, snapshot{t, b})
		}
	}
	h.mu.Unlock()

	for _, s := range snaps {
		c.Offer(s.topic, s.data)
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	h.mu.Lock()
	for _, t := range topics {
		h.drop(t, c)
	}
	h.mu.Unlock()
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	for t := range h.subs {
		h.drop(t, c)
	}
	h.mu.Unlock()
}

func (h *Hub) drop(topic string, c *Conn) {
	if set := h.subs[topic]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish stores payload as the topic snapshot and offers it to every
// subscriber without blocking. payload must not be modified afterwards.
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.Lock()
	h.last[topic] = payload
	conns := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Offer(topic, payload)
	}
}

// Last returns the snapshot of topic, nil if nothing was published yet.
func (h *Hub) Last(topic string) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last[topic]
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
