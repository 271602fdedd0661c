package matching

import (
	"container/heap"
	"sync"
)

// orderQueue is a FIFO of orders. It backs both a single limit price level
// and a whole market-order side.
type orderQueue struct {
	price float64 // limit levels only
	head  *qNode
	tail  *qNode
	size  int
}

type qNode struct {
	next  *qNode
	order *Order
}

var qNodePool = sync.Pool{
	New: func() any {
		return new(qNode)
	},
}

func (q *orderQueue) pushBack(o *Order) {
	n := qNodePool.Get().(*qNode)
	n.next, n.order = nil, o
	if q.tail != nil {
		q.tail.next = n
	} else {
		q.head = n
	}
	q.tail = n
	q.size++
}

func (q *orderQueue) front() *Order {
	if q.head == nil {
		return nil
	}
	return q.head.order
}

func (q *orderQueue) popFront() *Order {
	n := q.head
	if n == nil {
		return nil
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	o := n.order
	// drop references before the node goes back to the pool
	n.next, n.order = nil, nil
	qNodePool.Put(n)
	return o
}

func (q *orderQueue) empty() bool { return q.size == 0 }

func (q *orderQueue) each(fn func(*Order)) {
	for n := q.head; n != nil; n = n.next {
		fn(n.order)
	}
}

// limitSide is one side of the limit book: a price heap over per-price FIFO
// levels. Head of the best level is the next order to match.
type limitSide struct {
	side   Side
	levels map[float64]*orderQueue
	prices priceHeap
	count  int
}

func newLimitSide(side Side) *limitSide {
	s := &limitSide{
		side:   side,
		levels: make(map[float64]*orderQueue, 64),
		prices: priceHeap{less: PriorityFor(side)},
	}
	heap.Init(&s.prices)
	return s
}

func (s *limitSide) push(o *Order) {
	lv := s.levels[o.Price]
	if lv == nil {
		lv = &orderQueue{price: o.Price}
		s.levels[o.Price] = lv
		heap.Push(&s.prices, o.Price)
	}
	lv.pushBack(o)
	s.count++
}

func (s *limitSide) bestLevel() *orderQueue {
	p, ok := s.prices.peek()
	if !ok {
		return nil
	}
	return s.levels[p]
}

func (s *limitSide) peek() *Order {
	lv := s.bestLevel()
	if lv == nil {
		return nil
	}
	return lv.front()
}

// pop removes the head of the best level. Levels only ever drain from the
// top of the heap, so an emptied level is removed eagerly.
func (s *limitSide) pop() *Order {
	lv := s.bestLevel()
	if lv == nil {
		return nil
	}
	o := lv.popFront()
	s.count--
	if lv.empty() {
		delete(s.levels, lv.price)
		heap.Pop(&s.prices)
	}
	return o
}

func (s *limitSide) len() int { return s.count }

// depth returns total open quantity per price level, best first.
func (s *limitSide) depth() []Level {
	lvs := s.depthLevels()
	out := make([]Level, 0, len(lvs))
	for _, lv := range lvs {
		var qty int64
		lv.each(func(o *Order) { qty += o.Remaining() })
		out = append(out, Level{Price: lv.price, Qty: qty, Orders: lv.size})
	}
	return out
}

// orders returns the resting orders in match priority.
func (s *limitSide) orders() []*Order {
	out := make([]*Order, 0, s.count)
	for _, lv := range s.depthLevels() {
		lv.each(func(o *Order) { out = append(out, o) })
	}
	return out
}

func (s *limitSide) depthLevels() []*orderQueue {
	cp := priceHeap{prices: append([]float64(nil), s.prices.prices...), less: s.prices.less}
	out := make([]*orderQueue, 0, cp.Len())
	for cp.Len() > 0 {
		out = append(out, s.levels[heap.Pop(&cp).(float64)])
	}
	return out
}
