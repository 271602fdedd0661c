package matching

// PriceLess reports whether price a is matched strictly before price b on
// one side of the book.
type PriceLess func(a, b float64) bool

// BuyPriority: the higher bid goes first.
func BuyPriority(a, b float64) bool { return a > b }

// SellPriority: the lower ask goes first.
func SellPriority(a, b float64) bool { return a < b }

func PriorityFor(side Side) PriceLess {
	if side == Buy {
		return BuyPriority
	}
	return SellPriority
}

// Outranks reports whether resting limit order a is matched before b.
// Better price wins; equal prices fall back to arrival sequence.
func Outranks(a, b *Order) bool {
	less := PriorityFor(a.Side)
	if less(a.Price, b.Price) {
		return true
	}
	if less(b.Price, a.Price) {
		return false
	}
	return a.Seq < b.Seq
}

// priceHeap keeps the distinct resting prices of one side, best on top.
// Use container/heap to manipulate it.
type priceHeap struct {
	prices []float64
	less   PriceLess
}

func (h priceHeap) Len() int           { return len(h.prices) }
func (h priceHeap) Less(i, j int) bool { return h.less(h.prices[i], h.prices[j]) }
func (h priceHeap) Swap(i, j int)      { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	h.prices = append(h.prices, x.(float64))
}

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

func (h priceHeap) peek() (float64, bool) {
	if len(h.prices) == 0 {
		return 0, false
	}
	return h.prices[0], true
}
