package strategy

// Window is a FIFO of the most recent prices, bounded by capacity.
type Window struct {
	capacity int
	prices   []float64
}

// NewWindow creates a window holding at most capacity prices. Capacity below one is treated as one.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity, prices: make([]float64, 0, capacity)}
}

// Push appends a price and discards the oldest entries beyond capacity.
func (w *Window) Push(price float64) {
	if len(w.prices) < w.capacity {
		w.prices = append(w.prices, price)
		return
	}
	copy(w.prices, w.prices[1:])
	w.prices[len(w.prices)-1] = price
}

// Len returns the number of stored prices.
func (w *Window) Len() int { return len(w.prices) }

// Prices returns a copy, oldest first.
func (w *Window) Prices() []float64 {
	out := make([]float64, len(w.prices))
	copy(out, w.prices)
	return out
}

// Momentum returns (newest - oldest) / oldest. ok is false with fewer than two prices; a zero oldest price yields 0.
func (w *Window) Momentum() (momentum float64, ok bool) {
	if len(w.prices) < 2 {
		return 0, false
	}
	oldest := w.prices[0]
	newest := w.prices[len(w.prices)-1]
	if oldest == 0 {
		return 0, true
	}
	return (newest - oldest) / oldest, true
}
