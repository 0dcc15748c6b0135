package sensor

// window is a fixed-capacity FIFO of the most recent readings.
// Not safe for concurrent use; the caller synchronizes.
type window struct {
	buf   []float64
	head  int // next write position
	count int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]float64, capacity)}
}

// push appends v, evicting the oldest reading once the window is full.
func (w *window) push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

func (w *window) full() bool {
	return w.count == len(w.buf)
}

func (w *window) len() int {
	return w.count
}

func (w *window) reset() {
	w.head = 0
	w.count = 0
}

// values returns the readings oldest first.
func (w *window) values() []float64 {
	out := make([]float64, w.count)
	start := (w.head - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

func (w *window) max() float64 {
	m := 0.0
	for i, v := range w.values() {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// outside counts readings strictly outside [low, high].
func (w *window) outside(low, high float64) int {
	n := 0
	for _, v := range w.values() {
		if v < low || v > high {
			n++
		}
	}
	return n
}
